package settlements

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wildroots/wildroots-backend/pkg/enums"
)

func TestMetaRefPrefersCharge(t *testing.T) {
	assert.Equal(t, "ch_1", Meta{ExternalChargeRef: "ch_1", ExternalSessionRef: "cs_1"}.Ref())
	assert.Equal(t, "cs_1", Meta{ExternalSessionRef: "cs_1", ExternalPaymentRef: "pi_1"}.Ref())
	assert.Equal(t, "pi_1", Meta{ExternalPaymentRef: "pi_1"}.Ref())
	assert.Equal(t, "", Meta{}.Ref())
}

func TestVariantsReportTheirType(t *testing.T) {
	cases := map[enums.SettlementEventType]Event{
		enums.SettlementCheckoutCompleted: CheckoutCompleted{},
		enums.SettlementChargeSucceeded:   ChargeSucceeded{},
		enums.SettlementChargeFailed:      ChargeFailed{},
		enums.SettlementChargeRefunded:    ChargeRefunded{},
		enums.SettlementUnknown:           Unknown{},
	}
	for want, ev := range cases {
		assert.Equal(t, want, ev.Type())
	}

	ev := ChargeRefunded{Meta: Meta{ExternalChargeRef: "ch_9"}}
	assert.Equal(t, "ch_9", ev.Common().ExternalChargeRef)
}

func TestPayloadHashIsStable(t *testing.T) {
	a := PayloadHash([]byte(`{"id":"evt_1"}`))
	assert.Len(t, a, 64)
	assert.Equal(t, a, PayloadHash([]byte(`{"id":"evt_1"}`)))
	assert.NotEqual(t, a, PayloadHash([]byte(`{"id":"evt_2"}`)))
}
