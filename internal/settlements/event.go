// Package settlements models processor notifications as a closed set of
// variants and persists them to the append-only audit log.
package settlements

import (
	"time"

	"github.com/google/uuid"

	"github.com/wildroots/wildroots-backend/pkg/enums"
	"github.com/wildroots/wildroots-backend/pkg/money"
)

// Event is implemented by every settlement variant.
type Event interface {
	Type() enums.SettlementEventType
	Common() Meta
}

// Meta carries what every processor notification has in common.
type Meta struct {
	ExternalEventID    string
	RawType            string
	ExternalChargeRef  string
	ExternalPaymentRef string
	ExternalSessionRef string
	DonationID         *uuid.UUID
	ProjectID          *uuid.UUID
	UserID             *uuid.UUID
	Currency           enums.Currency
	Status             string
	RawPayload         []byte
	ReceivedAt         time.Time
}

// Common returns m; embedding Meta gives each variant the Event method.
func (m Meta) Common() Meta { return m }

// Ref is the reference that keys admission and the audit row. Charges are
// keyed by charge id; checkout notifications, which precede any charge, fall
// back to the session and then the payment intent.
func (m Meta) Ref() string {
	switch {
	case m.ExternalChargeRef != "":
		return m.ExternalChargeRef
	case m.ExternalSessionRef != "":
		return m.ExternalSessionRef
	default:
		return m.ExternalPaymentRef
	}
}

// CheckoutCompleted reports that the donor finished the hosted checkout.
type CheckoutCompleted struct {
	Meta
	AmountTotal   money.Cents
	ProjectAmount *money.Cents
	CoversFees    bool
	DonorName     string
	DonorEmail    string
	Message       string
}

func (CheckoutCompleted) Type() enums.SettlementEventType { return enums.SettlementCheckoutCompleted }

// FeeDetail is the settled fee/net the processor reports for a charge.
type FeeDetail struct {
	BalanceTransactionRef string
	ProcessingFee         money.Cents
	Net                   money.Cents
}

// ChargeSucceeded reports a captured charge. Fee is nil until the balance
// transaction is available.
type ChargeSucceeded struct {
	Meta
	Amount                money.Cents
	BalanceTransactionRef string
	Fee                   *FeeDetail
	PaymentMethodSummary  string
}

func (ChargeSucceeded) Type() enums.SettlementEventType { return enums.SettlementChargeSucceeded }

// ChargeFailed reports a declined or otherwise failed charge attempt.
type ChargeFailed struct {
	Meta
	Amount         money.Cents
	FailureCode    string
	FailureMessage string
}

func (ChargeFailed) Type() enums.SettlementEventType { return enums.SettlementChargeFailed }

// ChargeRefunded reports a refund. AmountRefunded is cumulative for the charge.
type ChargeRefunded struct {
	Meta
	Amount         money.Cents
	AmountRefunded money.Cents
}

func (ChargeRefunded) Type() enums.SettlementEventType { return enums.SettlementChargeRefunded }

// Unknown is any notification type the ledger does not act on.
type Unknown struct {
	Meta
}

func (Unknown) Type() enums.SettlementEventType { return enums.SettlementUnknown }

var (
	_ Event = CheckoutCompleted{}
	_ Event = ChargeSucceeded{}
	_ Event = ChargeFailed{}
	_ Event = ChargeRefunded{}
	_ Event = Unknown{}
)
