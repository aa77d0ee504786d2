package stripewebhook

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/wildroots/wildroots-backend/internal/settlements"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/money"
	pkgstripe "github.com/wildroots/wildroots-backend/pkg/stripe"
)

const metadataMessage = "message"

// Decode maps a verified Stripe event onto its settlement variant. Types the
// ledger does not act on come back as settlements.Unknown so they are still
// audited.
func Decode(event *stripe.Event, receivedAt time.Time) (settlements.Event, error) {
	if event == nil || event.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	meta := settlements.Meta{
		ExternalEventID: event.ID,
		RawType:         string(event.Type),
		RawPayload:      []byte(event.Data.Raw),
		ReceivedAt:      receivedAt.UTC(),
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		return decodeCheckout(meta, &sess), nil
	case stripe.EventTypeChargeSucceeded:
		ch, err := decodeCharge(event)
		if err != nil {
			return nil, err
		}
		return chargeSucceeded(meta, ch), nil
	case stripe.EventTypeChargeUpdated:
		ch, err := decodeCharge(event)
		if err != nil {
			return nil, err
		}
		// charge.updated matters only once the balance transaction lands.
		if ch.BalanceTransaction == nil || ch.BalanceTransaction.ID == "" || ch.Status != stripe.ChargeStatusSucceeded {
			withCharge(&meta, ch)
			return settlements.Unknown{Meta: meta}, nil
		}
		return chargeSucceeded(meta, ch), nil
	case stripe.EventTypeChargeFailed:
		ch, err := decodeCharge(event)
		if err != nil {
			return nil, err
		}
		withCharge(&meta, ch)
		return settlements.ChargeFailed{
			Meta:           meta,
			Amount:         money.Cents(ch.Amount),
			FailureCode:    ch.FailureCode,
			FailureMessage: ch.FailureMessage,
		}, nil
	case stripe.EventTypeChargeRefunded:
		ch, err := decodeCharge(event)
		if err != nil {
			return nil, err
		}
		withCharge(&meta, ch)
		return settlements.ChargeRefunded{
			Meta:           meta,
			Amount:         money.Cents(ch.Amount),
			AmountRefunded: money.Cents(ch.AmountRefunded),
		}, nil
	default:
		return settlements.Unknown{Meta: meta}, nil
	}
}

func decodeCharge(event *stripe.Event) (*stripe.Charge, error) {
	var ch stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge")
	}
	if ch.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id missing")
	}
	return &ch, nil
}

func decodeCheckout(meta settlements.Meta, sess *stripe.CheckoutSession) settlements.CheckoutCompleted {
	meta.ExternalSessionRef = sess.ID
	if sess.PaymentIntent != nil {
		meta.ExternalPaymentRef = sess.PaymentIntent.ID
	}
	meta.Currency = currency(string(sess.Currency))
	meta.Status = string(sess.PaymentStatus)
	withMetadata(&meta, sess.Metadata)
	if meta.DonationID == nil {
		meta.DonationID = parseUUID(sess.ClientReferenceID)
	}

	out := settlements.CheckoutCompleted{
		Meta:        meta,
		AmountTotal: money.Cents(sess.AmountTotal),
		CoversFees:  parseBool(sess.Metadata[pkgstripe.MetadataCoversFees]),
		Message:     strings.TrimSpace(sess.Metadata[metadataMessage]),
	}
	if raw, ok := sess.Metadata[pkgstripe.MetadataProjectAmount]; ok {
		if v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
			amount := money.Cents(v)
			out.ProjectAmount = &amount
		}
	}
	if sess.CustomerDetails != nil {
		out.DonorName = strings.TrimSpace(sess.CustomerDetails.Name)
		out.DonorEmail = strings.TrimSpace(sess.CustomerDetails.Email)
	}
	return out
}

func chargeSucceeded(meta settlements.Meta, ch *stripe.Charge) settlements.ChargeSucceeded {
	withCharge(&meta, ch)
	out := settlements.ChargeSucceeded{
		Meta:                 meta,
		Amount:               money.Cents(ch.Amount),
		PaymentMethodSummary: paymentMethodSummary(ch.PaymentMethodDetails),
	}
	if bt := ch.BalanceTransaction; bt != nil && bt.ID != "" {
		out.BalanceTransactionRef = bt.ID
		// An unexpanded balance transaction decodes with only its id.
		if bt.Amount != 0 || bt.Fee != 0 || bt.Net != 0 {
			out.Fee = &settlements.FeeDetail{
				BalanceTransactionRef: bt.ID,
				ProcessingFee:         money.Cents(bt.Fee),
				Net:                   money.Cents(bt.Net),
			}
		}
	}
	return out
}

func withCharge(meta *settlements.Meta, ch *stripe.Charge) {
	meta.ExternalChargeRef = ch.ID
	if ch.PaymentIntent != nil {
		meta.ExternalPaymentRef = ch.PaymentIntent.ID
	}
	meta.Currency = currency(string(ch.Currency))
	meta.Status = string(ch.Status)
	withMetadata(meta, ch.Metadata)
}

func withMetadata(meta *settlements.Meta, md map[string]string) {
	if len(md) == 0 {
		return
	}
	meta.DonationID = parseUUID(md[pkgstripe.MetadataDonationID])
	meta.ProjectID = parseUUID(md[pkgstripe.MetadataProjectID])
	meta.UserID = parseUUID(md[pkgstripe.MetadataUserID])
}

func paymentMethodSummary(details *stripe.ChargePaymentMethodDetails) string {
	if details == nil {
		return ""
	}
	parts := []string{string(details.Type)}
	if card := details.Card; card != nil {
		if brand := string(card.Brand); brand != "" {
			parts = append(parts, brand)
		}
		if card.Last4 != "" {
			parts = append(parts, card.Last4)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func currency(raw string) enums.Currency {
	if raw == "" {
		return ""
	}
	c, err := enums.ParseCurrency(raw)
	if err != nil {
		return enums.Currency(strings.ToUpper(raw))
	}
	return c
}

func parseUUID(raw string) *uuid.UUID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}
