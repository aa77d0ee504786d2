package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/wildroots/wildroots-backend/api/responses"
	"github.com/wildroots/wildroots-backend/internal/ledger"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/logger"
)

// Checkout sessions with many line items run well past 64 KiB.
const maxWebhookBody = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (ledger.Outcome, error)
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

type webhookAck struct {
	EventID     string `json:"eventId"`
	Outcome     string `json:"outcome"`
	Discrepancy string `json:"discrepancy,omitempty"`
}

// StripeWebhook verifies and reconciles Stripe settlement notifications.
// Every terminal outcome is acknowledged with 200, including rejections that
// were parked for an operator. Only retryable failures return non-2xx so
// Stripe redelivers them.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeTooLarge, "webhook body too large").
					WithDetails(map[string]any{"limit_bytes": tooLarge.Limit}))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"stripe_event_id":   event.ID,
				"stripe_event_type": string(event.Type),
			})
		}

		if guard != nil {
			alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
			if err != nil {
				// Redis is only a fast path; the ledger admission still dedupes.
				if logg != nil {
					logg.Warn(ctx, "stripe webhook fast-path guard unavailable")
				}
			} else if alreadyProcessed {
				responses.WriteSuccess(w, webhookAck{EventID: event.ID, Outcome: "duplicate"})
				return
			}
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			if guard != nil {
				if relErr := guard.Release(ctx, event.ID); relErr != nil && logg != nil {
					logg.Warn(ctx, "release stripe event claim failed")
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, "stripe event processed")
		}
		responses.WriteSuccess(w, webhookAck{
			EventID:     event.ID,
			Outcome:     string(outcome.Result),
			Discrepancy: string(outcome.Discrepancy),
		})
	}
}
