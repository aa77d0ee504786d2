package stripewebhook

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/wildroots/wildroots-backend/internal/ledger"
	"github.com/wildroots/wildroots-backend/internal/settlements"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/logger"
	pkgstripe "github.com/wildroots/wildroots-backend/pkg/stripe"
)

// Reconciler applies a decoded settlement to the ledger.
type Reconciler interface {
	Reconcile(ctx context.Context, event settlements.Event) (ledger.Outcome, error)
}

// BalanceTransactionFetcher loads the fee/net for a charge whose balance
// transaction was not expanded in the payload.
type BalanceTransactionFetcher interface {
	GetBalanceTransaction(ctx context.Context, id string) (*pkgstripe.BalanceTransaction, error)
}

type ServiceParams struct {
	Reconciler Reconciler
	Balances   BalanceTransactionFetcher
	Logger     *logger.Logger
	Clock      func() time.Time
}

type Service struct {
	reconciler Reconciler
	balances   BalanceTransactionFetcher
	logg       *logger.Logger
	clock      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		reconciler: params.Reconciler,
		balances:   params.Balances,
		logg:       params.Logger,
		clock:      clock,
	}, nil
}

// HandleEvent decodes and reconciles one verified Stripe event.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (ledger.Outcome, error) {
	decoded, err := Decode(event, s.clock())
	if err != nil {
		return ledger.Outcome{}, err
	}
	if succeeded, ok := decoded.(settlements.ChargeSucceeded); ok {
		decoded = s.withFee(ctx, succeeded)
	}
	return s.reconciler.Reconcile(ctx, decoded)
}

// withFee fills in the balance transaction when Stripe sent only its id. A
// failed lookup is not fatal: the charge still credits the project and the fee
// is recorded when charge.updated arrives.
func (s *Service) withFee(ctx context.Context, ev settlements.ChargeSucceeded) settlements.ChargeSucceeded {
	if ev.Fee != nil || ev.BalanceTransactionRef == "" || s.balances == nil {
		return ev
	}
	bt, err := s.balances.GetBalanceTransaction(ctx, ev.BalanceTransactionRef)
	if err != nil {
		if s.logg != nil {
			warnCtx := s.logg.WithFields(ctx, map[string]any{
				"charge_ref":              ev.ExternalChargeRef,
				"balance_transaction_ref": ev.BalanceTransactionRef,
			})
			s.logg.Warn(warnCtx, "balance transaction lookup failed")
		}
		return ev
	}
	ev.Fee = &settlements.FeeDetail{
		BalanceTransactionRef: bt.ID,
		ProcessingFee:         bt.Fee,
		Net:                   bt.Net,
	}
	return ev
}
