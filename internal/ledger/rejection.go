package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wildroots/wildroots-backend/pkg/enums"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/money"
)

// Rejection aborts the reconcile transaction for an event the ledger refuses
// to apply. It is recorded afterwards in its own transaction.
type Rejection struct {
	Kind       enums.DiscrepancyKind
	Amount     money.Cents
	Reason     string
	DonationID *uuid.UUID
	ProjectID  *uuid.UUID
	Detail     map[string]any
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("settlement rejected (%s): %s", r.Kind, r.Reason)
}

// AsError converts the rejection into the ledger inconsistency error code.
func (r *Rejection) AsError() *pkgerrors.Error {
	return pkgerrors.Wrap(pkgerrors.CodeLedgerInconsistency, r, r.Reason).
		WithDetails(map[string]any{"kind": r.Kind, "amount": int64(r.Amount)})
}

func reject(kind enums.DiscrepancyKind, amount money.Cents, reason string) *Rejection {
	return &Rejection{Kind: kind, Amount: amount, Reason: reason}
}

func (r *Rejection) forDonation(donationID, projectID uuid.UUID) *Rejection {
	if donationID != uuid.Nil {
		r.DonationID = &donationID
	}
	if projectID != uuid.Nil {
		r.ProjectID = &projectID
	}
	return r
}

func (r *Rejection) with(key string, value any) *Rejection {
	if r.Detail == nil {
		r.Detail = map[string]any{}
	}
	r.Detail[key] = value
	return r
}

func asRejection(err error) (*Rejection, bool) {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}

func pending(message string) error {
	return pkgerrors.New(pkgerrors.CodePreconditionPending, message)
}
