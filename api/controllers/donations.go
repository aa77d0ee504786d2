package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/wildroots/wildroots-backend/api/responses"
	"github.com/wildroots/wildroots-backend/api/validators"
	"github.com/wildroots/wildroots-backend/internal/donations"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/logger"
	"github.com/wildroots/wildroots-backend/pkg/pagination"
)

// DonationService is the donor-facing donation surface.
type DonationService interface {
	CreateCheckout(ctx context.Context, input donations.CheckoutInput) (*donations.CheckoutResult, error)
	DonorStatus(ctx context.Context, donationID uuid.UUID) (*donations.DonorStatus, error)
	PublicDonations(ctx context.Context, projectID uuid.UUID, params pagination.Params) (*donations.PublicDonationList, error)
}

type donationCheckoutRequest struct {
	ProjectID  string  `json:"projectId" validate:"required,uuid"`
	Amount     int64   `json:"amount" validate:"gte=100,cents"`
	SiteTip    int64   `json:"siteTip" validate:"cents"`
	CoversFees bool    `json:"coversFees"`
	UserID     *string `json:"userId,omitempty" validate:"omitempty,uuid"`
	DonorName  string  `json:"donorName" validate:"max=120"`
	DonorEmail string  `json:"donorEmail" validate:"omitempty,email,max=254"`
	Message    string  `json:"message" validate:"max=1000"`
}

func (r donationCheckoutRequest) toInput() (donations.CheckoutInput, error) {
	projectID, err := uuid.Parse(r.ProjectID)
	if err != nil {
		return donations.CheckoutInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid project id")
	}
	input := donations.CheckoutInput{
		ProjectID:  projectID,
		Amount:     r.Amount,
		SiteTip:    r.SiteTip,
		CoversFees: r.CoversFees,
		DonorName:  validators.SanitizeText(r.DonorName, 120),
		DonorEmail: validators.SanitizeEmail(r.DonorEmail),
		Message:    validators.SanitizeText(r.Message, 1000),
	}
	if r.UserID != nil {
		userID, err := uuid.Parse(*r.UserID)
		if err != nil {
			return donations.CheckoutInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
		}
		input.UserID = &userID
	}
	return input, nil
}

// DonationCheckout opens a hosted checkout session for a pending donation.
func DonationCheckout(svc DonationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donation service unavailable"))
			return
		}

		var body donationCheckoutRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateCheckout(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// DonationStatus returns the donor-visible status of a donation.
func DonationStatus(svc DonationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donation service unavailable"))
			return
		}

		donationID, err := validators.ParseUUIDParam(r, "donationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.DonorStatus(r.Context(), donationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// ProjectDonations lists a project's completed donations for the donor wall.
func ProjectDonations(svc DonationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donation service unavailable"))
			return
		}

		projectID, err := validators.ParseUUIDParam(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.PublicDonations(r.Context(), projectID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
