package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wildroots/wildroots-backend/internal/donations"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/pagination"
)

func TestDonationCheckoutCreatesSession(t *testing.T) {
	projectID := uuid.New()
	donationID := uuid.New()
	svc := &stubDonationService{checkout: &donations.CheckoutResult{
		DonationID:  donationID,
		SessionID:   "cs_test_1",
		CheckoutURL: "https://checkout.stripe.com/c/cs_test_1",
	}}

	body := map[string]any{
		"projectId":  projectID.String(),
		"amount":     2500,
		"siteTip":    200,
		"coversFees": true,
		"donorName":  "  Ada Lovelace  ",
		"donorEmail": "ada@example.com",
	}
	rec := serveDonations(svc, http.MethodPost, "/api/v1/donations/checkout", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.input.ProjectID != projectID || svc.input.Amount != 2500 || svc.input.SiteTip != 200 || !svc.input.CoversFees {
		t.Fatalf("unexpected input %+v", svc.input)
	}
	if svc.input.DonorName != "Ada Lovelace" {
		t.Fatalf("expected trimmed donor name, got %q", svc.input.DonorName)
	}
	if svc.input.UserID != nil {
		t.Fatalf("expected guest checkout")
	}

	var envelope struct {
		Data donations.CheckoutResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.DonationID != donationID || envelope.Data.SessionID != "cs_test_1" {
		t.Fatalf("unexpected response %+v", envelope.Data)
	}
}

func TestDonationCheckoutValidation(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
	}{
		{name: "missing project", body: map[string]any{"amount": 500}},
		{name: "amount below minimum", body: map[string]any{"projectId": uuid.NewString(), "amount": 99}},
		{name: "negative tip", body: map[string]any{"projectId": uuid.NewString(), "amount": 500, "siteTip": -1}},
		{name: "bad email", body: map[string]any{"projectId": uuid.NewString(), "amount": 500, "donorEmail": "nope"}},
		{name: "bad user id", body: map[string]any{"projectId": uuid.NewString(), "amount": 500, "userId": "x"}},
		{name: "unknown field", body: map[string]any{"projectId": uuid.NewString(), "amount": 500, "projectAmount": 500}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubDonationService{}
			rec := serveDonations(svc, http.MethodPost, "/api/v1/donations/checkout", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d (%s)", rec.Code, rec.Body.String())
			}
			if svc.calls != 0 {
				t.Fatalf("service should not be called")
			}
		})
	}
}

func TestDonationCheckoutSurfacesStateConflict(t *testing.T) {
	svc := &stubDonationService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "project is not accepting donations")}
	body := map[string]any{"projectId": uuid.NewString(), "amount": 500}
	rec := serveDonations(svc, http.MethodPost, "/api/v1/donations/checkout", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}

func TestDonationStatus(t *testing.T) {
	donationID := uuid.New()
	svc := &stubDonationService{status: &donations.DonorStatus{
		DonationID: donationID,
		Status:     enums.DonorStatusThankYou,
	}}

	rec := serveDonations(svc, http.MethodGet, "/api/v1/donations/"+donationID.String()+"/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.donationID != donationID {
		t.Fatalf("expected donation id forwarded")
	}

	rec = serveDonations(svc, http.MethodGet, "/api/v1/donations/not-a-uuid/status", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}

	svc.err = pkgerrors.New(pkgerrors.CodeNotFound, "donation not found")
	rec = serveDonations(svc, http.MethodGet, "/api/v1/donations/"+uuid.NewString()+"/status", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestProjectDonationsPagination(t *testing.T) {
	projectID := uuid.New()
	svc := &stubDonationService{list: &donations.PublicDonationList{
		Items: []donations.PublicDonation{{
			DonorName:     "Jane D.",
			ProjectAmount: 5000,
			CompletedAt:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		}},
		Cursor: "next",
	}}

	rec := serveDonations(svc, http.MethodGet, "/api/v1/projects/"+projectID.String()+"/donations?limit=10&cursor=abc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.params.Limit != 10 || svc.params.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", svc.params)
	}

	var envelope struct {
		Data donations.PublicDonationList `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Items) != 1 || envelope.Data.Cursor != "next" {
		t.Fatalf("unexpected list %+v", envelope.Data)
	}

	rec = serveDonations(svc, http.MethodGet, "/api/v1/projects/"+projectID.String()+"/donations", nil)
	if rec.Code != http.StatusOK || svc.params.Limit != pagination.DefaultLimit {
		t.Fatalf("expected default limit, got %d (%d)", svc.params.Limit, rec.Code)
	}

	rec = serveDonations(svc, http.MethodGet, "/api/v1/projects/"+projectID.String()+"/donations?limit=1000", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit, got %d", rec.Code)
	}
}

func serveDonations(svc DonationService, method, target string, body any) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/api/v1/donations/checkout", DonationCheckout(svc, nil))
	r.Get("/api/v1/donations/{donationId}/status", DonationStatus(svc, nil))
	r.Get("/api/v1/projects/{projectId}/donations", ProjectDonations(svc, nil))

	var payload bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&payload).Encode(body)
	}
	req := httptest.NewRequest(method, target, &payload)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type stubDonationService struct {
	calls      int
	input      donations.CheckoutInput
	donationID uuid.UUID
	params     pagination.Params
	checkout   *donations.CheckoutResult
	status     *donations.DonorStatus
	list       *donations.PublicDonationList
	err        error
}

func (s *stubDonationService) CreateCheckout(ctx context.Context, input donations.CheckoutInput) (*donations.CheckoutResult, error) {
	s.calls++
	s.input = input
	return s.checkout, s.err
}

func (s *stubDonationService) DonorStatus(ctx context.Context, donationID uuid.UUID) (*donations.DonorStatus, error) {
	s.calls++
	s.donationID = donationID
	return s.status, s.err
}

func (s *stubDonationService) PublicDonations(ctx context.Context, projectID uuid.UUID, params pagination.Params) (*donations.PublicDonationList, error) {
	s.calls++
	s.params = params
	return s.list, s.err
}
