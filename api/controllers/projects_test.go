package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wildroots/wildroots-backend/internal/projects"
	"github.com/wildroots/wildroots-backend/pkg/config"
	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
)

func TestProjectFunding(t *testing.T) {
	projectID := uuid.New()
	svc := &stubProjectService{project: &models.ConservationProject{
		ID:             projectID,
		FundingGoal:    100000,
		CurrentFunding: 25000,
		Status:         enums.ProjectStatusActive,
	}}

	rec := serveProjects(svc, http.MethodGet, "/api/v1/projects/"+projectID.String()+"/funding")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data projects.FundingView `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.PercentFunded != "25.00" || envelope.Data.CurrentFunding != 25000 {
		t.Fatalf("unexpected funding view %+v", envelope.Data)
	}

	svc.err = pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	rec = serveProjects(svc, http.MethodGet, "/api/v1/projects/"+uuid.NewString()+"/funding")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestProjectOwnerActions(t *testing.T) {
	projectID := uuid.New()
	cases := []struct {
		path   string
		action string
		status enums.ProjectStatus
	}{
		{path: "/complete", action: "complete", status: enums.ProjectStatusCompleted},
		{path: "/pause", action: "pause", status: enums.ProjectStatusPaused},
		{path: "/resume", action: "resume", status: enums.ProjectStatusActive},
	}
	for _, tc := range cases {
		t.Run(tc.action, func(t *testing.T) {
			svc := &stubProjectService{project: &models.ConservationProject{ID: projectID, FundingGoal: 1000, Status: tc.status}}
			rec := serveProjects(svc, http.MethodPost, "/api/v1/projects/"+projectID.String()+tc.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
			}
			if svc.lastAction != tc.action || svc.lastID != projectID {
				t.Fatalf("expected %s on %s, got %s on %s", tc.action, projectID, svc.lastAction, svc.lastID)
			}
		})
	}
}

func TestProjectOwnerActionIllegalTransition(t *testing.T) {
	svc := &stubProjectService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "project must be funded to complete")}
	rec := serveProjects(svc, http.MethodPost, "/api/v1/projects/"+uuid.NewString()+"/complete")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, nil, stubPinger{}, stubPinger{})(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if rec.Header().Get("X-WildRoots-Env") != "test" {
		t.Fatalf("expected env header")
	}

	rec = httptest.NewRecorder()
	HealthReady(cfg, nil, stubPinger{}, stubPinger{err: errors.New("connection refused")})(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthLive(cfg)(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected live 200 got %d", rec.Code)
	}
}

func serveProjects(svc ProjectService, method, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/api/v1/projects/{projectId}/funding", ProjectFunding(svc, nil))
	r.Post("/api/v1/projects/{projectId}/complete", ProjectComplete(svc, nil))
	r.Post("/api/v1/projects/{projectId}/pause", ProjectPause(svc, nil))
	r.Post("/api/v1/projects/{projectId}/resume", ProjectResume(svc, nil))

	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type stubProjectService struct {
	project    *models.ConservationProject
	err        error
	lastAction string
	lastID     uuid.UUID
}

func (s *stubProjectService) Funding(ctx context.Context, id uuid.UUID) (*projects.FundingView, error) {
	if s.err != nil {
		return nil, s.err
	}
	return projects.NewFundingView(s.project), nil
}

func (s *stubProjectService) Complete(ctx context.Context, id uuid.UUID) (*models.ConservationProject, error) {
	return s.record("complete", id)
}

func (s *stubProjectService) Pause(ctx context.Context, id uuid.UUID) (*models.ConservationProject, error) {
	return s.record("pause", id)
}

func (s *stubProjectService) Resume(ctx context.Context, id uuid.UUID) (*models.ConservationProject, error) {
	return s.record("resume", id)
}

func (s *stubProjectService) record(action string, id uuid.UUID) (*models.ConservationProject, error) {
	s.lastAction = action
	s.lastID = id
	return s.project, s.err
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error {
	return p.err
}
