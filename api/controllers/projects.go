package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/wildroots/wildroots-backend/api/responses"
	"github.com/wildroots/wildroots-backend/api/validators"
	"github.com/wildroots/wildroots-backend/internal/projects"
	"github.com/wildroots/wildroots-backend/pkg/db/models"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/logger"
)

// ProjectService exposes funding reads and owner actions.
type ProjectService interface {
	Funding(ctx context.Context, id uuid.UUID) (*projects.FundingView, error)
	Complete(ctx context.Context, projectID uuid.UUID) (*models.ConservationProject, error)
	Pause(ctx context.Context, projectID uuid.UUID) (*models.ConservationProject, error)
	Resume(ctx context.Context, projectID uuid.UUID) (*models.ConservationProject, error)
}

// ProjectFunding returns the cached funding summary for a project.
func ProjectFunding(svc ProjectService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		projectID, err := validators.ParseUUIDParam(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Funding(r.Context(), projectID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type ownerAction func(ctx context.Context, projectID uuid.UUID) (*models.ConservationProject, error)

// ProjectComplete marks a funded project completed.
func ProjectComplete(svc ProjectService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return projectOwnerAction(nil, "complete", logg)
	}
	return projectOwnerAction(svc.Complete, "complete", logg)
}

// ProjectPause stops a project from accepting new checkouts.
func ProjectPause(svc ProjectService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return projectOwnerAction(nil, "pause", logg)
	}
	return projectOwnerAction(svc.Pause, "pause", logg)
}

// ProjectResume reopens a paused project.
func ProjectResume(svc ProjectService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return projectOwnerAction(nil, "resume", logg)
	}
	return projectOwnerAction(svc.Resume, "resume", logg)
}

func projectOwnerAction(action ownerAction, name string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if action == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		projectID, err := validators.ParseUUIDParam(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(logg.WithProjectID(ctx, projectID.String()), map[string]any{"owner_action": name})
		}

		project, err := action(ctx, projectID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(ctx, "project owner action applied")
		}
		responses.WriteSuccess(w, projects.NewFundingView(project))
	}
}
