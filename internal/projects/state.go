package projects

import (
	"github.com/wildroots/wildroots-backend/pkg/enums"
	"github.com/wildroots/wildroots-backend/pkg/money"
)

// Evaluate applies the automatic funding transitions. Only active and funded
// move on their own; paused and completed are owner-controlled.
func Evaluate(status enums.ProjectStatus, current, goal money.Cents) enums.ProjectStatus {
	switch status {
	case enums.ProjectStatusActive:
		if current >= goal {
			return enums.ProjectStatusFunded
		}
	case enums.ProjectStatusFunded:
		if current < goal {
			return enums.ProjectStatusActive
		}
	}
	return status
}

// resumeTarget is where a paused project lands when the owner resumes it.
func resumeTarget(current, goal money.Cents) enums.ProjectStatus {
	if current >= goal {
		return enums.ProjectStatusFunded
	}
	return enums.ProjectStatusActive
}
