package enums

import "fmt"

// ProjectStatus maps to the project_status enum in Postgres.
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusFunded    ProjectStatus = "funded"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusPaused    ProjectStatus = "paused"
)

var validProjectStatuses = []ProjectStatus{
	ProjectStatusActive,
	ProjectStatusFunded,
	ProjectStatusCompleted,
	ProjectStatusPaused,
}

// String implements fmt.Stringer.
func (s ProjectStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ProjectStatus.
func (s ProjectStatus) IsValid() bool {
	for _, candidate := range validProjectStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// AcceptsDonations reports whether new checkouts may target a project in this status.
func (s ProjectStatus) AcceptsDonations() bool {
	return s == ProjectStatusActive || s == ProjectStatusFunded
}

// ParseProjectStatus converts raw input into a ProjectStatus.
func ParseProjectStatus(value string) (ProjectStatus, error) {
	for _, candidate := range validProjectStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid project status %q", value)
}
