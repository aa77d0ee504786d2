package projects

import (
	"testing"

	"github.com/wildroots/wildroots-backend/pkg/enums"
	"github.com/wildroots/wildroots-backend/pkg/money"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name    string
		status  enums.ProjectStatus
		current money.Cents
		goal    money.Cents
		want    enums.ProjectStatus
	}{
		{"active below goal", enums.ProjectStatusActive, 9999, 10000, enums.ProjectStatusActive},
		{"active reaches goal", enums.ProjectStatusActive, 10000, 10000, enums.ProjectStatusFunded},
		{"active exceeds goal", enums.ProjectStatusActive, 25000, 10000, enums.ProjectStatusFunded},
		{"funded stays funded", enums.ProjectStatusFunded, 10000, 10000, enums.ProjectStatusFunded},
		{"funded reverts below goal", enums.ProjectStatusFunded, 300, 10000, enums.ProjectStatusActive},
		{"paused never moves", enums.ProjectStatusPaused, 50000, 10000, enums.ProjectStatusPaused},
		{"completed never moves", enums.ProjectStatusCompleted, 0, 10000, enums.ProjectStatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Evaluate(tc.status, tc.current, tc.goal); got != tc.want {
				t.Fatalf("Evaluate(%s, %d, %d) = %s, want %s", tc.status, tc.current, tc.goal, got, tc.want)
			}
		})
	}
}

func TestResumeTarget(t *testing.T) {
	if got := resumeTarget(100, 100); got != enums.ProjectStatusFunded {
		t.Fatalf("expected funded, got %s", got)
	}
	if got := resumeTarget(99, 100); got != enums.ProjectStatusActive {
		t.Fatalf("expected active, got %s", got)
	}
}
