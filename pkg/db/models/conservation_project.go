package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wildroots/wildroots-backend/pkg/enums"
	"github.com/wildroots/wildroots-backend/pkg/money"
)

// ConservationProject carries the funding-relevant slice of a project.
type ConservationProject struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID        uuid.UUID           `gorm:"column:owner_id;type:uuid;not null"`
	Title          string              `gorm:"column:title;not null"`
	FundingGoal    money.Cents         `gorm:"column:funding_goal;not null"`
	CurrentFunding money.Cents         `gorm:"column:current_funding;not null;default:0"`
	Status         enums.ProjectStatus `gorm:"column:status;type:project_status_enum;not null;default:'active'"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt    *time.Time          `gorm:"column:completed_at"`
	PausedAt       *time.Time          `gorm:"column:paused_at"`
}

func (ConservationProject) TableName() string { return "conservation_projects" }
