package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the slice of the account record the ledger reads for donor display.
type User struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Email       string    `gorm:"column:email;type:text;not null;uniqueIndex"`
	DisplayName string    `gorm:"column:display_name;not null;default:''"`
	FirstName   string    `gorm:"column:first_name;not null;default:''"`
	LastName    string    `gorm:"column:last_name;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
