package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ensureID assigns a v4 UUID when the caller has not chosen one, so inserts do
// not depend on database-side defaults.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (d *Donation) BeforeCreate(*gorm.DB) error            { ensureID(&d.ID); return nil }
func (e *SettlementEvent) BeforeCreate(*gorm.DB) error     { ensureID(&e.ID); return nil }
func (a *SettlementAdmission) BeforeCreate(*gorm.DB) error { ensureID(&a.ID); return nil }
func (p *ConservationProject) BeforeCreate(*gorm.DB) error { ensureID(&p.ID); return nil }
func (u *User) BeforeCreate(*gorm.DB) error                { ensureID(&u.ID); return nil }
func (d *LedgerDiscrepancy) BeforeCreate(*gorm.DB) error   { ensureID(&d.ID); return nil }
func (o *OutboxEvent) BeforeCreate(*gorm.DB) error         { ensureID(&o.ID); return nil }
func (o *OutboxDLQ) BeforeCreate(*gorm.DB) error           { ensureID(&o.ID); return nil }
