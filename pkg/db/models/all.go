package models

// All lists every ledger model, in dependency order, for schema bootstrapping
// in tests and local sqlite mode.
func All() []any {
	return []any{
		&User{},
		&ConservationProject{},
		&Donation{},
		&SettlementAdmission{},
		&SettlementEvent{},
		&LedgerDiscrepancy{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
