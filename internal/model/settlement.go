package model

import "time"

// Settlement is the single authoritative fare split of a finished trip.
// VarianceBP is the applied multiplier in basis points (10000 = 1.0).
type Settlement struct {
	RoomID        string            `json:"room_id"`
	EstimatedCost int               `json:"estimated_cost"`
	ActualTotal   int               `json:"actual_total"`
	CostPerPerson int               `json:"cost_per_person"`
	VarianceBP    int               `json:"variance_bp"`
	SettledAt     time.Time         `json:"settled_at"`
	Debits        []SettlementDebit `json:"debits"`
}

// SettlementDebit records one member's share and the balance it left.
type SettlementDebit struct {
	UserID       string `json:"user_id"`
	Amount       int    `json:"amount"`
	BalanceAfter int    `json:"balance_after"`
}
