package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobCardLog records every accepted update of a job card for auditing.
type JobCardLog struct {
	ID                 string          `json:"id" db:"id"`                                 // UUID
	JobCardID          string          `json:"job_card_id" db:"job_card_id"`               // Card being logged
	Action             string          `json:"action" db:"action"`                         // start, pause, save, complete, update
	Status             JobCardStatus   `json:"status" db:"status"`                         // Status after the update
	CompletedQuantity  decimal.Decimal `json:"completed_qty" db:"completed_qty"`           // Quantity after the update
	AccumulatedSeconds int64           `json:"total_time_seconds" db:"total_time_seconds"` // Duration after the update
	LoggedAt           time.Time       `json:"logged_at" db:"logged_at"`
}
