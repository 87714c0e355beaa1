package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type JobCardStatus string

const (
	PlannedJobCardStatus    JobCardStatus = "planned"
	InProgressJobCardStatus JobCardStatus = "in_progress"
	OnHoldJobCardStatus     JobCardStatus = "on_hold"
	CompletedJobCardStatus  JobCardStatus = "completed"
)

// Valid reports whether s is one of the known job card statuses.
func (s JobCardStatus) Valid() bool {
	switch s {
	case PlannedJobCardStatus, InProgressJobCardStatus, OnHoldJobCardStatus, CompletedJobCardStatus:
		return true
	}
	return false
}

// JobCard is one operation of a production order's routing, tracked for quantity and time.
type JobCard struct {
	ID                    string          `json:"id" db:"id" yaml:"id" validate:"required,max=64"`                                           // Opaque identifier (e.g. "JC-0001")
	ProductionOrder       string          `json:"production_order" db:"production_order" yaml:"production_order" validate:"required,max=64"` // Parent production order
	Operation             string          `json:"operation" db:"operation" yaml:"operation" validate:"required"`                             // e.g. "Cutting"
	Sequence              int             `json:"sequence" db:"sequence" yaml:"sequence" validate:"gte=1"`                                   // Position in the routing, immutable
	Operator              string          `json:"operator,omitempty" db:"operator" yaml:"operator"`                                          // Assigned employee
	Workstation           string          `json:"workstation,omitempty" db:"workstation" yaml:"workstation"`                                 // Assigned machine
	QuantityToManufacture decimal.Decimal `json:"for_quantity" db:"for_quantity" yaml:"for_quantity"`                                        // Order target, same for every stage
	CompletedQuantity     decimal.Decimal `json:"completed_qty" db:"completed_qty" yaml:"-"`
	Status                JobCardStatus   `json:"status" db:"status" yaml:"-"`
	ActualStartTime       *time.Time      `json:"actual_start_time,omitempty" db:"actual_start_time" yaml:"-"`
	ActualEndTime         *time.Time      `json:"actual_end_time,omitempty" db:"actual_end_time" yaml:"-"`
	AccumulatedSeconds    int64           `json:"total_time_seconds" db:"total_time_seconds" yaml:"-"` // Running time only
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at" yaml:"-"`
}

// IsTerminal reports whether the card accepts no further mutation.
func (c JobCard) IsTerminal() bool {
	return c.Status == CompletedJobCardStatus
}
