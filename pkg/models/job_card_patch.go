package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobCardPatch carries the fields a transition persists. Nil fields are left untouched.
type JobCardPatch struct {
	Status             *JobCardStatus   `json:"status,omitempty" validate:"omitempty,oneof=planned in_progress on_hold completed"`
	CompletedQuantity  *decimal.Decimal `json:"completed_qty,omitempty"`
	ActualStartTime    *time.Time       `json:"actual_start_time,omitempty"`
	ActualEndTime      *time.Time       `json:"actual_end_time,omitempty"`
	AccumulatedSeconds *int64           `json:"total_time_seconds,omitempty" validate:"omitempty,gte=0"`
}

// IsEmpty reports whether the patch changes nothing.
func (p JobCardPatch) IsEmpty() bool {
	return p.Status == nil && p.CompletedQuantity == nil && p.ActualStartTime == nil &&
		p.ActualEndTime == nil && p.AccumulatedSeconds == nil
}

// Apply returns a copy of c with the patch fields applied.
func (p JobCardPatch) Apply(c JobCard) JobCard {
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.CompletedQuantity != nil {
		c.CompletedQuantity = *p.CompletedQuantity
	}
	if p.ActualStartTime != nil {
		t := *p.ActualStartTime
		c.ActualStartTime = &t
	}
	if p.ActualEndTime != nil {
		t := *p.ActualEndTime
		c.ActualEndTime = &t
	}
	if p.AccumulatedSeconds != nil {
		c.AccumulatedSeconds = *p.AccumulatedSeconds
	}
	return c
}

// JobCardFilter selects job cards. Empty fields match everything.
type JobCardFilter struct {
	ID              string `json:"id,omitempty" form:"id"`
	ProductionOrder string `json:"production_order,omitempty" form:"production_order"`
	Operator        string `json:"operator,omitempty" form:"operator"`
}

// Matches reports whether c satisfies the filter.
func (f JobCardFilter) Matches(c JobCard) bool {
	if f.ID != "" && c.ID != f.ID {
		return false
	}
	if f.ProductionOrder != "" && c.ProductionOrder != f.ProductionOrder {
		return false
	}
	if f.Operator != "" && c.Operator != f.Operator {
		return false
	}
	return true
}
