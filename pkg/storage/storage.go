package storage

import (
	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("not found")

// Store defines the storage operations for shopfloor.
type Store interface {
	// Transactions
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Job card operations
	SaveJobCard(c models.JobCard) error
	GetJobCard(id string) (models.JobCard, error)
	ListJobCards(filter models.JobCardFilter) ([]models.JobCard, error)
	UpdateJobCard(id string, patch models.JobCardPatch) (models.JobCard, error)

	// Log operations
	SaveLog(l models.JobCardLog) error
	ListLogs(jobCardID string) ([]models.JobCardLog, error)
}
