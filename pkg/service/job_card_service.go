package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ignatij/shopfloor/pkg/jobcard"
	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/ignatij/shopfloor/pkg/storage"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrValidation marks a malformed request.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a request that contradicts the stored state.
	ErrConflict = errors.New("conflict")
)

// Logger defines the logging interface for JobCardService
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// JobCardService is the authoritative backend of job cards. It accepts any
// patch that keeps the stored data valid; the status graph is enforced by the
// client-side coordinator.
type JobCardService struct {
	store    storage.Store
	logger   Logger
	validate *validator.Validate
	now      func() time.Time
	mu       sync.Mutex // serializes writes
}

func NewJobCardService(store storage.Store, logger Logger) *JobCardService {
	return &JobCardService{
		store:    store,
		logger:   logger,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *JobCardService) ListJobCards(filter models.JobCardFilter) ([]models.JobCard, error) {
	return s.store.ListJobCards(filter)
}

func (s *JobCardService) GetJobCard(id string) (models.JobCard, error) {
	c, err := s.store.GetJobCard(id)
	if err != nil {
		return models.JobCard{}, errors.Wrapf(err, "failed to get job card %s", id)
	}
	return c, nil
}

func (s *JobCardService) ListLogs(jobCardID string) ([]models.JobCardLog, error) {
	if _, err := s.store.GetJobCard(jobCardID); err != nil {
		return nil, errors.Wrapf(err, "failed to get job card %s", jobCardID)
	}
	return s.store.ListLogs(jobCardID)
}

// ImportJobCards stores new planned job cards. Either all cards are stored
// or none.
func (s *JobCardService) ImportJobCards(cards []models.JobCard) (err error) {
	if len(cards) == 0 {
		return errors.Wrap(ErrValidation, "no job cards to import")
	}
	for i := range cards {
		c := &cards[i]
		if err := s.validate.Struct(c); err != nil {
			return errors.Wrapf(ErrValidation, "job card %d (%s): %v", i, c.ID, err)
		}
		if !c.QuantityToManufacture.IsPositive() {
			return errors.Wrapf(ErrValidation, "job card %s: for_quantity must be positive", c.ID)
		}
		c.Status = models.PlannedJobCardStatus
		c.CompletedQuantity = decimal.Zero
		c.AccumulatedSeconds = 0
		c.ActualStartTime, c.ActualEndTime = nil, nil
		c.UpdatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	txStore, err := s.store.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	for _, c := range cards {
		if err = txStore.SaveJobCard(c); err != nil {
			return errors.Wrap(ErrConflict, err.Error())
		}
	}
	all, err := txStore.ListJobCards(models.JobCardFilter{})
	if err != nil {
		return errors.Wrap(err, "failed to list job cards")
	}
	if _, err = jobcard.Resolve(all); err != nil {
		return errors.Wrap(ErrConflict, err.Error())
	}
	s.logger.Infof("Imported %d job cards", len(cards))
	return nil
}

// UpdateJobCard applies patch and records a log entry. Completed cards are
// immutable, completed quantity and accumulated seconds never decrease and
// the completed quantity never exceeds what the predecessor released.
func (s *JobCardService) UpdateJobCard(id string, patch models.JobCardPatch) (card models.JobCard, err error) {
	if patch.IsEmpty() {
		return models.JobCard{}, errors.Wrap(ErrValidation, "empty update")
	}
	if err := s.validate.Struct(patch); err != nil {
		return models.JobCard{}, errors.Wrap(ErrValidation, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	txStore, err := s.store.Begin()
	if err != nil {
		return models.JobCard{}, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	current, err := txStore.GetJobCard(id)
	if err != nil {
		return models.JobCard{}, errors.Wrapf(err, "failed to get job card %s", id)
	}
	if err = s.check(txStore, current, patch); err != nil {
		s.logger.Infof("Rejected update of job card %s: %v", id, err)
		return models.JobCard{}, err
	}

	card, err = txStore.UpdateJobCard(id, patch)
	if err != nil {
		return models.JobCard{}, errors.Wrapf(err, "failed to update job card %s", id)
	}
	entry := models.JobCardLog{
		ID:                 uuid.NewString(),
		JobCardID:          id,
		Action:             actionOf(current, patch),
		Status:             card.Status,
		CompletedQuantity:  card.CompletedQuantity,
		AccumulatedSeconds: card.AccumulatedSeconds,
		LoggedAt:           s.now(),
	}
	if err = txStore.SaveLog(entry); err != nil {
		return models.JobCard{}, errors.Wrapf(err, "failed to log update of job card %s", id)
	}
	s.logger.Infof("Updated job card %s (%s): status %s, completed %s, %ds",
		id, entry.Action, card.Status, card.CompletedQuantity, card.AccumulatedSeconds)
	return card, nil
}

func (s *JobCardService) check(store storage.Store, current models.JobCard, patch models.JobCardPatch) error {
	if current.IsTerminal() {
		return errors.Wrapf(ErrConflict, "job card %s is completed", current.ID)
	}
	if patch.AccumulatedSeconds != nil && *patch.AccumulatedSeconds < current.AccumulatedSeconds {
		return errors.Wrapf(ErrConflict, "total_time_seconds %d is below the recorded %d",
			*patch.AccumulatedSeconds, current.AccumulatedSeconds)
	}
	working := patch.Status != nil && *patch.Status != current.Status &&
		(*patch.Status == models.InProgressJobCardStatus || *patch.Status == models.CompletedJobCardStatus)
	raised := false
	if patch.CompletedQuantity != nil {
		q := *patch.CompletedQuantity
		if q.IsNegative() {
			return errors.Wrapf(ErrValidation, "completed_qty %s is negative", q)
		}
		if q.LessThan(current.CompletedQuantity) {
			return errors.Wrapf(ErrConflict, "completed_qty %s is below the recorded %s", q, current.CompletedQuantity)
		}
		raised = q.GreaterThan(current.CompletedQuantity)
	}
	if !working && !raised {
		return nil
	}

	gate, err := s.gateOf(store, current)
	if err != nil {
		return err
	}
	if working && !gate.Actionable {
		return errors.Wrapf(ErrConflict, "job card %s cannot be %s: predecessor %s has released %s",
			current.ID, *patch.Status, gate.Predecessor, gate.AllowedQuantity)
	}
	if q := patch.CompletedQuantity; raised && q.GreaterThan(gate.AllowedQuantity) {
		return errors.Wrapf(ErrConflict, "completed_qty %s exceeds allowed quantity %s", *q, gate.AllowedQuantity)
	}
	return nil
}

// gateOf resolves the gate of a stored card from its stored siblings.
func (s *JobCardService) gateOf(store storage.Store, current models.JobCard) (jobcard.Gate, error) {
	siblings, err := store.ListJobCards(models.JobCardFilter{ProductionOrder: current.ProductionOrder})
	if err != nil {
		return jobcard.Gate{}, errors.Wrapf(err, "failed to list production order %s", current.ProductionOrder)
	}
	res, err := jobcard.Resolve(siblings)
	if err != nil {
		return jobcard.Gate{}, errors.Wrap(ErrConflict, err.Error())
	}
	gate, ok := res.Gate(current.ID)
	if !ok {
		return jobcard.Gate{}, errors.Wrapf(storage.ErrNotFound, "job card %s", current.ID)
	}
	return gate, nil
}

func actionOf(current models.JobCard, patch models.JobCardPatch) string {
	if patch.Status != nil && *patch.Status != current.Status {
		switch *patch.Status {
		case models.InProgressJobCardStatus:
			return string(jobcard.ActionStart)
		case models.OnHoldJobCardStatus:
			return string(jobcard.ActionPause)
		case models.CompletedJobCardStatus:
			return string(jobcard.ActionComplete)
		}
	}
	if patch.CompletedQuantity != nil {
		return string(jobcard.ActionSave)
	}
	return "update"
}

// ListStages lets the service back a jobcard.Coordinator in-process.
func (s *JobCardService) ListStages(ctx context.Context, filter models.JobCardFilter) ([]models.JobCard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.ListJobCards(filter)
}

func (s *JobCardService) UpdateStage(ctx context.Context, id string, patch models.JobCardPatch) (models.JobCard, error) {
	if err := ctx.Err(); err != nil {
		return models.JobCard{}, err
	}
	return s.UpdateJobCard(id, patch)
}
