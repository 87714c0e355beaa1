package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/ignatij/shopfloor/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...interface{}) (sql.Result, error)
	Rebind(query string) string
}

// SQLStore implements storage.Store on Postgres or SQLite. Queries are
// written with ? placeholders and rebound for the driver.
type SQLStore struct {
	db     DBInterface
	driver string
}

func NewPostgresStore(connStr string) (*SQLStore, error) {
	return open(DriverPostgres, connStr)
}

func NewSQLiteStore(path string) (*SQLStore, error) {
	return open(DriverSQLite, sqliteDSN(path))
}

// NewSQLStore wraps an open connection.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, driver: db.DriverName()}
}

func open(driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// one writer at a time
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db, driver: driver}, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}

func (s *SQLStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &SQLStore{db: tx, driver: s.driver}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *SQLStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *SQLStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *SQLStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

const jobCardColumns = `id, production_order, operation, sequence, operator, workstation, for_quantity,
	completed_qty, status, actual_start_time, actual_end_time, total_time_seconds, updated_at`

func (s *SQLStore) SaveJobCard(c models.JobCard) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(s.db.Rebind(`INSERT INTO job_cards (`+jobCardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.ProductionOrder, c.Operation, c.Sequence, c.Operator, c.Workstation, c.QuantityToManufacture,
		c.CompletedQuantity, c.Status, c.ActualStartTime, c.ActualEndTime, c.AccumulatedSeconds, c.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to insert job card %s", c.ID)
	}
	return nil
}

func (s *SQLStore) GetJobCard(id string) (models.JobCard, error) {
	var c models.JobCard
	err := s.db.Get(&c, s.db.Rebind(`SELECT `+jobCardColumns+` FROM job_cards WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.JobCard{}, storage.ErrNotFound
	}
	if err != nil {
		return models.JobCard{}, err
	}
	return normalize(c), nil
}

func (s *SQLStore) ListJobCards(filter models.JobCardFilter) ([]models.JobCard, error) {
	query := `SELECT ` + jobCardColumns + ` FROM job_cards WHERE 1 = 1`
	var args []interface{}
	if filter.ID != "" {
		query += ` AND id = ?`
		args = append(args, filter.ID)
	}
	if filter.ProductionOrder != "" {
		query += ` AND production_order = ?`
		args = append(args, filter.ProductionOrder)
	}
	if filter.Operator != "" {
		query += ` AND operator = ?`
		args = append(args, filter.Operator)
	}
	query += ` ORDER BY production_order, sequence`

	cards := []models.JobCard{}
	if err := s.db.Select(&cards, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for i := range cards {
		cards[i] = normalize(cards[i])
	}
	return cards, nil
}

func (s *SQLStore) UpdateJobCard(id string, patch models.JobCardPatch) (models.JobCard, error) {
	current, err := s.GetJobCard(id)
	if err != nil {
		return models.JobCard{}, err
	}
	c := patch.Apply(current)
	c.UpdatedAt = time.Now().UTC()
	_, err = s.db.Exec(s.db.Rebind(`UPDATE job_cards SET completed_qty = ?, status = ?, actual_start_time = ?,
		actual_end_time = ?, total_time_seconds = ?, updated_at = ? WHERE id = ?`),
		c.CompletedQuantity, c.Status, c.ActualStartTime, c.ActualEndTime, c.AccumulatedSeconds, c.UpdatedAt, id)
	if err != nil {
		return models.JobCard{}, errors.Wrapf(err, "failed to update job card %s", id)
	}
	return c, nil
}

func (s *SQLStore) SaveLog(l models.JobCardLog) error {
	_, err := s.db.Exec(s.db.Rebind(`INSERT INTO job_card_logs
		(id, job_card_id, action, status, completed_qty, total_time_seconds, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		l.ID, l.JobCardID, l.Action, l.Status, l.CompletedQuantity, l.AccumulatedSeconds, l.LoggedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to insert log for job card %s", l.JobCardID)
	}
	return nil
}

func (s *SQLStore) ListLogs(jobCardID string) ([]models.JobCardLog, error) {
	logs := []models.JobCardLog{}
	err := s.db.Select(&logs, s.db.Rebind(`SELECT id, job_card_id, action, status, completed_qty, total_time_seconds, logged_at
		FROM job_card_logs WHERE job_card_id = ? ORDER BY logged_at, id`), jobCardID)
	if err != nil {
		return nil, err
	}
	for i := range logs {
		logs[i].LoggedAt = logs[i].LoggedAt.UTC()
	}
	return logs, nil
}

// normalize puts timestamps read back from either driver into UTC.
func normalize(c models.JobCard) models.JobCard {
	c.UpdatedAt = c.UpdatedAt.UTC()
	if c.ActualStartTime != nil {
		t := c.ActualStartTime.UTC()
		c.ActualStartTime = &t
	}
	if c.ActualEndTime != nil {
		t := c.ActualEndTime.UTC()
		c.ActualEndTime = &t
	}
	return c
}
