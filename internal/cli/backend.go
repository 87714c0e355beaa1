package cli

import (
	"context"

	"github.com/ignatij/shopfloor/internal/config"
	"github.com/ignatij/shopfloor/internal/log"
	internal_storage "github.com/ignatij/shopfloor/internal/storage"
	"github.com/ignatij/shopfloor/pkg/client"
	"github.com/ignatij/shopfloor/pkg/jobcard"
	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/ignatij/shopfloor/pkg/service"
	"github.com/ignatij/shopfloor/pkg/storage"
)

// Backend is where the CLI reads and writes job cards: the REST API when
// API_URL is set, the database otherwise.
type Backend interface {
	jobcard.StageAPI
	ListLogs(ctx context.Context, id string) ([]models.JobCardLog, error)
	ImportJobCards(ctx context.Context, cards []models.JobCard) error
	Close() error
}

type remoteBackend struct {
	*client.Client
}

func (remoteBackend) Close() error { return nil }

// LocalBackend runs the job card service in-process on a store.
type LocalBackend struct {
	*service.JobCardService
	store storage.Store
}

func NewLocalBackend(store storage.Store) *LocalBackend {
	return &LocalBackend{JobCardService: service.NewJobCardService(store, log.GetLogger()), store: store}
}

func (b *LocalBackend) ListLogs(ctx context.Context, id string) ([]models.JobCardLog, error) {
	return b.JobCardService.ListLogs(id)
}

func (b *LocalBackend) ImportJobCards(ctx context.Context, cards []models.JobCard) error {
	return b.JobCardService.ImportJobCards(cards)
}

func (b *LocalBackend) Close() error {
	return b.store.Close()
}

func openBackend(cfg *config.Config) (Backend, error) {
	if cfg.Client.URL != "" {
		log.GetLogger().Debugf("Using API at %s", cfg.Client.URL)
		c := client.New(cfg.Client.URL, cfg.Client.Token, log.GetLogger())
		if err := c.VerifySession(context.Background()); err != nil {
			return nil, err
		}
		return remoteBackend{c}, nil
	}
	dsn, err := cfg.DatabaseDSN()
	if err != nil {
		return nil, err
	}
	store, err := internal_storage.InitStore(cfg.DB.Driver, dsn)
	if err != nil {
		return nil, err
	}
	return NewLocalBackend(store), nil
}
