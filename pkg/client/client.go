package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignatij/shopfloor/pkg/jobcard"
	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/ignatij/shopfloor/pkg/service"
	"github.com/ignatij/shopfloor/pkg/storage"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
)

// Logger defines the logging interface for Client
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// APIError is a non-2xx response of the job card API.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch e.Status {
	case http.StatusUnauthorized:
		return target == jobcard.ErrUnauthenticated
	case http.StatusNotFound:
		return target == storage.ErrNotFound
	case http.StatusConflict:
		return target == service.ErrConflict
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return target == service.ErrValidation
	}
	return false
}

// Client talks to the job card API and implements jobcard.StageAPI and
// jobcard.Authorizer. Calls go through a circuit breaker that opens after
// consecutive transport or server errors.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  Logger
}

func New(baseURL, token string, logger Logger) *Client {
	settings := gobreaker.Settings{
		Name:        "shopfloor-api",
		MaxRequests: 1,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			// client errors say nothing about the server's health
			return err == nil || (errors.As(err, &apiErr) && apiErr.Status < 500)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Authorize fails when no token is configured. A rejected token surfaces as
// ErrUnauthenticated from the request that carries it.
func (c *Client) Authorize(ctx context.Context) error {
	if c.token == "" {
		return errors.Wrap(jobcard.ErrUnauthenticated, "no API token configured")
	}
	return nil
}

// VerifySession checks the configured token against the API.
func (c *Client) VerifySession(ctx context.Context) error {
	if err := c.Authorize(ctx); err != nil {
		return err
	}
	return c.doRequest(ctx, http.MethodGet, "/api/v1/session", nil, nil, nil)
}

func (c *Client) ListStages(ctx context.Context, filter models.JobCardFilter) ([]models.JobCard, error) {
	query := url.Values{}
	if filter.ID != "" {
		query.Set("id", filter.ID)
	}
	if filter.ProductionOrder != "" {
		query.Set("production_order", filter.ProductionOrder)
	}
	if filter.Operator != "" {
		query.Set("operator", filter.Operator)
	}
	var cards []models.JobCard
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/job-cards", query, nil, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (c *Client) UpdateStage(ctx context.Context, id string, patch models.JobCardPatch) (models.JobCard, error) {
	var card models.JobCard
	if err := c.doRequest(ctx, http.MethodPatch, "/api/v1/job-cards/"+url.PathEscape(id), nil, patch, &card); err != nil {
		return models.JobCard{}, err
	}
	return card, nil
}

func (c *Client) GetJobCard(ctx context.Context, id string) (models.JobCard, error) {
	var card models.JobCard
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/job-cards/"+url.PathEscape(id), nil, nil, &card); err != nil {
		return models.JobCard{}, err
	}
	return card, nil
}

func (c *Client) ListLogs(ctx context.Context, id string) ([]models.JobCardLog, error) {
	var logs []models.JobCardLog
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/job-cards/"+url.PathEscape(id)+"/logs", nil, nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (c *Client) ImportJobCards(ctx context.Context, cards []models.JobCard) error {
	return c.doRequest(ctx, http.MethodPost, "/api/v1/job-cards", nil, cards, nil)
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.send(ctx, method, path, query, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(raw)
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode %s %s response", method, path)
	}
	return nil
}
