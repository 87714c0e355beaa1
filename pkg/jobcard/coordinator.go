package jobcard

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// StageAPI is the persistence backend of the job cards.
type StageAPI interface {
	ListStages(ctx context.Context, filter models.JobCardFilter) ([]models.JobCard, error)
	// UpdateStage persists patch and returns the authoritative record.
	UpdateStage(ctx context.Context, id string, patch models.JobCardPatch) (models.JobCard, error)
}

// Authorizer is implemented by a StageAPI that can check its credentials
// without a round trip. Only errors wrapping ErrUnauthenticated refuse the
// call; a StageAPI that answers 401 later must map it to ErrUnauthenticated too.
type Authorizer interface {
	Authorize(ctx context.Context) error
}

// Logger defines the logging interface for the Coordinator
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Recorder receives the outcome of every transition.
type Recorder interface {
	ObserveTransition(action, outcome string)
}

const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// DefaultPersistTimeout bounds a single UpdateStage call.
const DefaultPersistTimeout = 10 * time.Second

// StageView is a job card together with its derived gating and timer state.
type StageView struct {
	Card            models.JobCard
	AllowedQuantity decimal.Decimal
	Actionable      bool
	ElapsedSeconds  int64
	Running         bool
	Unsynced        bool // a start/pause was not confirmed by the backend
}

// Result is the outcome of a successful transition.
type Result struct {
	Card     models.JobCard
	Warning  string   // non-blocking, e.g. under-completion
	Unlocked []string // job cards that became actionable
}

type Option func(*Coordinator)

// WithClock sets the wall clock used for timestamps and timers.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithTick registers a callback invoked every interval for each running timer.
func WithTick(fn TickFunc, interval time.Duration) Option {
	return func(c *Coordinator) {
		c.tick = fn
		c.tickInterval = interval
	}
}

// WithPersistTimeout bounds each UpdateStage call.
func WithPersistTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.persistTimeout = d }
}

// WithRecorder reports transition outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// Coordinator owns the job cards of one order (or one operator's view), keeps
// their gates current and routes operator actions through Plan.
type Coordinator struct {
	api            StageAPI
	logger         Logger
	clock          Clock
	recorder       Recorder
	tick           TickFunc
	tickInterval   time.Duration
	persistTimeout time.Duration
	timers         *Timers
	lanes          *lanes

	mu         sync.RWMutex
	cards      map[string]models.JobCard // visible cards and all their siblings, local state
	confirmed  map[string]models.JobCard // as last acknowledged by the store; gates derive from these
	visible    []string
	resolution Resolution
	unsynced   map[string]bool
	closed     bool
}

func NewCoordinator(api StageAPI, logger Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:            api,
		logger:         logger,
		clock:          SystemClock(),
		persistTimeout: DefaultPersistTimeout,
		cards:          make(map[string]models.JobCard),
		confirmed:      make(map[string]models.JobCard),
		resolution:     Resolution{Gates: map[string]Gate{}},
		unsynced:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.timers = NewTimers(c.clock, c.tick, c.tickInterval)
	c.lanes = newLanes(0, logger)
	return c
}

// Load fetches the job cards matching filter, plus every sibling needed to
// gate them, and replaces the cached state. Timers of in_progress cards are
// resumed from their persisted duration.
func (c *Coordinator) Load(ctx context.Context, filter models.JobCardFilter) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.authorize(ctx); err != nil {
		return err
	}
	cards, err := c.api.ListStages(ctx, filter)
	if err != nil {
		return errors.Wrap(err, "failed to load job cards")
	}

	all := make(map[string]models.JobCard, len(cards))
	for _, card := range cards {
		all[card.ID] = card
	}
	if filter.ID != "" || filter.Operator != "" {
		orders := make(map[string]struct{})
		for _, card := range cards {
			orders[card.ProductionOrder] = struct{}{}
		}
		for order := range orders {
			siblings, err := c.api.ListStages(ctx, models.JobCardFilter{ProductionOrder: order})
			if err != nil {
				return errors.Wrapf(err, "failed to load job cards of production order %s", order)
			}
			for _, s := range siblings {
				all[s.ID] = s
			}
		}
	}

	list := make([]models.JobCard, 0, len(all))
	for _, card := range all {
		list = append(list, card)
	}
	res, err := Resolve(list)
	if err != nil {
		return err
	}

	visible := make([]models.JobCard, 0, len(cards))
	for _, card := range all {
		if filter.Matches(card) {
			visible = append(visible, card)
		}
	}
	sortCards(visible)

	c.mu.Lock()
	defer c.mu.Unlock()
	keep := make(map[string]bool, len(visible))
	c.visible = c.visible[:0]
	for _, card := range visible {
		c.visible = append(c.visible, card.ID)
		keep[card.ID] = true
		c.syncTimer(card, c.clock.Now())
	}
	for id := range c.cards {
		if !keep[id] {
			c.timers.Remove(id)
		}
	}
	c.cards = all
	c.confirmed = make(map[string]models.JobCard, len(all))
	for id, card := range all {
		c.confirmed[id] = card
	}
	c.resolution = res
	c.unsynced = make(map[string]bool)
	c.reportInconsistencies()
	c.logger.Infof("Loaded %d job cards (%d with siblings)", len(visible), len(all))
	return nil
}

func (c *Coordinator) Start(ctx context.Context, id string) (Result, error) {
	return c.transition(ctx, id, ActionStart, nil)
}

func (c *Coordinator) Pause(ctx context.Context, id string) (Result, error) {
	return c.transition(ctx, id, ActionPause, nil)
}

// Save records the completed quantity without changing the status.
func (c *Coordinator) Save(ctx context.Context, id string, qty decimal.Decimal) (Result, error) {
	return c.transition(ctx, id, ActionSave, &qty)
}

// Complete finishes a job card. A nil qty keeps the recorded completed quantity.
func (c *Coordinator) Complete(ctx context.Context, id string, qty *decimal.Decimal) (Result, error) {
	return c.transition(ctx, id, ActionComplete, qty)
}

// Retry re-sends the locally held status, timestamps and duration of a job
// card whose start or pause was not confirmed.
func (c *Coordinator) Retry(ctx context.Context, id string) (Result, error) {
	if c.isClosed() {
		return Result{}, ErrClosed
	}
	var res Result
	var opErr error
	if err := c.lanes.Do(ctx, id, func(ctx context.Context) {
		res, opErr = c.retry(ctx, id)
	}); err != nil {
		return Result{}, err
	}
	return res, opErr
}

func (c *Coordinator) transition(ctx context.Context, id string, action Action, qty *decimal.Decimal) (Result, error) {
	if c.isClosed() {
		return Result{}, ErrClosed
	}
	var res Result
	var opErr error
	if err := c.lanes.Do(ctx, id, func(ctx context.Context) {
		res, opErr = c.apply(ctx, id, action, qty)
	}); err != nil {
		return Result{}, err
	}
	return res, opErr
}

func (c *Coordinator) apply(ctx context.Context, id string, action Action, qty *decimal.Decimal) (Result, error) {
	if err := c.authorize(ctx); err != nil {
		c.record(action, OutcomeRejected)
		return Result{}, err
	}

	c.mu.Lock()
	card, ok := c.cards[id]
	if !ok || !c.isVisible(id) {
		c.mu.Unlock()
		c.record(action, OutcomeRejected)
		return Result{}, rejectf(id, action, ErrUnknownJobCard, "job card is not loaded")
	}
	gate, _ := c.resolution.Gate(id)
	now := c.clock.Now()
	timerBefore := c.timers.Snapshot(id)
	tr, err := Plan(card, gate, action, qty, now, c.timers.ElapsedAt(id, now))
	if err != nil {
		c.mu.Unlock()
		c.logger.Warnf("Rejected %s on job card %s: %v", action, id, err)
		c.record(action, OutcomeRejected)
		return Result{}, err
	}
	if c.unsynced[id] {
		// carry the unconfirmed status and timestamps along
		tr.Patch.Status = &tr.After.Status
		tr.Patch.ActualStartTime = tr.After.ActualStartTime
		tr.Patch.ActualEndTime = tr.After.ActualEndTime
	}

	before := c.resolution
	c.cards[id] = tr.After
	if tr.StartClock {
		c.timers.Start(id)
	}
	if tr.StopClock {
		c.timers.Stop(id)
	}
	c.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, c.persistTimeout)
	saved, err := c.api.UpdateStage(pctx, id, tr.Patch)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			c.cards[id] = tr.Before
			c.timers.Restore(id, timerBefore)
			c.logger.Errorf("Rejected %s of job card %s: %v", action, id, err)
			c.record(action, OutcomeRejected)
			return Result{}, err
		}
		rollback := action == ActionSave || action == ActionComplete
		if rollback {
			c.cards[id] = tr.Before
			c.timers.Restore(id, timerBefore)
		} else {
			c.unsynced[id] = true
		}
		c.logger.Errorf("Failed to persist %s of job card %s: %v", action, id, err)
		c.record(action, OutcomeFailed)
		return Result{}, &PersistenceError{JobCardID: id, Action: action, RolledBack: rollback, Err: err}
	}

	c.adopt(saved, now)
	delete(c.unsynced, id)
	if tr.Warning != "" {
		c.logger.Warnf("Job card %s: %s", id, tr.Warning)
	}
	c.logger.Infof("Applied %s on job card %s (status %s, completed %s, %ds)",
		action, id, saved.Status, saved.CompletedQuantity, saved.AccumulatedSeconds)
	c.record(action, OutcomeApplied)
	return Result{Card: saved, Warning: tr.Warning, Unlocked: Unlocked(before, c.resolution)}, nil
}

func (c *Coordinator) retry(ctx context.Context, id string) (Result, error) {
	if err := c.authorize(ctx); err != nil {
		c.record(ActionRetry, OutcomeRejected)
		return Result{}, err
	}
	c.mu.RLock()
	card, ok := c.cards[id]
	pending := c.unsynced[id]
	c.mu.RUnlock()
	if !ok {
		c.record(ActionRetry, OutcomeRejected)
		return Result{}, rejectf(id, ActionRetry, ErrUnknownJobCard, "job card is not loaded")
	}
	if !pending {
		return Result{Card: card}, nil
	}

	now := c.clock.Now()
	seconds := c.timers.ElapsedAt(id, now)
	patch := models.JobCardPatch{
		Status:             &card.Status,
		ActualStartTime:    card.ActualStartTime,
		ActualEndTime:      card.ActualEndTime,
		AccumulatedSeconds: &seconds,
	}
	pctx, cancel := context.WithTimeout(ctx, c.persistTimeout)
	saved, err := c.api.UpdateStage(pctx, id, patch)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Errorf("Retry of job card %s failed: %v", id, err)
		c.record(ActionRetry, OutcomeFailed)
		return Result{}, &PersistenceError{JobCardID: id, Action: ActionRetry, Err: err}
	}
	before := c.resolution
	c.adopt(saved, now)
	delete(c.unsynced, id)
	c.record(ActionRetry, OutcomeApplied)
	return Result{Card: saved, Unlocked: Unlocked(before, c.resolution)}, nil
}

// adopt replaces the cached record with the authoritative one. Callers hold c.mu.
func (c *Coordinator) adopt(card models.JobCard, at time.Time) {
	c.cards[card.ID] = card
	c.confirmed[card.ID] = card
	c.syncTimer(card, at)
	c.resolve()
}

// syncTimer aligns the timer of card with its persisted status and duration.
func (c *Coordinator) syncTimer(card models.JobCard, at time.Time) {
	if card.Status == models.InProgressJobCardStatus {
		c.timers.Start(card.ID)
	} else {
		c.timers.Stop(card.ID)
	}
	c.timers.Rebase(card.ID, card.AccumulatedSeconds, at)
}

// resolve recomputes every gate from the confirmed cards, so no stage is
// released by a quantity the store has not acknowledged. Callers hold c.mu.
func (c *Coordinator) resolve() {
	list := make([]models.JobCard, 0, len(c.confirmed))
	for _, card := range c.confirmed {
		list = append(list, card)
	}
	res, err := Resolve(list)
	if err != nil {
		c.logger.Errorf("Failed to resolve job card gates: %v", err)
		return
	}
	c.resolution = res
	c.reportInconsistencies()
}

func (c *Coordinator) reportInconsistencies() {
	for _, inc := range c.resolution.Inconsistencies {
		c.logger.Warnf("Data inconsistency: %v", inc)
	}
}

func (c *Coordinator) authorize(ctx context.Context) error {
	a, ok := c.api.(Authorizer)
	if !ok {
		return nil
	}
	err := a.Authorize(ctx)
	if err == nil || errors.Is(err, ErrUnauthenticated) {
		return err
	}
	// not a credential problem; the persistence call reports it
	c.logger.Warnf("Authorization check failed: %v", err)
	return nil
}

func (c *Coordinator) record(action Action, outcome string) {
	if c.recorder != nil {
		c.recorder.ObserveTransition(string(action), outcome)
	}
}

func (c *Coordinator) isVisible(id string) bool {
	for _, v := range c.visible {
		if v == id {
			return true
		}
	}
	return false
}

func (c *Coordinator) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Stage returns the view of one visible job card.
func (c *Coordinator) Stage(id string) (StageView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.isVisible(id) {
		return StageView{}, false
	}
	return c.view(id), true
}

// Stages returns the visible job cards ordered by production order and sequence.
func (c *Coordinator) Stages() []StageView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	views := make([]StageView, 0, len(c.visible))
	for _, id := range c.visible {
		views = append(views, c.view(id))
	}
	return views
}

func (c *Coordinator) view(id string) StageView {
	gate, _ := c.resolution.Gate(id)
	return StageView{
		Card:            c.cards[id],
		AllowedQuantity: gate.AllowedQuantity,
		Actionable:      gate.Actionable,
		ElapsedSeconds:  c.timers.Elapsed(id),
		Running:         c.timers.Running(id),
		Unsynced:        c.unsynced[id],
	}
}

// Elapsed returns the live accumulated seconds of a job card.
func (c *Coordinator) Elapsed(id string) int64 {
	return c.timers.Elapsed(id)
}

// Inconsistencies returns the job cards whose completed quantity exceeds
// what their predecessor has released.
func (c *Coordinator) Inconsistencies() []*InconsistencyError {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*InconsistencyError(nil), c.resolution.Inconsistencies...)
}

// Orders summarizes the progress of every loaded production order.
func (c *Coordinator) Orders() []models.ProductionOrder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]models.JobCard, 0, len(c.cards))
	for _, card := range c.cards {
		list = append(list, card)
	}
	var orders []models.ProductionOrder
	for id, siblings := range groupByOrder(list) {
		o := models.ProductionOrder{ID: id, Stages: len(siblings)}
		for _, card := range siblings {
			o.QuantityToManufacture = card.QuantityToManufacture
			o.TotalSeconds += card.AccumulatedSeconds
			if card.IsTerminal() {
				o.CompletedStages++
			}
		}
		o.ProducedQuantity = siblings[len(siblings)-1].CompletedQuantity
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders
}

// Close stops all timers and waits for in-flight transitions.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.lanes.Close()
	c.timers.StopAll()
}

func sortCards(cards []models.JobCard) {
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].ProductionOrder != cards[j].ProductionOrder {
			return cards[i].ProductionOrder < cards[j].ProductionOrder
		}
		return cards[i].Sequence < cards[j].Sequence
	})
}
