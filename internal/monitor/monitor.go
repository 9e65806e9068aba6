package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"torrentstream/seedwarden/internal/domain"
	"torrentstream/seedwarden/internal/domain/ports"
	"torrentstream/seedwarden/internal/metrics"
)

const (
	defaultInterval         = 30 * time.Second
	defaultPauseResumeDelay = 2 * time.Second
	tracerName              = "torrentstream/seedwarden/monitor"
)

var ErrCollect = errors.New("collect transfers failed")

type Config struct {
	// Interval between poll cycles when Start is called without one.
	Interval time.Duration
	// PauseResumeDelay is the gap between pause and resume at level 3.
	// Negative disables the wait.
	PauseResumeDelay time.Duration
	// OptimizeInterval runs the priority optimizer inside the polling
	// session. Zero disables it.
	OptimizeInterval time.Duration
	// StatsCacheTTL is how long a computed summary stays in the stats cache.
	StatsCacheTTL time.Duration
}

// Status describes the current monitoring session.
type Status struct {
	Running     bool          `json:"running"`
	Interval    time.Duration `json:"interval"`
	LedgerSize  int           `json:"ledgerSize"`
	Cycles      int64         `json:"cycles"`
	LastCycleAt time.Time     `json:"lastCycleAt,omitzero"`
	LastError   string        `json:"lastError,omitempty"`
}

// Monitor supervises the transfers of one torrent client. The stall ledger
// belongs to the instance, so independent monitors never interfere.
type Monitor struct {
	client     ports.TransferClient
	logger     *slog.Logger
	alerts     ports.AlertRepository
	notifier   ports.AlertNotifier
	events     ports.EventPublisher
	statsCache ports.StatsCache
	cfg        Config
	now        func() time.Time

	// mu guards the ledger and serialises every pass that issues commands
	// to the client.
	mu     sync.Mutex
	ledger *Ledger

	// statusMu guards the cycle bookkeeping only, so Status never waits
	// behind a cycle that is blocked on the client.
	statusMu    sync.Mutex
	cycles      int64
	lastCycleAt time.Time
	lastErr     string
	ledgerSize  int

	sessionMu sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	interval  time.Duration

	statsGroup singleflight.Group
}

type Option func(*Monitor)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func WithConfig(cfg Config) Option {
	return func(m *Monitor) {
		m.cfg = cfg
	}
}

func WithAlertRepository(repo ports.AlertRepository) Option {
	return func(m *Monitor) {
		m.alerts = repo
	}
}

func WithNotifier(n ports.AlertNotifier) Option {
	return func(m *Monitor) {
		m.notifier = n
	}
}

func WithEventPublisher(p ports.EventPublisher) Option {
	return func(m *Monitor) {
		m.events = p
	}
}

func WithStatsCache(cache ports.StatsCache) Option {
	return func(m *Monitor) {
		m.statsCache = cache
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

func New(client ports.TransferClient, opts ...Option) *Monitor {
	m := &Monitor{
		client: client,
		ledger: NewLedger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.cfg.Interval <= 0 {
		m.cfg.Interval = defaultInterval
	}
	if m.cfg.PauseResumeDelay == 0 {
		m.cfg.PauseResumeDelay = defaultPauseResumeDelay
	}
	return m
}

// Start launches the polling goroutine. A second call while a session is
// active logs a warning and returns false. interval <= 0 uses Config.Interval.
// The session ends when Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) bool {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if m.activeLocked() {
		m.logger.Warn("monitor: already running, ignoring start",
			slog.Duration("interval", m.interval))
		return false
	}
	if interval <= 0 {
		interval = m.cfg.Interval
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.interval = interval

	go func() {
		defer close(done)
		m.run(runCtx, interval)
	}()

	m.logger.Info("monitor: started",
		slog.Duration("interval", interval),
		slog.Duration("optimizeInterval", m.cfg.OptimizeInterval))
	return true
}

// Stop cancels the polling goroutine and waits for it to return. It is a
// no-op when nothing is running.
func (m *Monitor) Stop() {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
	m.logger.Info("monitor: stopped")
}

// Running reports whether a polling session is active.
func (m *Monitor) Running() bool {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	return m.activeLocked()
}

func (m *Monitor) activeLocked() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		// Parent context ended the session on its own.
		return false
	default:
		return true
	}
}

func (m *Monitor) Status() Status {
	m.sessionMu.Lock()
	running := m.activeLocked()
	interval := m.interval
	m.sessionMu.Unlock()

	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return Status{
		Running:     running,
		Interval:    interval,
		LedgerSize:  m.ledgerSize,
		Cycles:      m.cycles,
		LastCycleAt: m.lastCycleAt,
		LastError:   m.lastErr,
	}
}

func (m *Monitor) beginCycle() {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.cycles++
	m.lastCycleAt = m.now().UTC()
}

func (m *Monitor) setLastError(err error) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	if err == nil {
		m.lastErr = ""
		return
	}
	m.lastErr = err.Error()
}

// syncLedgerSize publishes the ledger size to Status and the gauge. Callers
// hold mu.
func (m *Monitor) syncLedgerSize() {
	n := m.ledger.Len()
	metrics.StallLedgerSize.Set(float64(n))
	m.statusMu.Lock()
	m.ledgerSize = n
	m.statusMu.Unlock()
}

func (m *Monitor) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var optimizeC <-chan time.Time
	if m.cfg.OptimizeInterval > 0 {
		optimizeTicker := time.NewTicker(m.cfg.OptimizeInterval)
		defer optimizeTicker.Stop()
		optimizeC = optimizeTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.safeCycle(ctx)
		case <-optimizeC:
			m.safeOptimize(ctx)
		}
	}
}

// safeCycle runs one cycle and swallows its failure so a single bad cycle
// never ends monitoring.
func (m *Monitor) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor: poll cycle panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	if err := m.RunCycle(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return
		}
		m.logger.Warn("monitor: poll cycle failed", slog.String("error", err.Error()))
	}
}

func (m *Monitor) safeOptimize(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor: optimize panicked", slog.Any("panic", r))
		}
	}()
	if _, err := m.OptimizePriorities(ctx); err != nil && ctx.Err() == nil {
		m.logger.Warn("monitor: scheduled optimize failed", slog.String("error", err.Error()))
	}
}

// RunCycle performs one poll: collect a snapshot batch and route every
// transfer. A failure on one transfer is logged and does not stop the rest
// of the batch; only a failed collection is returned.
func (m *Monitor) RunCycle(ctx context.Context) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "monitor.poll_cycle")
	defer span.End()

	start := time.Now()
	metrics.PollCyclesTotal.Inc()
	defer func() {
		metrics.PollDuration.Observe(time.Since(start).Seconds())
	}()

	m.beginCycle()

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.syncLedgerSize()

	transfers, err := m.client.ListTransfers(ctx)
	if err != nil {
		metrics.PollFailuresTotal.Inc()
		m.setLastError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "collect failed")
		return fmt.Errorf("%w: %v", ErrCollect, err)
	}
	m.setLastError(nil)
	span.SetAttributes(attribute.Int("transfers", len(transfers)))

	for _, t := range transfers {
		if err := ctx.Err(); err != nil {
			return err
		}
		route := Classify(t)
		if err := m.dispatch(ctx, route, t); err != nil {
			m.logger.Warn("monitor: transfer action failed",
				slog.String("id", string(t.ID)),
				slog.String("name", t.Name),
				slog.String("route", route.String()),
				slog.String("error", err.Error()))
		}
	}

	m.pruneLedger(transfers)
	recordStatsGauges(Summarize(transfers, m.now()))
	return nil
}

// pruneLedger drops entries of transfers the client no longer lists. It only
// runs after a full batch was processed.
func (m *Monitor) pruneLedger(transfers []domain.TransferSnapshot) {
	present := make(map[domain.TransferID]struct{}, len(transfers))
	for _, t := range transfers {
		present[t.ID] = struct{}{}
	}
	for _, id := range m.ledger.Retain(present) {
		m.logger.Debug("monitor: dropped stall record of removed transfer",
			slog.String("id", string(id)))
	}
}

func (m *Monitor) dispatch(ctx context.Context, route Route, t domain.TransferSnapshot) error {
	switch route {
	case RouteStalled:
		return m.escalate(ctx, t)
	case RouteAssureSeeding:
		return m.assureSeeding(ctx, t)
	case RouteSeeding:
		m.observeSeeding(t)
	}
	return nil
}

// Ledger returns a copy of the current stall counters.
func (m *Monitor) Ledger() map[domain.TransferID]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.Snapshot()
}

// ResetStall drops the stall record of one transfer, for an operator who has
// dealt with it by hand. It reports whether an entry existed.
func (m *Monitor) ResetStall(id domain.TransferID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cleared := m.ledger.Clear(id)
	m.syncLedgerSize()
	return cleared
}

func (m *Monitor) publish(event domain.MonitorEvent) {
	if m.events == nil {
		return
	}
	if event.At.IsZero() {
		event.At = m.now().UTC()
	}
	m.events.Publish(event)
}

func commandFailed(command string, err error) error {
	metrics.CommandFailuresTotal.WithLabelValues(command).Inc()
	return fmt.Errorf("%s: %w", command, err)
}
