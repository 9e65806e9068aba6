package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"torrentstream/seedwarden/internal/domain"
	"torrentstream/seedwarden/internal/domain/ports"
)

type clientCall struct {
	Op   string
	ID   domain.TransferID
	Tier domain.PriorityTier
}

type fakeClient struct {
	mu        sync.Mutex
	transfers []domain.TransferSnapshot
	listErr   error
	listCalls int
	calls     []clientCall
	failOps   map[string]error
}

func (f *fakeClient) setTransfers(ts ...domain.TransferSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = ts
}

func (f *fakeClient) ListTransfers(ctx context.Context) ([]domain.TransferSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.TransferSnapshot, len(f.transfers))
	copy(out, f.transfers)
	return out, nil
}

func (f *fakeClient) record(op string, id domain.TransferID, tier domain.PriorityTier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, clientCall{Op: op, ID: id, Tier: tier})
	if err, ok := f.failOps[op]; ok {
		return err
	}
	return nil
}

func (f *fakeClient) Reannounce(ctx context.Context, id domain.TransferID) error {
	return f.record("reannounce", id, "")
}

func (f *fakeClient) Pause(ctx context.Context, id domain.TransferID) error {
	return f.record("pause", id, "")
}

func (f *fakeClient) Resume(ctx context.Context, id domain.TransferID) error {
	return f.record("resume", id, "")
}

func (f *fakeClient) SetPriority(ctx context.Context, id domain.TransferID, tier domain.PriorityTier) error {
	return f.record("set_priority", id, tier)
}

// takeCalls returns the recorded commands and resets the log.
func (f *fakeClient) takeCalls() []clientCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.calls
	f.calls = nil
	return out
}

func (f *fakeClient) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func ops(calls []clientCall) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Op)
	}
	return out
}

type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts []domain.StallAlert
	err    error
}

func (f *fakeAlertRepo) Record(ctx context.Context, alert domain.StallAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return f.err
}

func (f *fakeAlertRepo) ListRecent(ctx context.Context, limit int) ([]domain.StallAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alerts, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []domain.StallAlert
}

func (f *fakeNotifier) NotifyStall(ctx context.Context, alert domain.StallAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.MonitorEvent
}

func (f *fakePublisher) Publish(event domain.MonitorEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakePublisher) ofKind(kind domain.EventKind) []domain.MonitorEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.MonitorEvent
	for _, e := range f.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeStatsCache struct {
	stats   domain.TransferStats
	ok      bool
	getErr  error
	setTTL  time.Duration
	setCall int
}

func (f *fakeStatsCache) Get(ctx context.Context) (domain.TransferStats, bool, error) {
	return f.stats, f.ok, f.getErr
}

func (f *fakeStatsCache) Set(ctx context.Context, stats domain.TransferStats, ttl time.Duration) error {
	f.setCall++
	f.setTTL = ttl
	f.stats = stats
	return nil
}

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestMonitor(client ports.TransferClient, opts ...Option) *Monitor {
	base := []Option{
		WithLogger(discardLogger()),
		WithConfig(Config{Interval: time.Hour, PauseResumeDelay: -1}),
	}
	return New(client, append(base, opts...)...)
}

func stalled(id string, progress float64) domain.TransferSnapshot {
	return domain.TransferSnapshot{
		ID:       domain.TransferID(id),
		Name:     "Transfer " + id,
		State:    domain.StateStalledDownload,
		Progress: progress,
	}
}

func withState(t domain.TransferSnapshot, state domain.TransferState) domain.TransferSnapshot {
	t.State = state
	return t
}

// blockingClient holds ListTransfers until release is closed or the call's
// ctx ends.
type blockingClient struct {
	*fakeClient
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	ctxMu   sync.Mutex
	lastCtx context.Context
}

func newBlockingClient() *blockingClient {
	return &blockingClient{
		fakeClient: &fakeClient{},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (b *blockingClient) ListTransfers(ctx context.Context) ([]domain.TransferSnapshot, error) {
	b.ctxMu.Lock()
	b.lastCtx = ctx
	b.ctxMu.Unlock()
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.fakeClient.ListTransfers(ctx)
}

func (b *blockingClient) listCtx() context.Context {
	b.ctxMu.Lock()
	defer b.ctxMu.Unlock()
	return b.lastCtx
}
