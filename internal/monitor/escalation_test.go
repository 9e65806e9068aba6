package monitor

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"torrentstream/seedwarden/internal/domain"
)

func TestActionForLevel(t *testing.T) {
	tests := []struct {
		level int
		want  Action
	}{
		{1, ActionObserve},
		{2, ActionReannounce},
		{3, ActionPauseResume},
		{4, ActionAlert},
		{5, ActionAlert},
		{40, ActionAlert},
	}
	for _, tt := range tests {
		if got := ActionForLevel(tt.level); got != tt.want {
			t.Errorf("ActionForLevel(%d) = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestEscalationSequenceThenRecovery(t *testing.T) {
	client := &fakeClient{}
	alerts := &fakeAlertRepo{}
	notifier := &fakeNotifier{}
	m := newTestMonitor(client, WithAlertRepository(alerts), WithNotifier(notifier))
	ctx := context.Background()

	client.setTransfers(domain.TransferSnapshot{ID: "a", Name: "A", State: domain.StateStalledDownload, Progress: 0.4})

	want := [][]string{
		{},
		{"reannounce"},
		{"pause", "resume"},
		{},
	}
	for cycle, wantOps := range want {
		if err := m.RunCycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", cycle+1, err)
		}
		got := ops(client.takeCalls())
		if !reflect.DeepEqual(got, wantOps) {
			t.Fatalf("cycle %d ops = %v, want %v", cycle+1, got, wantOps)
		}
		if n := m.Ledger()["a"]; n != cycle+1 {
			t.Fatalf("cycle %d ledger = %d, want %d", cycle+1, n, cycle+1)
		}
	}

	if len(alerts.alerts) != 1 {
		t.Fatalf("expected 1 recorded alert, got %d", len(alerts.alerts))
	}
	if alerts.alerts[0].StallCount != AlertLevel || alerts.alerts[0].TransferID != "a" {
		t.Fatalf("unexpected alert %+v", alerts.alerts[0])
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.alerts))
	}

	client.setTransfers(domain.TransferSnapshot{ID: "a", Name: "A", State: domain.StateUploading, Progress: 1})
	if err := m.RunCycle(ctx); err != nil {
		t.Fatalf("cycle 5: %v", err)
	}
	if _, ok := m.Ledger()["a"]; ok {
		t.Fatal("ledger entry should be removed after recovery")
	}
	if got := client.takeCalls(); len(got) != 0 {
		t.Fatalf("seeding observation should not command the client, got %v", ops(got))
	}
}

func TestEscalationBeyondAlertLevelOnlyLogs(t *testing.T) {
	client := &fakeClient{}
	alerts := &fakeAlertRepo{}
	m := newTestMonitor(client, WithAlertRepository(alerts))
	client.setTransfers(stalled("a", 0.1))

	for i := 0; i < 7; i++ {
		if err := m.RunCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", i+1, err)
		}
	}
	calls := client.takeCalls()
	if got := ops(calls); !reflect.DeepEqual(got, []string{"reannounce", "pause", "resume"}) {
		t.Fatalf("ops = %v", got)
	}
	if n := m.Ledger()["a"]; n != 7 {
		t.Fatalf("ledger = %d, want 7", n)
	}
	if len(alerts.alerts) != 1 {
		t.Fatalf("alert should be recorded once, got %d", len(alerts.alerts))
	}
}

func TestEscalationRestartsAfterRecovery(t *testing.T) {
	client := &fakeClient{}
	m := newTestMonitor(client)
	ctx := context.Background()

	client.setTransfers(stalled("a", 0.5))
	_ = m.RunCycle(ctx)
	_ = m.RunCycle(ctx)
	client.setTransfers(withState(stalled("a", 1), domain.StatePausedUpload))
	_ = m.RunCycle(ctx)
	if _, ok := m.Ledger()["a"]; ok {
		t.Fatal("seeding assurance should clear the entry")
	}
	client.takeCalls()

	client.setTransfers(stalled("a", 0.5))
	_ = m.RunCycle(ctx)
	if n := m.Ledger()["a"]; n != 1 {
		t.Fatalf("ledger = %d, want 1 after restart", n)
	}
	if got := client.takeCalls(); len(got) != 0 {
		t.Fatalf("level 1 should only observe, got %v", ops(got))
	}
}

func TestPlainDownloadingKeepsStallRecord(t *testing.T) {
	client := &fakeClient{}
	m := newTestMonitor(client)
	ctx := context.Background()

	client.setTransfers(stalled("a", 0.5))
	_ = m.RunCycle(ctx)
	_ = m.RunCycle(ctx)

	client.setTransfers(withState(stalled("a", 0.6), domain.StateDownloading))
	_ = m.RunCycle(ctx)
	if n := m.Ledger()["a"]; n != 2 {
		t.Fatalf("ledger = %d, want 2 (untouched)", n)
	}

	client.setTransfers(stalled("a", 0.6))
	_ = m.RunCycle(ctx)
	if n := m.Ledger()["a"]; n != 3 {
		t.Fatalf("ledger = %d, want 3", n)
	}
}

func TestStalledButCompleteIsNotEscalated(t *testing.T) {
	client := &fakeClient{}
	m := newTestMonitor(client)
	client.setTransfers(stalled("a", 1.0))

	_ = m.RunCycle(context.Background())
	if _, ok := m.Ledger()["a"]; ok {
		t.Fatal("complete transfer must not be tracked as stalled")
	}
	if got := ops(client.takeCalls()); !reflect.DeepEqual(got, []string{"resume"}) {
		t.Fatalf("ops = %v, want [resume]", got)
	}
}

func TestPerTransferFailureDoesNotStopBatch(t *testing.T) {
	client := &fakeClient{failOps: map[string]error{"reannounce": errBoom}}
	m := newTestMonitor(client)
	ctx := context.Background()

	client.setTransfers(stalled("a", 0.2), stalled("b", 0.2))
	_ = m.RunCycle(ctx)
	client.takeCalls()

	client.setTransfers(stalled("a", 0.2), stalled("b", 0.2), withState(stalled("c", 1), domain.StatePausedUpload))
	if err := m.RunCycle(ctx); err != nil {
		t.Fatalf("command failures must not fail the cycle: %v", err)
	}
	calls := client.takeCalls()
	want := []clientCall{
		{Op: "reannounce", ID: "a"},
		{Op: "reannounce", ID: "b"},
		{Op: "resume", ID: "c"},
	}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls = %+v, want %+v", calls, want)
	}
	if m.Ledger()["a"] != 2 || m.Ledger()["b"] != 2 {
		t.Fatalf("ledger = %v", m.Ledger())
	}
}

func TestPauseFailureSkipsResume(t *testing.T) {
	client := &fakeClient{failOps: map[string]error{"pause": errBoom}}
	publisher := &fakePublisher{}
	m := newTestMonitor(client, WithEventPublisher(publisher))
	client.setTransfers(stalled("a", 0.2))

	for i := 0; i < 3; i++ {
		_ = m.RunCycle(context.Background())
	}
	if got := ops(client.takeCalls()); !reflect.DeepEqual(got, []string{"reannounce", "pause"}) {
		t.Fatalf("ops = %v", got)
	}
	events := publisher.ofKind(domain.EventEscalation)
	if len(events) != 3 {
		t.Fatalf("expected 3 escalation events, got %d", len(events))
	}
	if events[2].Error == "" || events[2].Action != string(ActionPauseResume) {
		t.Fatalf("level 3 event should carry the error: %+v", events[2])
	}
}

func TestPauseResumeResumesAfterCancel(t *testing.T) {
	client := &fakeClient{}
	m := newTestMonitor(client, WithConfig(Config{PauseResumeDelay: time.Hour}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.pauseResume(ctx, "a")
	}()

	deadline := time.After(2 * time.Second)
	for {
		calls := client.takeCalls()
		if len(calls) > 0 {
			if calls[0].Op != "pause" {
				t.Fatalf("first call = %s, want pause", calls[0].Op)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("pause was never issued")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pauseResume did not return after cancel")
	}
	if got := ops(client.takeCalls()); !reflect.DeepEqual(got, []string{"resume"}) {
		t.Fatalf("ops after cancel = %v, want [resume]", got)
	}
}

func TestRunCycleCollectFailure(t *testing.T) {
	client := &fakeClient{listErr: errors.New("connection refused")}
	m := newTestMonitor(client)

	err := m.RunCycle(context.Background())
	if !errors.Is(err, ErrCollect) {
		t.Fatalf("err = %v, want ErrCollect", err)
	}
	status := m.Status()
	if status.LastError == "" || status.Cycles != 1 {
		t.Fatalf("status = %+v", status)
	}
	if len(client.takeCalls()) != 0 {
		t.Fatal("no commands expected on collect failure")
	}
}

func TestResetStall(t *testing.T) {
	client := &fakeClient{}
	m := newTestMonitor(client)
	client.setTransfers(stalled("a", 0.2))
	_ = m.RunCycle(context.Background())

	if !m.ResetStall("a") {
		t.Fatal("expected entry to exist")
	}
	if m.ResetStall("a") {
		t.Fatal("second reset should report no entry")
	}
	if len(m.Ledger()) != 0 {
		t.Fatalf("ledger = %v", m.Ledger())
	}
}

func TestLedgerDropsRemovedTransfers(t *testing.T) {
	client := &fakeClient{}
	m := newTestMonitor(client)
	ctx := context.Background()

	client.setTransfers(stalled("a", 0.2), stalled("b", 0.2))
	_ = m.RunCycle(ctx)
	client.setTransfers(stalled("b", 0.2))
	_ = m.RunCycle(ctx)

	want := map[domain.TransferID]int{"b": 2}
	if got := m.Ledger(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ledger = %v, want %v", got, want)
	}
	if n := m.Status().LedgerSize; n != 1 {
		t.Fatalf("status ledger size = %d, want 1", n)
	}

	client.mu.Lock()
	client.listErr = errBoom
	client.mu.Unlock()
	_ = m.RunCycle(ctx)
	if got := m.Ledger(); !reflect.DeepEqual(got, want) {
		t.Fatalf("failed collection must not prune, ledger = %v", got)
	}
}

func TestAlertCarriesClockTime(t *testing.T) {
	fixed := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	alerts := &fakeAlertRepo{}
	client := &fakeClient{}
	m := newTestMonitor(client, WithAlertRepository(alerts), WithClock(func() time.Time { return fixed }))
	client.setTransfers(stalled("a", 0.3))

	for i := 0; i < AlertLevel; i++ {
		_ = m.RunCycle(context.Background())
	}
	if len(alerts.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts.alerts))
	}
	got := alerts.alerts[0]
	if !got.RaisedAt.Equal(fixed) || got.ID != "a:1775030400" {
		t.Fatalf("alert = %+v", got)
	}
	if m.Status().LastCycleAt != fixed {
		t.Fatalf("last cycle at = %v", m.Status().LastCycleAt)
	}
}
