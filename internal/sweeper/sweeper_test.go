package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/command"
	"github.com/nerrad567/gray-logic-relay/internal/device"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-relay/internal/mailbox"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeCommands struct {
	purged    int64
	err       error
	calls     atomic.Int32
	olderThan time.Duration
}

func (f *fakeCommands) PurgeCompleted(_ context.Context, olderThan time.Duration) (int64, error) {
	f.calls.Add(1)
	f.olderThan = olderThan
	return f.purged, f.err
}

type fakeResponses struct {
	purged int64
	err    error
	calls  atomic.Int32
}

func (f *fakeResponses) PurgeOlderThan(_ context.Context, _ time.Duration) (int64, error) {
	f.calls.Add(1)
	return f.purged, f.err
}

type fakeDevices struct {
	expired []device.Device
	err     error
	calls   atomic.Int32
}

func (f *fakeDevices) SweepExpired(_ context.Context, _ time.Duration) ([]device.Device, error) {
	f.calls.Add(1)
	return f.expired, f.err
}

type fakeEvents struct {
	mu        sync.Mutex
	presences []mqtt.Presence
	summaries []any
	err       error
}

func (f *fakeEvents) PublishPresence(_ context.Context, p mqtt.Presence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presences = append(f.presences, p)
	return f.err
}

func (f *fakeEvents) PublishSweep(_ context.Context, summary any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, summary)
	return f.err
}

type fakeMetrics struct {
	mu      sync.Mutex
	records [][4]int64
}

func (f *fakeMetrics) RecordSweep(commandsPurged, responsesPurged, devicesExpired int64, failedSteps int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, [4]int64{commandsPurged, responsesPurged, devicesExpired, int64(failedSteps)})
}

func newFakeSweeper(t *testing.T, cmds *fakeCommands, resps *fakeResponses, devs *fakeDevices) *Sweeper {
	t.Helper()
	s, err := New(Config{
		Interval:  time.Hour,
		Commands:  cmds,
		Responses: resps,
		Devices:   devs,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() with no collaborators should fail")
	}
}

func TestNew_Defaults(t *testing.T) {
	cmds := &fakeCommands{}
	s, err := New(Config{Commands: cmds, Responses: &fakeResponses{}, Devices: &fakeDevices{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.Interval() != DefaultInterval {
		t.Errorf("Interval() = %v, want %v", s.Interval(), DefaultInterval)
	}

	s.RunOnce(context.Background())
	if cmds.olderThan != DefaultCommandTTL {
		t.Errorf("command TTL = %v, want %v", cmds.olderThan, DefaultCommandTTL)
	}
}

// =============================================================================
// RunOnce
// =============================================================================

func TestRunOnce_Counts(t *testing.T) {
	cmds := &fakeCommands{purged: 4}
	resps := &fakeResponses{purged: 2}
	devs := &fakeDevices{expired: []device.Device{{ID: "ext-install-ABC123", Code: "ABC123", Status: device.StatusOffline}}}
	s := newFakeSweeper(t, cmds, resps, devs)

	report := s.RunOnce(context.Background())

	if report.CommandsPurged != 4 || report.ResponsesPurged != 2 || report.DevicesExpired != 1 {
		t.Errorf("report = %+v", report)
	}
	if report.RunID == "" {
		t.Error("report has no run id")
	}
	if err := report.Err(); err != nil {
		t.Errorf("report.Err() = %v, want nil", err)
	}
}

func TestRunOnce_StepsAreIndependent(t *testing.T) {
	errStore := errors.New("disk I/O error")
	cmds := &fakeCommands{err: errStore}
	resps := &fakeResponses{purged: 3}
	devs := &fakeDevices{err: errStore}
	s := newFakeSweeper(t, cmds, resps, devs)

	report := s.RunOnce(context.Background())

	if cmds.calls.Load() != 1 || resps.calls.Load() != 1 || devs.calls.Load() != 1 {
		t.Fatalf("calls = %d/%d/%d, want 1/1/1", cmds.calls.Load(), resps.calls.Load(), devs.calls.Load())
	}
	if report.ResponsesPurged != 3 {
		t.Errorf("ResponsesPurged = %d, want 3", report.ResponsesPurged)
	}
	if len(report.Failures) != 2 {
		t.Fatalf("failures = %v, want 2", report.Failures)
	}
	if report.Failures[0].Step != StepCommands || report.Failures[1].Step != StepDevices {
		t.Errorf("failed steps = %s, %s", report.Failures[0].Step, report.Failures[1].Step)
	}
	if !errors.Is(report.Err(), errStore) {
		t.Errorf("report.Err() = %v, want wrapping %v", report.Err(), errStore)
	}
}

func TestRunOnce_AnnouncesExpiredDevices(t *testing.T) {
	seen := time.Date(2026, 10, 18, 11, 0, 0, 0, time.UTC)
	devs := &fakeDevices{expired: []device.Device{
		{ID: "ext-install-ABC123", Code: "ABC123", Kind: "chrome-extension", Status: device.StatusOffline, LastSeen: seen},
		{ID: "ext-install-XYZ789", Code: "XYZ789", Status: device.StatusOffline, LastSeen: seen},
	}}
	events := &fakeEvents{}
	metrics := &fakeMetrics{}

	s, err := New(Config{
		Commands:  &fakeCommands{purged: 1},
		Responses: &fakeResponses{},
		Devices:   devs,
		Events:    events,
		Metrics:   metrics,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	s.RunOnce(context.Background())

	if len(events.presences) != 2 {
		t.Fatalf("presences = %d, want 2", len(events.presences))
	}
	p := events.presences[0]
	if p.Code != "ABC123" || p.Status != "offline" || p.Kind != "chrome-extension" || !p.LastSeen.Equal(seen) {
		t.Errorf("presence = %+v", p)
	}

	if len(events.summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(events.summaries))
	}
	raw, err := json.Marshal(events.summaries[0])
	if err != nil {
		t.Fatalf("marshal summary: %v", err)
	}
	var summary map[string]any
	if err := json.Unmarshal(raw, &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary["devices_expired"] != float64(2) || summary["commands_purged"] != float64(1) {
		t.Errorf("summary = %s", raw)
	}
	if _, ok := summary["failed_steps"]; ok {
		t.Errorf("summary lists failed steps on a clean run: %s", raw)
	}

	if len(metrics.records) != 1 || metrics.records[0] != [4]int64{1, 0, 2, 0} {
		t.Errorf("metrics = %v, want [[1 0 2 0]]", metrics.records)
	}
}

func TestRunOnce_PublishFailureIsNotFatal(t *testing.T) {
	events := &fakeEvents{err: mqtt.ErrNotConnected}
	devs := &fakeDevices{expired: []device.Device{{ID: "ext-install-ABC123", Code: "ABC123"}}}

	s, err := New(Config{
		Commands:  &fakeCommands{},
		Responses: &fakeResponses{},
		Devices:   devs,
		Events:    events,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	report := s.RunOnce(context.Background())
	if report.Err() != nil {
		t.Errorf("report.Err() = %v, want nil", report.Err())
	}
	if len(events.summaries) != 1 {
		t.Errorf("summary still expected after presence failure, got %d", len(events.summaries))
	}
}

// =============================================================================
// Loop
// =============================================================================

func TestRun_SweepsImmediatelyAndStops(t *testing.T) {
	cmds := &fakeCommands{}
	s := newFakeSweeper(t, cmds, &fakeResponses{}, &fakeDevices{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for cmds.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if cmds.calls.Load() == 0 {
		t.Fatal("no sweep ran after Start")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}

	// The interval is an hour, so only the initial run happened.
	if got := cmds.calls.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
}

func TestRun_ReturnsOnContextCancel(t *testing.T) {
	s := newFakeSweeper(t, &fakeCommands{}, &fakeResponses{}, &fakeDevices{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRun_Ticks(t *testing.T) {
	cmds := &fakeCommands{}
	s, err := New(Config{
		Interval:  10 * time.Millisecond,
		Commands:  cmds,
		Responses: &fakeResponses{},
		Devices:   &fakeDevices{},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for cmds.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := cmds.calls.Load(); got < 3 {
		t.Errorf("runs = %d, want at least 3", got)
	}
}

// =============================================================================
// End to end against SQLite
// =============================================================================

func TestRunOnce_SQLite(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB), 10*time.Minute)
	registry.SetClock(clock)
	queue := command.NewQueue(command.NewSQLiteRepository(db.DB))
	queue.SetClock(clock)
	box := mailbox.New(mailbox.NewSQLiteRepository(db.DB))
	box.SetClock(clock)

	dev, err := registry.Register(ctx, "ext-install-ABC123", "chrome-extension")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	for _, body := range []string{`{"action":"LOCK"}`, `{"action":"UNLOCK"}`} {
		if _, err := queue.Enqueue(ctx, dev.ID, dev.Code, []byte(body)); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	if got, err := queue.DrainPending(ctx, dev.ID, 1); err != nil || len(got) != 1 {
		t.Fatalf("DrainPending() = %d, %v", len(got), err)
	}
	if _, err := box.Post(ctx, dev.ID, dev.Code, []byte(`{"status":"locked"}`)); err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	now = now.Add(2 * time.Hour)

	s, err := New(Config{
		Interval:     time.Minute,
		CommandTTL:   time.Hour,
		ResponseTTL:  30 * time.Minute,
		OfflineAfter: 10 * time.Minute,
		Commands:     queue,
		Responses:    box,
		Devices:      registry,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.SetClock(clock)

	report := s.RunOnce(ctx)
	if err := report.Err(); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if report.CommandsPurged != 1 || report.ResponsesPurged != 1 || report.DevicesExpired != 1 {
		t.Errorf("report = %+v, want 1/1/1", report)
	}

	counts, err := queue.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts[command.StatusPending] != 1 || counts[command.StatusCompleted] != 0 {
		t.Errorf("command counts = %v, want 1 pending, 0 completed", counts)
	}

	// The offline device still gets its pending command when it polls again.
	if _, err := registry.Heartbeat(ctx, dev.ID); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	got, err := queue.DrainPending(ctx, dev.ID, 0)
	if err != nil {
		t.Fatalf("DrainPending() error = %v", err)
	}
	if len(got) != 1 || string(got[0].Payload) != `{"action":"UNLOCK"}` {
		t.Errorf("DrainPending() = %+v, want the UNLOCK command", got)
	}

	// A second run has nothing to do.
	report = s.RunOnce(ctx)
	if report.CommandsPurged != 0 || report.ResponsesPurged != 0 || report.DevicesExpired != 0 {
		t.Errorf("second report = %+v, want zeros", report)
	}
}
