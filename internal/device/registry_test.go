package device

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device
	// For testing error paths
	registerErr error
	touchErr    error
	staleErr    error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		devices: make(map[string]*Device),
	}
}

func (m *MockRepository) Register(_ context.Context, d *Device, liveSince time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registerErr != nil {
		return m.registerErr
	}
	for _, other := range m.devices {
		if other.ID != d.ID && other.Code == d.Code && other.IsLive(liveSince) {
			return ErrCodeConflict
		}
	}
	if existing, ok := m.devices[d.ID]; ok {
		d.RegisteredAt = existing.RegisteredAt
		if existing.LastSeen.After(d.LastSeen) {
			d.LastSeen = existing.LastSeen
		}
	}
	stored := *d
	m.devices[d.ID] = &stored
	return nil
}

func (m *MockRepository) Touch(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.touchErr != nil {
		return false, m.touchErr
	}
	d, ok := m.devices[id]
	if !ok {
		return false, nil
	}
	if at.After(d.LastSeen) {
		d.LastSeen = at
	}
	d.Status = StatusOnline
	return true, nil
}

func (m *MockRepository) FindLiveByCode(ctx context.Context, code string, since time.Time) (*Device, error) {
	live, _ := m.ListLive(ctx, since)
	for _, d := range live {
		if d.Code == code {
			return &d, nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) ListLive(_ context.Context, since time.Time) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var devices []Device
	for _, d := range m.devices {
		if d.IsLive(since) {
			devices = append(devices, *d)
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].LastSeen.After(devices[j].LastSeen) })
	return devices, nil
}

func (m *MockRepository) MarkStale(_ context.Context, before time.Time) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.staleErr != nil {
		return nil, m.staleErr
	}
	var flipped []Device
	for _, d := range m.devices {
		if d.Status == StatusOnline && d.LastSeen.Before(before) {
			d.Status = StatusOffline
			flipped = append(flipped, *d)
		}
	}
	return flipped, nil
}

func (m *MockRepository) CountByStatus(_ context.Context) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := map[Status]int{StatusOnline: 0, StatusOffline: 0}
	for _, d := range m.devices {
		counts[d.Status]++
	}
	return counts, nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T) (*Registry, *MockRepository, *fakeClock) {
	t.Helper()
	repo := NewMockRepository()
	clock := newFakeClock()
	reg := NewRegistry(repo, 10*time.Minute)
	reg.SetClock(clock.Now)
	return reg, repo, clock
}

func TestRegistry_Register(t *testing.T) {
	reg, _, clock := newTestRegistry(t)
	ctx := context.Background()

	d, err := reg.Register(ctx, "ext-install-ABC123", "chrome-extension")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if d.Code != "ABC123" {
		t.Errorf("Code = %q, want ABC123", d.Code)
	}
	if d.Status != StatusOnline {
		t.Errorf("Status = %q, want online", d.Status)
	}
	if !d.LastSeen.Equal(clock.Now()) {
		t.Errorf("LastSeen = %v, want %v", d.LastSeen, clock.Now())
	}
}

func TestRegistry_Register_Idempotent(t *testing.T) {
	reg, _, clock := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.Register(ctx, "ext-install-ABC123", "")
	if err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	clock.Advance(time.Minute)
	second, err := reg.Register(ctx, "ext-install-ABC123", "")
	if err != nil {
		t.Fatalf("second Register() error = %v", err)
	}

	if first.Code != second.Code {
		t.Errorf("code changed on re-registration: %q then %q", first.Code, second.Code)
	}
	if !second.RegisteredAt.Equal(first.RegisteredAt) {
		t.Errorf("RegisteredAt changed: %v then %v", first.RegisteredAt, second.RegisteredAt)
	}
	if !second.LastSeen.After(first.LastSeen) {
		t.Errorf("LastSeen did not advance: %v then %v", first.LastSeen, second.LastSeen)
	}
}

func TestRegistry_Register_Invalid(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Register(ctx, "", ""); !errors.Is(err, ErrInvalidID) {
		t.Errorf("empty id: error = %v, want ErrInvalidID", err)
	}
	if _, err := reg.Register(ctx, "dev-ab!12", ""); !errors.Is(err, ErrInvalidID) {
		t.Errorf("bad suffix: error = %v, want ErrInvalidID", err)
	}
}

func TestRegistry_Register_CodeCollision(t *testing.T) {
	reg, _, clock := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Register(ctx, "first-ABC123", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, err := reg.Register(ctx, "second-abc123", "")
	if !errors.Is(err, ErrCodeConflict) {
		t.Fatalf("live holder: error = %v, want ErrCodeConflict", err)
	}

	// Once the holder has gone silent the code is free.
	clock.Advance(11 * time.Minute)
	d, err := reg.Register(ctx, "second-abc123", "")
	if err != nil {
		t.Fatalf("stale holder: Register() error = %v", err)
	}
	found, err := reg.LocateByCode(ctx, "ABC123")
	if err != nil {
		t.Fatalf("LocateByCode() error = %v", err)
	}
	if found.ID != d.ID {
		t.Errorf("LocateByCode() = %q, want %q", found.ID, d.ID)
	}
}

func TestRegistry_Heartbeat(t *testing.T) {
	reg, repo, clock := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Register(ctx, "ext-install-ABC123", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	clock.Advance(30 * time.Second)

	found, err := reg.Heartbeat(ctx, "ext-install-ABC123")
	if err != nil || !found {
		t.Fatalf("Heartbeat() = %v, %v; want true, nil", found, err)
	}
	if got := repo.devices["ext-install-ABC123"].LastSeen; !got.Equal(clock.Now()) {
		t.Errorf("LastSeen = %v, want %v", got, clock.Now())
	}
}

func TestRegistry_Heartbeat_UnknownDevice(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	found, err := reg.Heartbeat(context.Background(), "never-registered")
	if err != nil {
		t.Fatalf("Heartbeat() error = %v, want nil", err)
	}
	if found {
		t.Error("Heartbeat() found = true for unknown device")
	}
}

func TestRegistry_Heartbeat_RepositoryError(t *testing.T) {
	reg, repo, _ := newTestRegistry(t)
	repo.touchErr = errors.New("disk full")

	if _, err := reg.Heartbeat(context.Background(), "ext-install-ABC123"); err == nil {
		t.Error("Heartbeat() expected error from repository")
	}
}

func TestRegistry_LocateByCode(t *testing.T) {
	reg, _, clock := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Register(ctx, "ext-install-ABC123", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	t.Run("case insensitive", func(t *testing.T) {
		d, err := reg.LocateByCode(ctx, "abc123")
		if err != nil {
			t.Fatalf("LocateByCode() error = %v", err)
		}
		if d.ID != "ext-install-ABC123" {
			t.Errorf("ID = %q", d.ID)
		}
	})

	t.Run("invalid shape", func(t *testing.T) {
		if _, err := reg.LocateByCode(ctx, "abc"); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("error = %v, want ErrInvalidCode", err)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		if _, err := reg.LocateByCode(ctx, "ZZZZZZ"); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("error = %v, want ErrDeviceNotFound", err)
		}
	})

	t.Run("silent device is invisible", func(t *testing.T) {
		clock.Advance(10*time.Minute + time.Second)
		if _, err := reg.LocateByCode(ctx, "ABC123"); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestRegistry_OfflineAfter(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if got := reg.OfflineAfter(); got != 10*time.Minute {
		t.Errorf("OfflineAfter() = %v, want 10m", got)
	}
}

func TestRegistry_SweepExpired(t *testing.T) {
	reg, _, clock := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Register(ctx, "old-device-AAA111", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	clock.Advance(8 * time.Minute)
	if _, err := reg.Register(ctx, "new-device-BBB222", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	clock.Advance(3 * time.Minute)

	flipped, err := reg.SweepExpired(ctx, 0)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if len(flipped) != 1 || flipped[0].ID != "old-device-AAA111" {
		t.Fatalf("SweepExpired() = %+v, want only old-device-AAA111", flipped)
	}
	if flipped[0].Status != StatusOffline {
		t.Errorf("flipped status = %q, want offline", flipped[0].Status)
	}

	counts, err := reg.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts[StatusOnline] != 1 || counts[StatusOffline] != 1 {
		t.Errorf("Counts() = %v, want 1 online and 1 offline", counts)
	}

	// A heartbeat brings the device back.
	if _, err := reg.Heartbeat(ctx, "old-device-AAA111"); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if _, err := reg.LocateByCode(ctx, "aaa111"); err != nil {
		t.Errorf("LocateByCode() after heartbeat error = %v", err)
	}
}

func TestRegistry_ListOnline_Empty(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	devices, err := reg.ListOnline(context.Background())
	if err != nil {
		t.Fatalf("ListOnline() error = %v", err)
	}
	if devices == nil || len(devices) != 0 {
		t.Errorf("ListOnline() = %#v, want empty non-nil slice", devices)
	}
}
