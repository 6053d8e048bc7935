package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/gray-logic-relay/internal/payload"
)

const (
	testDeviceID   = "ext-install-ABC123"
	testDeviceCode = "ABC123"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupQueue(t *testing.T) (*Queue, *database.DB, *testClock) {
	t.Helper()
	db := dbtest.Open(t)
	clock := &testClock{now: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
	q := NewQueue(NewSQLiteRepository(db.DB))
	q.SetClock(clock.Now)
	return q, db, clock
}

func enqueueN(t *testing.T, q *Queue, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := q.Enqueue(context.Background(), testDeviceID, testDeviceCode, []byte(fmt.Sprintf(`{"seq":%d}`, i)))
		if err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestQueue_Enqueue(t *testing.T) {
	q, _, _ := setupQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testDeviceID, testDeviceCode, []byte(`{ "action" : "LOCK" }`))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if id != 1 {
		t.Errorf("first command id = %d, want 1", id)
	}

	next, err := q.Enqueue(ctx, testDeviceID, testDeviceCode, []byte(`{"action":"UNLOCK"}`))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if next <= id {
		t.Errorf("ids not increasing: %d then %d", id, next)
	}
}

func TestQueue_Enqueue_Invalid(t *testing.T) {
	q, _, _ := setupQueue(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		deviceID string
		body     string
		wantErr  error
	}{
		{name: "missing device", deviceID: "", body: `{}`, wantErr: ErrInvalidDevice},
		{name: "empty body", deviceID: testDeviceID, body: ``, wantErr: ErrInvalidPayload},
		{name: "null body", deviceID: testDeviceID, body: `null`, wantErr: ErrInvalidPayload},
		{name: "malformed body", deviceID: testDeviceID, body: `{"action":`, wantErr: ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Enqueue(ctx, tt.deviceID, testDeviceCode, []byte(tt.body))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Enqueue() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestQueue_DrainPending_FIFOAndAtMostOnce(t *testing.T) {
	q, _, _ := setupQueue(t)
	ctx := context.Background()
	enqueueN(t, q, 3)

	got, err := q.DrainPending(ctx, testDeviceID, 0)
	if err != nil {
		t.Fatalf("DrainPending() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("DrainPending() returned %d commands, want 3", len(got))
	}
	for i, c := range got {
		if want := fmt.Sprintf(`{"seq":%d}`, i); string(c.Payload) != want {
			t.Errorf("command %d payload = %s, want %s", i, c.Payload, want)
		}
		if c.Status != StatusCompleted || c.ExecutedAt == nil {
			t.Errorf("command %d not marked completed: %+v", i, c)
		}
	}

	again, err := q.DrainPending(ctx, testDeviceID, 0)
	if err != nil {
		t.Fatalf("second DrainPending() error = %v", err)
	}
	if again == nil || len(again) != 0 {
		t.Errorf("second DrainPending() = %v, want empty slice", again)
	}
}

func TestQueue_DrainPending_Limit(t *testing.T) {
	q, _, _ := setupQueue(t)
	ctx := context.Background()
	enqueueN(t, q, 5)

	first, err := q.DrainPending(ctx, testDeviceID, 2)
	if err != nil {
		t.Fatalf("DrainPending() error = %v", err)
	}
	rest, err := q.DrainPending(ctx, testDeviceID, 10)
	if err != nil {
		t.Fatalf("DrainPending() error = %v", err)
	}
	if len(first) != 2 || len(rest) != 3 {
		t.Fatalf("drained %d then %d, want 2 then 3", len(first), len(rest))
	}
	if string(rest[0].Payload) != `{"seq":2}` {
		t.Errorf("second drain starts at %s, want seq 2", rest[0].Payload)
	}
}

func TestQueue_DrainPending_OtherDeviceUntouched(t *testing.T) {
	q, _, _ := setupQueue(t)
	ctx := context.Background()
	enqueueN(t, q, 1)

	got, err := q.DrainPending(ctx, "other-device-XYZ789", 0)
	if err != nil {
		t.Fatalf("DrainPending() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("other device drained %d commands", len(got))
	}

	counts, err := q.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts[StatusPending] != 1 {
		t.Errorf("pending = %d, want 1", counts[StatusPending])
	}
}

func TestQueue_DrainPending_ConcurrentPartition(t *testing.T) {
	q, _, _ := setupQueue(t)
	ctx := context.Background()

	const total = 40
	ids := enqueueN(t, q, total)

	const pollers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		batches [][]Command
	)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got, err := q.DrainPending(ctx, testDeviceID, 3)
				if err != nil {
					t.Errorf("DrainPending() error = %v", err)
					return
				}
				if len(got) == 0 {
					return
				}
				mu.Lock()
				batches = append(batches, got)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	seen := make(map[int64]int)
	for _, batch := range batches {
		for j := 1; j < len(batch); j++ {
			if batch[j].ID <= batch[j-1].ID {
				t.Errorf("batch not in FIFO order: %d after %d", batch[j].ID, batch[j-1].ID)
			}
		}
		for _, c := range batch {
			seen[c.ID]++
		}
	}
	for _, id := range ids {
		if seen[id] != 1 {
			t.Errorf("command %d delivered %d times, want exactly once", id, seen[id])
		}
	}
	if len(seen) != total {
		t.Errorf("delivered %d distinct commands, want %d", len(seen), total)
	}
}

func TestQueue_DrainPending_CorruptPayload(t *testing.T) {
	q, db, _ := setupQueue(t)
	ctx := context.Background()
	enqueueN(t, q, 1)

	if _, err := db.ExecContext(ctx, `
		INSERT INTO commands (device_id, device_code, payload, status, created_at)
		VALUES (?, ?, '{broken', 'pending', ?)`,
		testDeviceID, testDeviceCode, database.FormatTime(time.Now()),
	); err != nil {
		t.Fatalf("inserting corrupt row: %v", err)
	}
	enqueueN(t, q, 1)

	got, err := q.DrainPending(ctx, testDeviceID, 0)
	if err != nil {
		t.Fatalf("DrainPending() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("DrainPending() returned %d commands, want 3", len(got))
	}
	if got[0].Corrupt || got[2].Corrupt {
		t.Error("healthy commands flagged corrupt")
	}
	if !got[1].Corrupt {
		t.Fatal("corrupt command not flagged")
	}

	var marker payload.Marker
	if err := json.Unmarshal(got[1].Payload, &marker); err != nil {
		t.Fatalf("marker is not JSON: %v", err)
	}
	if marker.Error != payload.CorruptCode || marker.RecordID != got[1].ID {
		t.Errorf("marker = %+v", marker)
	}
}

func TestQueue_PurgeCompleted(t *testing.T) {
	q, _, clock := setupQueue(t)
	ctx := context.Background()

	// One command is delivered, an equally old one stays pending.
	enqueueN(t, q, 1)
	if _, err := q.DrainPending(ctx, testDeviceID, 0); err != nil {
		t.Fatalf("DrainPending() error = %v", err)
	}
	if _, err := q.Enqueue(ctx, "other-device-XYZ789", "XYZ789", []byte(`{"action":"WAIT"}`)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	n, err := q.PurgeCompleted(ctx, time.Hour)
	if err != nil {
		t.Fatalf("PurgeCompleted() error = %v", err)
	}
	if n != 0 {
		t.Errorf("fresh purge removed %d, want 0", n)
	}

	clock.Advance(2 * time.Hour)
	n, err = q.PurgeCompleted(ctx, time.Hour)
	if err != nil {
		t.Fatalf("PurgeCompleted() error = %v", err)
	}
	if n != 1 {
		t.Errorf("aged purge removed %d, want 1", n)
	}

	counts, err := q.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts[StatusPending] != 1 || counts[StatusCompleted] != 0 {
		t.Errorf("Counts() = %v, want 1 pending and 0 completed", counts)
	}

	got, err := q.DrainPending(ctx, "other-device-XYZ789", 0)
	if err != nil {
		t.Fatalf("DrainPending() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("pending command lost after purge, drained %d", len(got))
	}
}
