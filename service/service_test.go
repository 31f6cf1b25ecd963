package service

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/orchestrator/bus"
	"github.com/vinayprograms/orchestrator/errors"
	"github.com/vinayprograms/orchestrator/logging"
	"github.com/vinayprograms/orchestrator/search"
	"github.com/vinayprograms/orchestrator/snapshot"
	"github.com/vinayprograms/orchestrator/state"
	"github.com/vinayprograms/orchestrator/tasks"
)

type failingStore struct {
	state.Store
}

func (failingStore) Get(string) ([]byte, error) { return nil, state.ErrNotFound }
func (failingStore) Put(string, []byte) error   { return stderrors.New("disk full") }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, store state.Store) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	seq := 0
	var opts Options
	opts.Clock = clock.Now
	opts.IDGenerator = func() string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	if store != nil {
		opts.Persister = snapshot.NewPersister(store, snapshot.WithClock(clock.Now))
	}
	return New(opts), clock
}

func TestService_ClaimCompleteFlow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, state.NewMemoryStore())

	task, _ := svc.Intake(ctx, "p1", "Write docs", "README")

	claimed, ok, err := svc.Claim(ctx, "w1")
	if err != nil || !ok {
		t.Fatalf("Claim = %v, %v", ok, err)
	}
	if claimed.ID != task.ID || claimed.Status != tasks.StatusInProgress {
		t.Errorf("claimed %+v", claimed)
	}
	if claimed.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", claimed.Attempts)
	}

	done, err := svc.Complete(ctx, task.ID, "w1", "shipped")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if done.Status != tasks.StatusDelivered || done.DeliverySummary != "shipped" {
		t.Errorf("completed %+v", done)
	}

	// Repeating the completion is a no-op and is not counted twice.
	if _, err := svc.Complete(ctx, task.ID, "w1", "again"); err != nil {
		t.Errorf("repeat Complete error: %v", err)
	}
	if c := svc.Stats(ctx).Metrics.Completed; c != 1 {
		t.Errorf("Completed metric = %d, want 1", c)
	}

	if _, ok, _ := svc.Claim(ctx, "w2"); ok {
		t.Error("nothing should be left to claim")
	}
	if m := svc.Stats(ctx).Metrics.ClaimMisses; m != 1 {
		t.Errorf("ClaimMisses = %d, want 1", m)
	}
}

func TestService_ClaimRequiresWorkerID(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, _, err := svc.Claim(context.Background(), "")
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestService_ConcurrentClaimsAreExclusive(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	for i := 0; i < 10; i++ {
		svc.Intake(ctx, "", fmt.Sprintf("task %d", i), "")
	}

	var mu sync.Mutex
	seen := make(map[string]string)
	var wg sync.WaitGroup
	for w := 0; w < 20; w++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			task, ok, err := svc.Claim(ctx, worker)
			if err != nil || !ok {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if prev, dup := seen[task.ID]; dup {
				t.Errorf("task %s claimed by %s and %s", task.ID, prev, worker)
			}
			seen[task.ID] = worker
		}(fmt.Sprintf("w%d", w))
	}
	wg.Wait()

	if len(seen) != 10 {
		t.Errorf("claimed %d tasks, want 10", len(seen))
	}
}

func TestService_LeaseExpiryAllowsReclaim(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, nil)
	task, _ := svc.Intake(ctx, "", "slow", "")

	svc.Claim(ctx, "w1")
	if _, ok, _ := svc.Claim(ctx, "w2"); ok {
		t.Fatal("held task must not be claimable")
	}

	clock.Advance(svc.LeaseDuration() + time.Second)
	again, ok, _ := svc.Claim(ctx, "w2")
	if !ok || again.ID != task.ID {
		t.Fatalf("expected re-claim of %s", task.ID)
	}
	if again.Assignee != "w2" || again.Attempts != 2 {
		t.Errorf("re-claimed %+v", again)
	}

	_, err := svc.Complete(ctx, task.ID, "w1", "late")
	if !errors.Is(err, errors.ErrCodeOwnership) {
		t.Errorf("expected OWNERSHIP from the old holder, got %v", err)
	}
}

func TestService_ErrorCodes(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	task, _ := svc.Intake(ctx, "", "t", "")

	tests := []struct {
		name string
		err  error
		code errors.ErrorCode
	}{
		{"unknown task", second(svc.GetTask(ctx, "missing")), errors.ErrCodeNotFound},
		{"complete unheld", second(svc.Complete(ctx, task.ID, "w9", "x")), errors.ErrCodeOwnership},
		{"complete without worker", second(svc.Complete(ctx, task.ID, "", "x")), errors.ErrCodeInvalidInput},
		{"reopen open", second(svc.Reopen(ctx, task.ID)), errors.ErrCodeIllegalTransition},
		{"bad status", second(svc.UpdateStatus(ctx, task.ID, "done")), errors.ErrCodeInvalidInput},
		{"open to review", second(svc.UpdateStatus(ctx, task.ID, "review")), errors.ErrCodeIllegalTransition},
		{"unknown worker heartbeat", heartbeatErr(svc, "nobody"), errors.ErrCodeNotFound},
		{"search disabled", searchErr(svc, "x"), errors.ErrCodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Code(tt.err); got != tt.code {
				t.Errorf("code = %s, want %s (err %v)", got, tt.code, tt.err)
			}
		})
	}
}

func second(_ *tasks.Task, err error) error { return err }

func heartbeatErr(svc *Service, id string) error {
	_, err := svc.Heartbeat(context.Background(), id)
	return err
}

func searchErr(svc *Service, q string) error {
	_, err := svc.Search(context.Background(), q, 0, search.Filter{})
	return err
}

func TestService_FailAndReopen(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	task, _ := svc.Intake(ctx, "", "flaky", "")
	svc.Claim(ctx, "w1")

	failed, err := svc.Fail(ctx, task.ID, "w1", "timeout")
	if err != nil {
		t.Fatalf("Fail error: %v", err)
	}
	if failed.Status != tasks.StatusFailed || failed.LastError != "timeout" {
		t.Errorf("failed %+v", failed)
	}

	reopened, err := svc.Reopen(ctx, task.ID)
	if err != nil {
		t.Fatalf("Reopen error: %v", err)
	}
	if reopened.Status != tasks.StatusOpen {
		t.Errorf("Status = %s, want open", reopened.Status)
	}

	again, ok, _ := svc.Claim(ctx, "w2")
	if !ok || again.Attempts != 2 {
		t.Errorf("re-claim after reopen: ok=%v %+v", ok, again)
	}
}

func TestService_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	svc, _ := newTestService(t, store)

	c := svc.CreateClient(ctx, "Acme", "ops@acme.test")
	p := svc.CreateProject(ctx, c.ID, "Site", "")
	w := svc.RegisterWorker(ctx, "worker-1", []string{"general"})
	task, _ := svc.Intake(ctx, p.ID, "Landing page", "hero section")
	svc.Claim(ctx, w.ID)

	restored, _ := newTestService(t, store)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	got, err := restored.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask error: %v", err)
	}
	if got.Status != tasks.StatusInProgress || got.Assignee != w.ID {
		t.Errorf("restored task %+v", got)
	}
	if len(restored.Workers(ctx)) != 1 || len(restored.Projects(ctx)) != 1 {
		t.Error("registry not restored")
	}
}

func TestService_LoadMissingSnapshotStartsEmpty(t *testing.T) {
	svc, _ := newTestService(t, state.NewMemoryStore())
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if n := svc.Stats(context.Background()).Tasks; n != 0 {
		t.Errorf("Tasks = %d, want 0", n)
	}
}

func TestService_SnapshotFailureIsNotReturned(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := logging.New()
	logger.SetOutput(&buf)

	svc := New(Options{
		Persister: snapshot.NewPersister(failingStore{}),
		Logger:    logger,
	})

	task, err := svc.Intake(ctx, "", "still works", "")
	if err != nil || task == nil {
		t.Fatalf("Intake should succeed despite storage failure: %v", err)
	}
	if n := svc.Stats(ctx).Metrics.SnapshotFailures; n != 1 {
		t.Errorf("SnapshotFailures = %d, want 1", n)
	}
	if !strings.Contains(buf.String(), "disk full") {
		t.Errorf("expected storage error in log, got %q", buf.String())
	}
	if err := svc.Flush(ctx); !errors.Is(err, errors.ErrCodePersistence) {
		t.Errorf("Flush should report the failure, got %v", err)
	}
}

func TestService_PublishesEvents(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()
	sub, err := b.Subscribe("tasks.>")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	svc := New(Options{Bus: b})
	task, _ := svc.Intake(ctx, "", "evented", "")
	svc.Claim(ctx, "w1")

	want := []string{"tasks.intake", "tasks.claimed"}
	for _, subject := range want {
		select {
		case msg := <-sub.Messages():
			if msg.Subject != subject {
				t.Errorf("subject = %s, want %s", msg.Subject, subject)
			}
			ev, err := UnmarshalEvent(msg.Data)
			if err != nil {
				t.Fatalf("UnmarshalEvent error: %v", err)
			}
			if ev.TaskID != task.ID {
				t.Errorf("TaskID = %s, want %s", ev.TaskID, task.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", subject)
		}
	}
}

func TestService_Search(t *testing.T) {
	ctx := context.Background()
	idx, err := search.NewIndex()
	if err != nil {
		t.Fatalf("NewIndex error: %v", err)
	}
	defer idx.Close()

	svc := New(Options{Index: idx})
	svc.Intake(ctx, "p1", "Fix login page", "users cannot sign in")
	svc.Intake(ctx, "p1", "Update billing", "invoice totals")

	results, err := svc.Search(ctx, "login", 0, search.Filter{})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 || results[0].Task.Title != "Fix login page" {
		t.Errorf("results = %+v", results)
	}

	if _, err := svc.Search(ctx, "", 0, search.Filter{}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("empty query should be INVALID_INPUT, got %v", err)
	}
}

func TestService_HeartbeatDoesNotExtendLease(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, nil)
	w1 := svc.RegisterWorker(ctx, "w1", nil)
	task, _ := svc.Intake(ctx, "", "long job", "")

	claimed, ok, err := svc.Claim(ctx, w1.ID)
	if err != nil || !ok {
		t.Fatalf("Claim = %v, %v", ok, err)
	}
	lease := *claimed.LeaseExpiresAt

	clock.Advance(svc.LeaseDuration() / 2)
	if _, err := svc.Heartbeat(ctx, w1.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	held, _ := svc.GetTask(ctx, task.ID)
	if held.LeaseExpiresAt == nil || !held.LeaseExpiresAt.Equal(lease) {
		t.Fatalf("heartbeat moved the lease: %v, want %v", held.LeaseExpiresAt, lease)
	}

	clock.Advance(svc.LeaseDuration())
	if _, err := svc.Heartbeat(ctx, w1.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	again, ok, err := svc.Claim(ctx, "w2")
	if err != nil || !ok || again.ID != task.ID {
		t.Fatalf("expected w2 to reclaim %s despite w1 heartbeating, got %v %v %v", task.ID, again, ok, err)
	}
	if again.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", again.Attempts)
	}
}

func TestService_StatsCounts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	svc.Intake(ctx, "", "a", "")
	b, _ := svc.Intake(ctx, "", "b", "")
	svc.RegisterBot(ctx, "bot", nil)
	svc.Assign(ctx, b.ID, "bot-1")

	st := svc.Stats(ctx)
	if st.Tasks != 2 || st.Counts["open"] != 1 || st.Counts["assigned"] != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.Eligible != 1 {
		t.Errorf("Eligible = %d, want 1", st.Eligible)
	}
	if st.Bots != 1 {
		t.Errorf("Bots = %d, want 1", st.Bots)
	}
}
