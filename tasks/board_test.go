package tasks

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeClock is a settable time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBoard() (*Board, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	seq := 0
	b := NewBoard(
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("T%d", seq)
		}),
	)
	return b, clock
}

func TestBoard_Intake(t *testing.T) {
	b, _ := newTestBoard()

	task := b.Intake("p1", "Fix bug", "desc")
	if task.ID != "T1" {
		t.Errorf("ID = %q, want T1", task.ID)
	}
	if task.Status != StatusOpen {
		t.Errorf("Status = %s, want open", task.Status)
	}
	if task.Assignee != "" {
		t.Errorf("Assignee = %q, want empty", task.Assignee)
	}
	if task.LeaseExpiresAt != nil {
		t.Error("new task should have no lease")
	}
	if task.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", task.Attempts)
	}
	if b.Len() != 1 {
		t.Errorf("Len = %d, want 1", b.Len())
	}
}

func TestBoard_IntakeUsesUUIDByDefault(t *testing.T) {
	b := NewBoard()
	a := b.Intake("p", "a", "")
	c := b.Intake("p", "c", "")
	if a.ID == "" || a.ID == c.ID {
		t.Errorf("expected distinct generated IDs, got %q and %q", a.ID, c.ID)
	}
}

func TestBoard_ClaimCompleteScenario(t *testing.T) {
	b, clock := newTestBoard()
	b.Intake("p1", "Fix bug", "desc")

	task, ok := b.Claim("w1")
	if !ok {
		t.Fatal("expected a task to be claimed")
	}
	if task.ID != "T1" {
		t.Errorf("claimed %q, want T1", task.ID)
	}
	if task.Status != StatusInProgress {
		t.Errorf("Status = %s, want in_progress", task.Status)
	}
	if task.Assignee != "w1" {
		t.Errorf("Assignee = %q, want w1", task.Assignee)
	}
	if task.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", task.Attempts)
	}
	wantLease := clock.Now().Add(300 * time.Second)
	if task.LeaseExpiresAt == nil || !task.LeaseExpiresAt.Equal(wantLease) {
		t.Errorf("LeaseExpiresAt = %v, want %v", task.LeaseExpiresAt, wantLease)
	}

	done, err := b.Complete("T1", "w1", "fixed it")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if done.Status != StatusDelivered {
		t.Errorf("Status = %s, want delivered", done.Status)
	}
	if done.DeliverySummary != "fixed it" {
		t.Errorf("DeliverySummary = %q, want %q", done.DeliverySummary, "fixed it")
	}
	if done.LeaseExpiresAt != nil {
		t.Error("lease should be cleared after completion")
	}
}

func TestBoard_ClaimHeldTaskUnavailable(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p1", "Fix bug", "desc")

	if _, ok := b.Claim("w1"); !ok {
		t.Fatal("first claim should succeed")
	}
	if task, ok := b.Claim("w2"); ok {
		t.Errorf("second claim should find nothing, got %s", task.ID)
	}
}

func TestBoard_ClaimAfterLeaseExpiry(t *testing.T) {
	b, clock := newTestBoard()
	b.Intake("p1", "Fix bug", "desc")

	if _, ok := b.Claim("w1"); !ok {
		t.Fatal("first claim should succeed")
	}

	clock.Advance(301 * time.Second)

	task, ok := b.Claim("w2")
	if !ok {
		t.Fatal("expected the expired task to be reclaimed")
	}
	if task.Assignee != "w2" {
		t.Errorf("Assignee = %q, want w2", task.Assignee)
	}
	if task.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", task.Attempts)
	}
}

func TestBoard_ClaimAtExactLeaseBoundary(t *testing.T) {
	b, clock := newTestBoard()
	b.Intake("p1", "Fix bug", "desc")
	b.Claim("w1")

	clock.Advance(299 * time.Second)
	if _, ok := b.Claim("w2"); ok {
		t.Fatal("task should still be leased before the boundary")
	}

	clock.Advance(1 * time.Second)
	if _, ok := b.Claim("w2"); !ok {
		t.Fatal("task should be claimable once now == lease expiry")
	}
}

func TestBoard_ClaimInsertionOrder(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p", "zeta", "")
	b.Intake("p", "alpha", "")
	b.Intake("p", "mid", "")

	for i, want := range []string{"T1", "T2", "T3"} {
		task, ok := b.Claim(fmt.Sprintf("w%d", i))
		if !ok {
			t.Fatalf("claim %d found nothing", i)
		}
		if task.ID != want {
			t.Errorf("claim %d = %s, want %s", i, task.ID, want)
		}
	}
	if _, ok := b.Claim("w9"); ok {
		t.Error("board should be drained")
	}
}

func TestBoard_ClaimSkipsNonEligibleStatuses(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p", "delivered", "")
	b.Intake("p", "blocked", "")
	b.Intake("p", "open", "")

	if _, err := b.Deliver("T1", "x"); err == nil {
		t.Fatal("open → delivered should be illegal")
	}
	b.Assign("T1", "bot")
	b.Deliver("T1", "done")
	b.Assign("T2", "bot")
	b.UpdateStatus("T2", "blocked")

	task, ok := b.Claim("w1")
	if !ok || task.ID != "T3" {
		t.Fatalf("expected T3 to be claimed, got %v %v", task, ok)
	}
}

func TestBoard_ClaimEmptyWorker(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p", "a", "")
	if _, ok := b.Claim(""); ok {
		t.Error("empty worker ID should not claim")
	}
	task, _ := b.Get("T1")
	if task.Attempts != 0 {
		t.Error("attempts should be untouched")
	}
}

func TestBoard_AssignSetsLease(t *testing.T) {
	b, clock := newTestBoard()
	b.Intake("p", "a", "")

	task, err := b.Assign("T1", "bot-x")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if task.Status != StatusAssigned || task.Assignee != "bot-x" {
		t.Errorf("got status=%s assignee=%q", task.Status, task.Assignee)
	}
	if task.LeaseExpiresAt == nil || !task.LeaseExpiresAt.Equal(clock.Now().Add(DefaultLeaseDuration)) {
		t.Errorf("unexpected lease %v", task.LeaseExpiresAt)
	}
	if task.Attempts != 0 {
		t.Errorf("assign must not count as an attempt, got %d", task.Attempts)
	}

	if _, ok := b.Claim("w1"); ok {
		t.Error("freshly assigned task should not be claimable")
	}

	clock.Advance(DefaultLeaseDuration)
	claimed, ok := b.Claim("w1")
	if !ok {
		t.Fatal("stale assignment should be claimable")
	}
	if claimed.Assignee != "w1" || claimed.Attempts != 1 {
		t.Errorf("got assignee=%q attempts=%d", claimed.Assignee, claimed.Attempts)
	}
}

func TestBoard_AssignDeliveredFails(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p", "a", "")
	b.Claim("w1")
	b.Complete("T1", "w1", "done")

	before, _ := b.Get("T1")
	_, err := b.Assign("T1", "bot-x")
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	after, _ := b.Get("T1")
	if after.Status != before.Status || after.Assignee != before.Assignee || after.DeliverySummary != before.DeliverySummary {
		t.Errorf("task changed after failed assign: %+v → %+v", before, after)
	}
}

func TestBoard_AssignErrors(t *testing.T) {
	b, _ := newTestBoard()
	if _, err := b.Assign("missing", "bot"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
	b.Intake("p", "a", "")
	if _, err := b.Assign("T1", ""); !errors.Is(err, ErrInvalidWorkerID) {
		t.Errorf("expected ErrInvalidWorkerID, got %v", err)
	}
}

func TestBoard_CompleteWrongWorker(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p", "a", "")
	b.Claim("w1")
	before, _ := b.Get("T1")

	if _, err := b.Complete("T1", "w2", "stolen"); !errors.Is(err, ErrWrongWorker) {
		t.Fatalf("expected ErrWrongWorker, got %v", err)
	}
	if _, err := b.Fail("T1", "w2", "boom"); !errors.Is(err, ErrWrongWorker) {
		t.Fatalf("expected ErrWrongWorker, got %v", err)
	}

	after, _ := b.Get("T1")
	if after.Status != before.Status {
		t.Errorf("Status changed: %s → %s", before.Status, after.Status)
	}
	if !after.LeaseExpiresAt.Equal(*before.LeaseExpiresAt) {
		t.Error("lease changed")
	}
	if after.DeliverySummary != "" || after.LastError != "" {
		t.Error("summary/error should be untouched")
	}
}

func TestBoard_CompleteAfterReclaim(t *testing.T) {
	b, clock := newTestBoard()
	b.Intake("p", "a", "")
	b.Claim("w1")
	clock.Advance(400 * time.Second)
	b.Claim("w2")

	if _, err := b.Complete("T1", "w1", "late"); !errors.Is(err, ErrWrongWorker) {
		t.Fatalf("stale worker should be rejected, got %v", err)
	}
	if _, err := b.Complete("T1", "w2", "ok"); err != nil {
		t.Fatalf("new holder should complete: %v", err)
	}
}

func TestBoard_CompleteTwiceIsNoop(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p", "a", "")
	b.Claim("w1")
	b.Complete("T1", "w1", "first")

	task, err := b.Complete("T1", "w1", "second")
	if err != nil {
		t.Fatalf("repeat completion should succeed: %v", err)
	}
	if task.DeliverySummary != "first" {
		t.Errorf("DeliverySummary = %q, want first", task.DeliverySummary)
	}
}

func TestBoard_CompleteRequiresHeldStatus(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p", "a", "")
	b.Claim("w1")
	b.UpdateStatus("T1", "blocked")

	if _, err := b.Complete("T1", "w1", "done"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition from blocked, got %v", err)
	}
}

func TestBoard_Fail(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p", "a", "")
	b.Claim("w1")

	task, err := b.Fail("T1", "w1", "boom")
	if err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if task.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", task.Status)
	}
	if task.LastError != "boom" {
		t.Errorf("LastError = %q, want boom", task.LastError)
	}
	if task.LeaseExpiresAt != nil {
		t.Error("lease should be cleared")
	}
	if task.Assignee != "w1" {
		t.Error("assignee should be kept on a held terminal state")
	}

	// Failed tasks are not reopened automatically.
	if _, ok := b.Claim("w2"); ok {
		t.Error("failed task must not be claimable")
	}

	again, err := b.Fail("T1", "w1", "boom again")
	if err != nil {
		t.Fatalf("repeat fail should succeed: %v", err)
	}
	if again.LastError != "boom" {
		t.Errorf("repeat fail should be a no-op, got %q", again.LastError)
	}
}

func TestBoard_Reopen(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p", "a", "")
	b.Claim("w1")
	b.Fail("T1", "w1", "boom")

	task, err := b.Reopen("T1")
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if task.Status != StatusOpen || task.Assignee != "" || task.LeaseExpiresAt != nil {
		t.Errorf("unexpected reopened task: %+v", task)
	}
	if task.LastError != "boom" || task.Attempts != 1 {
		t.Errorf("reopen should keep history, got %+v", task)
	}

	claimed, ok := b.Claim("w2")
	if !ok || claimed.Attempts != 2 {
		t.Fatalf("reopened task should be claimable, got %v %v", claimed, ok)
	}

	if _, err := b.Reopen("T1"); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("reopen of a non-failed task should fail, got %v", err)
	}
}

func TestBoard_UpdateStatus(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p", "a", "")

	if _, err := b.UpdateStatus("T1", "bogus"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := b.UpdateStatus("T1", "review"); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition, got %v", err)
	}
	if _, err := b.UpdateStatus("T1", "failed"); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("failed should not be reachable, got %v", err)
	}
	if _, err := b.UpdateStatus("missing", "assigned"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}

	b.Claim("w1")
	task, err := b.UpdateStatus("T1", "blocked")
	if err != nil {
		t.Fatalf("in_progress → blocked failed: %v", err)
	}
	if task.LeaseExpiresAt != nil {
		t.Error("blocked task must not carry a lease")
	}

	task, err = b.UpdateStatus("T1", "review")
	if err != nil {
		t.Fatalf("blocked → review failed: %v", err)
	}

	task, err = b.UpdateStatus("T1", "delivered: approved by lead")
	if err != nil {
		t.Fatalf("review → legacy delivered failed: %v", err)
	}
	if task.Status != StatusDelivered {
		t.Errorf("Status = %q, want delivered", task.Status)
	}
	if task.DeliverySummary != "approved by lead" {
		t.Errorf("DeliverySummary = %q", task.DeliverySummary)
	}
}

func TestBoard_UpdateStatusCannotAssign(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p", "a", "")

	if _, err := b.UpdateStatus("T1", "assigned"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	task, _ := b.Get("T1")
	if task.Status != StatusOpen || task.Assignee != "" || task.LeaseExpiresAt != nil {
		t.Errorf("task changed: status=%s assignee=%q lease=%v", task.Status, task.Assignee, task.LeaseExpiresAt)
	}
}

func TestBoard_ResumeRenewsLease(t *testing.T) {
	b, clock := newTestBoard()
	b.Intake("p", "a", "")
	b.Claim("w1")
	b.UpdateStatus("T1", "blocked")

	clock.Advance(time.Hour)
	task, err := b.UpdateStatus("T1", "in_progress")
	if err != nil {
		t.Fatalf("blocked → in_progress failed: %v", err)
	}
	if task.Assignee != "w1" {
		t.Errorf("Assignee = %q, want w1", task.Assignee)
	}
	want := clock.Now().Add(DefaultLeaseDuration)
	if task.LeaseExpiresAt == nil || !task.LeaseExpiresAt.Equal(want) {
		t.Fatalf("lease = %v, want %v", task.LeaseExpiresAt, want)
	}
	if task.Attempts != 1 {
		t.Errorf("Attempts = %d, resuming should not count as a claim", task.Attempts)
	}

	if _, ok := b.Claim("w2"); ok {
		t.Fatal("resumed task is leased and must not be claimable")
	}

	// w1 goes quiet after resuming; the lease hands the task on.
	clock.Advance(24 * time.Hour)
	task, ok := b.Claim("w2")
	if !ok || task.ID != "T1" {
		t.Fatalf("expected T1 to be reclaimed, got %v %v", task, ok)
	}
	if task.Assignee != "w2" || task.Attempts != 2 {
		t.Errorf("assignee=%q attempts=%d, want w2 and 2", task.Assignee, task.Attempts)
	}
}

func TestBoard_ResumeWithoutHolderFails(t *testing.T) {
	b, _ := newTestBoard()
	b.Restore([]*Task{{ID: "T1", Title: "orphan", Status: StatusBlocked}})

	if _, err := b.UpdateStatus("T1", "in_progress"); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestBoard_ExpiredInProgressIsBacklog(t *testing.T) {
	b, clock := newTestBoard()
	b.Intake("p", "a", "")
	b.Claim("w1")

	if n := len(b.Backlog()); n != 0 {
		t.Fatalf("Backlog = %d while leased, want 0", n)
	}
	clock.Advance(DefaultLeaseDuration)
	if n := len(b.Backlog()); n != 1 {
		t.Errorf("Backlog = %d after expiry, want 1", n)
	}
}

func TestBoard_Deliver(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p", "a", "")

	if _, err := b.Deliver("T1", "too soon"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("open → delivered should fail, got %v", err)
	}

	b.Assign("T1", "bot")
	task, err := b.Deliver("T1", "shipped")
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if task.Status != StatusDelivered || task.DeliverySummary != "shipped" || task.LeaseExpiresAt != nil {
		t.Errorf("unexpected delivered task: %+v", task)
	}
}

func TestBoard_ListByTitle(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p", "charlie", "")
	b.Intake("p", "alpha", "")
	b.Intake("p", "bravo", "")
	b.Intake("p", "alpha", "second")

	got := b.ListByTitle()
	want := []string{"T2", "T4", "T3", "T1"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestBoard_ReturnsCopies(t *testing.T) {
	b, _ := newTestBoard()
	task := b.Intake("p", "a", "")
	task.Status = StatusDelivered

	got, _ := b.Get("T1")
	if got.Status != StatusOpen {
		t.Error("mutating a returned task must not affect the board")
	}
}

func TestBoard_BacklogAndCounts(t *testing.T) {
	b, _ := newTestBoard()
	b.Intake("p", "a", "")
	b.Intake("p", "b", "")
	b.Intake("p", "c", "")
	b.Claim("w1")

	if n := len(b.Backlog()); n != 2 {
		t.Errorf("Backlog = %d, want 2", n)
	}
	counts := b.Counts()
	if counts[StatusOpen] != 2 || counts[StatusInProgress] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
	if held := b.HeldBy("w1"); len(held) != 1 || held[0].ID != "T1" {
		t.Errorf("HeldBy(w1) = %v", held)
	}
}

func TestBoard_Restore(t *testing.T) {
	b, _ := newTestBoard()
	b.Restore([]*Task{
		{ID: "b", Title: "second", Status: StatusOpen},
		{ID: "a", Title: "first", Status: StatusOpen},
		{ID: "b", Title: "dup", Status: StatusOpen},
		nil,
	})

	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}
	task, ok := b.Claim("w1")
	if !ok || task.ID != "b" {
		t.Errorf("restore should keep order, claimed %v", task)
	}
}

func TestTask_Migrate(t *testing.T) {
	lease := time.Now()
	task := &Task{ID: "x", Status: Status("delivered: shipped v2"), LeaseExpiresAt: &lease}

	changed, err := task.Migrate()
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if !changed {
		t.Error("expected a change")
	}
	if task.Status != StatusDelivered || task.DeliverySummary != "shipped v2" {
		t.Errorf("unexpected task after migrate: %+v", task)
	}
	if task.LeaseExpiresAt != nil {
		t.Error("delivered task must not keep a lease")
	}

	kept := &Task{ID: "y", Status: Status("delivered: old"), DeliverySummary: "new"}
	kept.Migrate()
	if kept.DeliverySummary != "new" {
		t.Errorf("existing summary should win, got %q", kept.DeliverySummary)
	}

	bad := &Task{ID: "z", Status: Status("archived")}
	if _, err := bad.Migrate(); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}
