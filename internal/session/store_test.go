package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/honeygrid/scamtrap/internal/domain"
)

func appendTurn(text string) func(s *domain.Session, created bool) error {
	return func(s *domain.Session, created bool) error {
		s.AppendTurn(domain.Message{Sender: domain.SenderScammer, Text: text, Timestamp: 1})
		return nil
	}
}

func TestUpdateCreatesAndCommits(t *testing.T) {
	st := NewMemoryStore(time.Hour, nil)
	ctx := context.Background()

	var sawCreated []bool
	for i := 0; i < 2; i++ {
		err := st.Update(ctx, "abc", func(s *domain.Session, created bool) error {
			sawCreated = append(sawCreated, created)
			s.AppendTurn(domain.Message{Sender: domain.SenderScammer, Text: "hi", Timestamp: 1})
			return nil
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	if len(sawCreated) != 2 || !sawCreated[0] || sawCreated[1] {
		t.Errorf("created flags = %v, want [true false]", sawCreated)
	}

	snap, ok := st.Snapshot("abc")
	if !ok {
		t.Fatal("Snapshot missed a live session")
	}
	if len(snap.Turns) != 2 {
		t.Errorf("turns = %d, want 2", len(snap.Turns))
	}
	if st.Active() != 1 {
		t.Errorf("Active = %d, want 1", st.Active())
	}
}

func TestUpdateErrorLeavesStateUntouched(t *testing.T) {
	st := NewMemoryStore(time.Hour, nil)
	ctx := context.Background()

	if err := st.Update(ctx, "abc", appendTurn("first")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	wantErr := errors.New("pipeline blew up")
	err := st.Update(ctx, "abc", func(s *domain.Session, created bool) error {
		s.AppendTurn(domain.Message{Sender: domain.SenderScammer, Text: "second", Timestamp: 2})
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Update error = %v, want %v", err, wantErr)
	}

	snap, ok := st.Snapshot("abc")
	if !ok {
		t.Fatal("session vanished after failed update")
	}
	if len(snap.Turns) != 1 {
		t.Errorf("failed update leaked state: %d turns, want 1", len(snap.Turns))
	}
}

func TestLazyExpiryRecreatesSession(t *testing.T) {
	var mu sync.Mutex
	var retired []*domain.Session
	retire := func(ctx context.Context, s *domain.Session) {
		mu.Lock()
		retired = append(retired, s)
		mu.Unlock()
	}

	st := NewMemoryStore(30*time.Minute, retire)
	base := time.Now()
	st.nowFn = func() time.Time { return base }
	ctx := context.Background()

	if err := st.Update(ctx, "abc", appendTurn("hello")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	st.nowFn = func() time.Time { return base.Add(45 * time.Minute) }

	var created bool
	err := st.Update(ctx, "abc", func(s *domain.Session, c bool) error {
		created = c
		if len(s.Turns) != 0 {
			t.Errorf("recreated session carried %d old turns", len(s.Turns))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !created {
		t.Error("expired id should yield a fresh session")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(retired) != 1 {
		t.Fatalf("retired %d sessions, want 1", len(retired))
	}
	if retired[0].Status != domain.SessionExpired {
		t.Errorf("retired status = %v, want expired", retired[0].Status)
	}
	if len(retired[0].Turns) != 1 {
		t.Errorf("retired session lost its turns: %d", len(retired[0].Turns))
	}
}

func TestSnapshotHidesExpiredSession(t *testing.T) {
	st := NewMemoryStore(30*time.Minute, nil)
	base := time.Now()
	st.nowFn = func() time.Time { return base }

	if err := st.Update(context.Background(), "abc", appendTurn("hello")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	st.nowFn = func() time.Time { return base.Add(31 * time.Minute) }
	if _, ok := st.Snapshot("abc"); ok {
		t.Error("Snapshot returned an expired session")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	st := NewMemoryStore(time.Hour, nil)
	if err := st.Update(context.Background(), "abc", appendTurn("hello")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	snap, _ := st.Snapshot("abc")
	snap.AppendTurn(domain.Message{Sender: domain.SenderAgent, Text: "mutated", Timestamp: 2})
	snap.MergeEntity(domain.Entity{Kind: domain.KindUPI, Value: "a@b", Confidence: 0.9})

	fresh, _ := st.Snapshot("abc")
	if len(fresh.Turns) != 1 || len(fresh.Entities) != 0 {
		t.Errorf("snapshot mutation reached the store: %d turns, %d entities",
			len(fresh.Turns), len(fresh.Entities))
	}
}

func TestConcurrentUpdatesSameID(t *testing.T) {
	st := NewMemoryStore(time.Hour, nil)
	ctx := context.Background()

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_ = st.Update(ctx, "abc", appendTurn("turn"))
		}()
	}
	wg.Wait()

	snap, ok := st.Snapshot("abc")
	if !ok {
		t.Fatal("session missing after concurrent updates")
	}
	if len(snap.Turns) != writers {
		t.Errorf("turns = %d, want %d (lost updates)", len(snap.Turns), writers)
	}
}

func TestUpdateDuringSweepKeepsTurn(t *testing.T) {
	retireStarted := make(chan struct{})
	retireRelease := make(chan struct{})
	retire := func(ctx context.Context, s *domain.Session) {
		close(retireStarted)
		<-retireRelease
	}

	st := NewMemoryStore(30*time.Minute, retire)
	base := time.Now()
	st.nowFn = func() time.Time { return base }
	ctx := context.Background()

	if err := st.Update(ctx, "abc", appendTurn("old")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	st.nowFn = func() time.Time { return base.Add(time.Hour) }

	sweepDone := make(chan struct{})
	go func() {
		st.Sweep(ctx)
		close(sweepDone)
	}()
	<-retireStarted

	// The sweep holds the entry lock inside retire; this update queues
	// behind it and must not land in the entry the sweep is discarding.
	updateDone := make(chan error, 1)
	go func() {
		updateDone <- st.Update(ctx, "abc", appendTurn("new"))
	}()

	time.Sleep(50 * time.Millisecond)
	close(retireRelease)
	<-sweepDone

	if err := <-updateDone; err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	snap, ok := st.Snapshot("abc")
	if !ok {
		t.Fatal("accepted turn lost: session gone after the sweep")
	}
	if len(snap.Turns) != 1 || snap.Turns[0].Text != "new" {
		t.Errorf("turns = %+v, want the single post-sweep turn", snap.Turns)
	}
}

func TestActiveIgnoresExpired(t *testing.T) {
	st := NewMemoryStore(30*time.Minute, nil)
	base := time.Now()
	st.nowFn = func() time.Time { return base }
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := st.Update(ctx, id, appendTurn("hello")); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	if st.Active() != 2 {
		t.Fatalf("Active = %d, want 2", st.Active())
	}

	// Window elapses with no access and no sweep; the count must not
	// report sessions that any access would immediately retire.
	st.nowFn = func() time.Time { return base.Add(time.Hour) }
	if st.Active() != 0 {
		t.Errorf("Active = %d with every session expired, want 0", st.Active())
	}
}

func TestSweepRetiresExpired(t *testing.T) {
	var mu sync.Mutex
	retiredCount := 0
	retire := func(ctx context.Context, s *domain.Session) {
		mu.Lock()
		retiredCount++
		mu.Unlock()
	}

	st := NewMemoryStore(30*time.Minute, retire)
	base := time.Now()
	st.nowFn = func() time.Time { return base }
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := st.Update(ctx, id, appendTurn("hello")); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	st.nowFn = func() time.Time { return base.Add(time.Hour) }
	if n := st.Sweep(ctx); n != 2 {
		t.Errorf("Sweep removed %d, want 2", n)
	}
	if st.Active() != 0 {
		t.Errorf("Active = %d after sweep, want 0", st.Active())
	}

	mu.Lock()
	defer mu.Unlock()
	if retiredCount != 2 {
		t.Errorf("retire called %d times, want 2", retiredCount)
	}
}

func TestCloseRetiresEverything(t *testing.T) {
	var mu sync.Mutex
	retiredCount := 0
	retire := func(ctx context.Context, s *domain.Session) {
		mu.Lock()
		retiredCount++
		mu.Unlock()
	}

	st := NewMemoryStore(time.Hour, retire)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := st.Update(ctx, id, appendTurn("hello")); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	if err := st.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if st.Active() != 0 {
		t.Errorf("Active = %d after close, want 0", st.Active())
	}

	mu.Lock()
	defer mu.Unlock()
	if retiredCount != 3 {
		t.Errorf("retire called %d times, want 3", retiredCount)
	}
}
