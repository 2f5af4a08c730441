package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/labelsched/labelsched/internal/executor"
	"github.com/labelsched/labelsched/internal/job"
	"github.com/labelsched/labelsched/internal/label"
	"github.com/labelsched/labelsched/internal/schedule"
	"github.com/labelsched/labelsched/pkg/docker"
)

const (
	c1 = "1111111111111111"
	c2 = "2222222222222222"
)

// fakeDispatcher records executions and can block them to simulate a
// long-running command.
type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []job.Definition
	block   chan struct{} // when non-nil, Execute waits until closed
	started chan struct{} // when non-nil, receives one value per call
}

func (f *fakeDispatcher) Execute(_ context.Context, def job.Definition) executor.Record {
	f.mu.Lock()
	f.calls = append(f.calls, def)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return executor.Record{Key: def.Key()}
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestEngine(t *testing.T, d Dispatcher, now time.Time) *Engine {
	t.Helper()
	e := New(
		label.NewParser(""),
		schedule.NewEvaluatorIn(time.UTC),
		d,
		nil,
		time.Second,
		zap.NewNop(),
	)
	e.now = func() time.Time { return now }
	return e
}

func snapshot(id string, labels map[string]string) docker.Container {
	return docker.Container{ID: id, Name: "test-" + job.ShortID(id), Labels: labels}
}

func pingLabels(expr string) map[string]string {
	return map[string]string{
		"scheduler.enable":        "true",
		"scheduler.ping.schedule": expr,
		"scheduler.ping.command":  "echo hi",
	}
}

func TestReconcile_CreatesEntries(t *testing.T) {
	e := newTestEngine(t, &fakeDispatcher{}, time.Date(2025, 3, 10, 12, 0, 30, 0, time.UTC))

	e.reconcile(snapshot(c1, map[string]string{
		"scheduler.enable":          "true",
		"scheduler.ping.schedule":   "*/1 * * * *",
		"scheduler.ping.command":    "echo hi",
		"scheduler.backup.schedule": "0 3 * * *",
		"scheduler.backup.command":  "/bin/backup",
	}))

	if e.JobCount() != 2 {
		t.Fatalf("job count = %d, want 2", e.JobCount())
	}

	entry, ok := e.registry.Get(job.Key{ContainerID: c1, Name: "ping"})
	if !ok {
		t.Fatal("ping entry missing")
	}
	want := time.Date(2025, 3, 10, 12, 1, 0, 0, time.UTC)
	if !entry.NextFire.Equal(want) {
		t.Errorf("ping next fire = %v, want %v", entry.NextFire, want)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	e := newTestEngine(t, &fakeDispatcher{}, time.Date(2025, 3, 10, 12, 0, 30, 0, time.UTC))
	labels := pingLabels("*/1 * * * *")

	e.reconcile(snapshot(c1, labels))
	entry, _ := e.registry.Get(job.Key{ContainerID: c1, Name: "ping"})

	// Mark the armed timer so a reset would be visible.
	sentinel := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	entry.NextFire = sentinel

	e.reconcile(snapshot(c1, labels))

	again, ok := e.registry.Get(job.Key{ContainerID: c1, Name: "ping"})
	if !ok {
		t.Fatal("entry disappeared on identical snapshot")
	}
	if again != entry {
		t.Error("identical snapshot replaced the entry")
	}
	if !again.NextFire.Equal(sentinel) {
		t.Errorf("identical snapshot reset the armed timer to %v", again.NextFire)
	}
	if e.JobCount() != 1 {
		t.Errorf("job count = %d, want 1", e.JobCount())
	}
}

func TestReconcile_DefinitionChangeReplacesEntry(t *testing.T) {
	e := newTestEngine(t, &fakeDispatcher{}, time.Date(2025, 3, 10, 12, 0, 30, 0, time.UTC))

	e.reconcile(snapshot(c1, pingLabels("* * * * *")))
	old, _ := e.registry.Get(job.Key{ContainerID: c1, Name: "ping"})

	// Simulate an in-flight run at the moment the labels change.
	old.Running.Store(true)

	e.reconcile(snapshot(c1, pingLabels("*/5 * * * *")))

	fresh, ok := e.registry.Get(job.Key{ContainerID: c1, Name: "ping"})
	if !ok {
		t.Fatal("replacement entry missing")
	}
	if fresh == old {
		t.Fatal("changed definition did not create a new entry")
	}
	if fresh.Def.Schedule != "*/5 * * * *" {
		t.Errorf("replacement schedule = %q", fresh.Def.Schedule)
	}
	want := time.Date(2025, 3, 10, 12, 5, 0, 0, time.UTC)
	if !fresh.NextFire.Equal(want) {
		t.Errorf("replacement next fire = %v, want %v", fresh.NextFire, want)
	}
	// The old run is allowed to finish; its flag is untouched and the
	// new entry starts idle.
	if !old.Running.Load() {
		t.Error("in-flight flag on the removed entry was cleared")
	}
	if fresh.Running.Load() {
		t.Error("new entry started in running state")
	}
}

func TestReconcile_DisableRemovesJobs(t *testing.T) {
	e := newTestEngine(t, &fakeDispatcher{}, time.Now())

	labels := pingLabels("* * * * *")
	e.reconcile(snapshot(c1, labels))
	if e.JobCount() != 1 {
		t.Fatalf("job count = %d, want 1", e.JobCount())
	}

	labels["scheduler.enable"] = "false"
	e.reconcile(snapshot(c1, labels))
	if e.JobCount() != 0 {
		t.Errorf("job count = %d after disable, want 0", e.JobCount())
	}
}

func TestReconcile_InvalidSiblingIsIsolated(t *testing.T) {
	e := newTestEngine(t, &fakeDispatcher{}, time.Now())

	e.reconcile(snapshot(c1, map[string]string{
		"scheduler.enable":        "true",
		"scheduler.bad.schedule":  "* * * *", // four fields
		"scheduler.bad.command":   "echo bad",
		"scheduler.good.schedule": "* * * * *",
		"scheduler.good.command":  "echo good",
	}))

	if _, ok := e.registry.Get(job.Key{ContainerID: c1, Name: "bad"}); ok {
		t.Error("invalid job registered")
	}
	if _, ok := e.registry.Get(job.Key{ContainerID: c1, Name: "good"}); !ok {
		t.Error("valid sibling job did not register")
	}
}

func TestHandleEvent_StopRemovesAllEntries(t *testing.T) {
	e := newTestEngine(t, &fakeDispatcher{}, time.Now())

	e.reconcile(snapshot(c1, map[string]string{
		"scheduler.enable":     "true",
		"scheduler.a.schedule": "* * * * *",
		"scheduler.a.command":  "echo a",
		"scheduler.b.schedule": "*/2 * * * *",
		"scheduler.b.command":  "echo b",
	}))
	e.reconcile(snapshot(c2, pingLabels("* * * * *")))

	// The stop event carries no labels; removal must not depend on them.
	e.handleEvent(context.Background(), docker.Event{
		Action:      docker.ActionStop,
		ContainerID: c1,
	})

	if got := len(e.registry.ForContainer(c1)); got != 0 {
		t.Errorf("%d entries left for stopped container", got)
	}
	if got := len(e.registry.ForContainer(c2)); got != 1 {
		t.Errorf("unrelated container lost entries, %d left", got)
	}
}

func TestResync_PrunesDepartedContainers(t *testing.T) {
	e := newTestEngine(t, &fakeDispatcher{}, time.Now())

	e.reconcile(snapshot(c1, pingLabels("* * * * *")))

	// A resync listing that only contains c2: c1 vanished during a
	// disconnect, c2 appeared.
	e.handleEvent(context.Background(), docker.Event{
		Action: docker.ActionResync,
		Fleet:  []docker.Container{snapshot(c2, pingLabels("* * * * *"))},
	})

	if got := len(e.registry.ForContainer(c1)); got != 0 {
		t.Errorf("departed container kept %d entries", got)
	}
	if got := len(e.registry.ForContainer(c2)); got != 1 {
		t.Errorf("new container has %d entries, want 1", got)
	}
}

func TestTick_FiresDueAndRearms(t *testing.T) {
	d := &fakeDispatcher{}
	now := time.Date(2025, 3, 10, 12, 0, 30, 0, time.UTC)
	e := newTestEngine(t, d, now)

	e.reconcile(snapshot(c1, pingLabels("*/1 * * * *")))
	entry, _ := e.registry.Get(job.Key{ContainerID: c1, Name: "ping"})

	// Nothing is due before the minute boundary.
	e.tickOnce(context.Background(), time.Date(2025, 3, 10, 12, 0, 59, 0, time.UTC))
	e.workers.Wait()
	if d.callCount() != 0 {
		t.Fatalf("fired %d times before due", d.callCount())
	}

	fire := time.Date(2025, 3, 10, 12, 1, 0, 0, time.UTC)
	e.tickOnce(context.Background(), fire)
	e.workers.Wait()
	if d.callCount() != 1 {
		t.Fatalf("fired %d times at due, want 1", d.callCount())
	}

	want := time.Date(2025, 3, 10, 12, 2, 0, 0, time.UTC)
	if !entry.NextFire.Equal(want) {
		t.Errorf("re-armed next fire = %v, want %v", entry.NextFire, want)
	}
}

func TestTick_NoCatchUpAfterPause(t *testing.T) {
	d := &fakeDispatcher{}
	e := newTestEngine(t, d, time.Date(2025, 3, 10, 12, 0, 30, 0, time.UTC))

	e.reconcile(snapshot(c1, pingLabels("*/1 * * * *")))
	entry, _ := e.registry.Get(job.Key{ContainerID: c1, Name: "ping"})

	// The process was descheduled for ten minutes: one fire, and the
	// next fire computes from current time, not from the backlog.
	late := time.Date(2025, 3, 10, 12, 10, 30, 0, time.UTC)
	e.tickOnce(context.Background(), late)
	e.workers.Wait()

	if d.callCount() != 1 {
		t.Fatalf("fired %d times after pause, want 1", d.callCount())
	}
	want := time.Date(2025, 3, 10, 12, 11, 0, 0, time.UTC)
	if !entry.NextFire.Equal(want) {
		t.Errorf("next fire after pause = %v, want %v", entry.NextFire, want)
	}
}

func TestTick_SingleFlight(t *testing.T) {
	d := &fakeDispatcher{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	e := newTestEngine(t, d, time.Date(2025, 3, 10, 11, 59, 30, 0, time.UTC))

	e.reconcile(snapshot(c1, pingLabels("*/1 * * * *")))
	entry, _ := e.registry.Get(job.Key{ContainerID: c1, Name: "ping"})

	// First fire starts and blocks.
	e.tickOnce(context.Background(), time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	<-d.started
	if !entry.Running.Load() {
		t.Fatal("running flag not set during execution")
	}

	// Second fire arrives while the first is still running: skipped,
	// but the timer still advances.
	e.tickOnce(context.Background(), time.Date(2025, 3, 10, 12, 1, 0, 0, time.UTC))
	if d.callCount() != 1 {
		t.Fatalf("second fire started despite running execution, calls = %d", d.callCount())
	}
	want := time.Date(2025, 3, 10, 12, 2, 0, 0, time.UTC)
	if !entry.NextFire.Equal(want) {
		t.Errorf("skipped fire did not re-arm, next = %v, want %v", entry.NextFire, want)
	}

	// Once the first run completes, the next due fire dispatches again.
	close(d.block)
	e.workers.Wait()
	if entry.Running.Load() {
		t.Fatal("running flag not cleared after completion")
	}

	d.block = nil
	e.tickOnce(context.Background(), time.Date(2025, 3, 10, 12, 2, 0, 0, time.UTC))
	<-d.started
	e.workers.Wait()
	if d.callCount() != 2 {
		t.Errorf("calls after completion = %d, want 2", d.callCount())
	}
}

func TestRun_StopsWhenEventChannelCloses(t *testing.T) {
	events := make(chan docker.Event)
	e := New(
		label.NewParser(""),
		schedule.NewEvaluatorIn(time.UTC),
		&fakeDispatcher{},
		events,
		time.Second,
		zap.NewNop(),
	)

	done := make(chan struct{})
	go func() {
		e.Run(context.Background())
		close(done)
	}()

	events <- docker.Event{
		Action: docker.ActionResync,
		Fleet:  []docker.Container{snapshot(c1, pingLabels("* * * * *"))},
	}
	close(events)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after event channel closed")
	}
	if e.JobCount() != 1 {
		t.Errorf("job count = %d, want 1", e.JobCount())
	}
}
