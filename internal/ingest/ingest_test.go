package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/labscan/constants"
	"github.com/joseph-ayodele/labscan/internal/common"
	"github.com/joseph-ayodele/labscan/internal/core/async"
	"github.com/joseph-ayodele/labscan/internal/repository"
)

type memQueue struct {
	mu   sync.Mutex
	jobs []async.Job
	err  error
}

func (q *memQueue) Enqueue(_ context.Context, j async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, j)
	return nil
}

func (q *memQueue) Shutdown(context.Context) {}

func (q *memQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func newIngestor(t *testing.T, q async.Queue) (*FSIngestor, repository.ExtractJobRepository) {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	jobs := repository.NewExtractJobRepository(db, nil)
	return NewFSIngestor(jobs, q, nil), jobs
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestIngestPathDeduplicates(t *testing.T) {
	ctx := context.Background()
	q := &memQueue{}
	ing, jobs := newIngestor(t, q)
	dir := t.TempDir()
	a := write(t, dir, "a.pdf", "same bytes")
	b := write(t, dir, "b.pdf", "same bytes")

	first, err := ing.IngestPath(ctx, a, false)
	if err != nil {
		t.Fatalf("IngestPath: %v", err)
	}
	if first.Deduplicated || first.Format != constants.PDF || q.len() != 1 {
		t.Fatalf("first = %+v queued=%d", first, q.len())
	}
	if q.jobs[0].TraceID == "" || q.jobs[0].Path != a {
		t.Errorf("queued job = %+v", q.jobs[0])
	}

	second, err := ing.IngestPath(ctx, b, false)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Deduplicated || second.JobID != first.JobID || q.len() != 1 {
		t.Errorf("second = %+v queued=%d", second, q.len())
	}

	forced, err := ing.IngestPath(ctx, b, true)
	if err != nil {
		t.Fatal(err)
	}
	if forced.Deduplicated || forced.JobID == first.JobID || q.len() != 2 {
		t.Errorf("forced = %+v queued=%d", forced, q.len())
	}

	// a failed job does not block re-ingestion
	latest, _ := jobs.FindByHash(ctx, first.HashHex)
	_ = jobs.FinishFailure(ctx, latest.ID, "boom")
	again, err := ing.IngestPath(ctx, a, false)
	if err != nil || again.Deduplicated {
		t.Errorf("after failure: %+v err=%v", again, err)
	}
}

func TestIngestPathRejects(t *testing.T) {
	ing, _ := newIngestor(t, &memQueue{})
	dir := t.TempDir()
	if _, err := ing.IngestPath(context.Background(), write(t, dir, "notes.docx", "x"), false); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("docx: %v", err)
	}
	if _, err := ing.IngestPath(context.Background(), filepath.Join(dir, "gone.pdf"), false); err == nil {
		t.Error("missing file: expected error")
	}
}

func TestIngestPathEnqueueFailureMarksJob(t *testing.T) {
	ctx := context.Background()
	ing, jobs := newIngestor(t, &memQueue{err: async.ErrQueueClosed})
	res, err := ing.IngestPath(ctx, write(t, t.TempDir(), "a.png", "img"), false)
	if !errors.Is(err, async.ErrQueueClosed) {
		t.Fatalf("err = %v", err)
	}
	job, _ := jobs.FindByHash(ctx, res.HashHex)
	if job == nil || job.Status != string(constants.JobStatusFailed) {
		t.Errorf("job = %+v", job)
	}
}

func TestIngestDirectory(t *testing.T) {
	q := &memQueue{}
	ing, _ := newIngestor(t, q)
	root := t.TempDir()
	write(t, root, "a.pdf", "a")
	write(t, root, "nested/b.txt", "Glucose: 95")
	write(t, root, "nested/c.PNG", "c")
	write(t, root, "dup.pdf", "a")
	write(t, root, "readme.md", "skip")
	write(t, root, ".hidden/d.pdf", "d")

	_, stats, err := ing.IngestDirectory(context.Background(), root, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Matched != 4 || stats.Succeeded != 4 || stats.Deduplicated != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if q.len() != 3 {
		t.Errorf("queued = %d, want 3", q.len())
	}

	if _, _, err := ing.IngestDirectory(context.Background(), "  ", true, false); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("blank root: %v", err)
	}
}

func TestWatcherEmitsNewFiles(t *testing.T) {
	root := t.TempDir()
	existing := write(t, root, "old.pdf", "x")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	expect := func(want string) {
		t.Helper()
		select {
		case got := <-events:
			if got != want {
				t.Errorf("event = %q, want %q", got, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
	expect(existing)

	write(t, root, "ignored.md", "x")
	fresh := write(t, root, "new.png", "y")
	expect(fresh)

	cancel()
	for range events {
	}
}

func TestStartWatcherNeedsRoots(t *testing.T) {
	if _, _, err := StartWatcher(context.Background(), WatchConfig{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPump(t *testing.T) {
	q := &memQueue{}
	ing, _ := newIngestor(t, q)
	dir := t.TempDir()
	events := make(chan string, 2)
	events <- write(t, dir, "a.pdf", "a")
	events <- filepath.Join(dir, "vanished.pdf")
	close(events)

	Pump(context.Background(), events, ing, nil)
	if q.len() != 1 {
		t.Errorf("queued = %d, want 1", q.len())
	}
}
