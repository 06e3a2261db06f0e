package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/rollcall/internal/model"
	"github.com/ppiankov/rollcall/internal/pipeline"
)

type mockAdvancer struct {
	mu       sync.Mutex
	seen     []string
	failures map[string]error
	outcomes map[string]pipeline.Outcome
}

func (m *mockAdvancer) Run(ctx context.Context, id string) (pipeline.Outcome, error) {
	time.Sleep(5 * time.Millisecond)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, id)
	if err := m.failures[id]; err != nil {
		return "", err
	}
	if out, ok := m.outcomes[id]; ok {
		return out, nil
	}
	return pipeline.OutcomeWaiting, nil
}

type mockDueLister struct {
	due   []model.Artifact
	limit int
	err   error
}

func (m *mockDueLister) DueArtifacts(ctx context.Context, now time.Time, limit int) ([]model.Artifact, error) {
	m.limit = limit
	return m.due, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBatchProcessor_ProcessArtifacts(t *testing.T) {
	adv := &mockAdvancer{
		failures: map[string]error{"a2": errors.New("database locked")},
		outcomes: map[string]pipeline.Outcome{"a3": pipeline.OutcomePaused},
	}
	processor := NewBatchProcessor(adv, 2, discardLogger())

	ids := []string{"a1", "a2", "a3", "a4"}
	results := processor.ProcessArtifacts(context.Background(), ids)

	if len(results) != len(ids) {
		t.Fatalf("expected %d results, got %d", len(ids), len(results))
	}
	for i, r := range results {
		if r.ArtifactID != ids[i] {
			t.Errorf("result %d: expected %s, got %s", i, ids[i], r.ArtifactID)
		}
	}
	if results[1].GetError() == nil {
		t.Error("expected error for a2")
	}
	if results[2].Outcome != pipeline.OutcomePaused {
		t.Errorf("expected a3 paused, got %s", results[2].Outcome)
	}
	if len(adv.seen) != len(ids) {
		t.Errorf("expected every artifact advanced, got %v", adv.seen)
	}

	tally := Tally(results)
	if tally["error"] != 1 || tally[string(pipeline.OutcomeWaiting)] != 2 || tally[string(pipeline.OutcomePaused)] != 1 {
		t.Errorf("unexpected tally %v", tally)
	}
}

func TestBatchProcessor_ProcessArtifacts_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockAdvancer{}, 2, discardLogger())
	results := processor.ProcessArtifacts(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestBatchProcessor_ProcessArtifacts_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processor := NewBatchProcessor(&mockAdvancer{}, 1, discardLogger())
	results := processor.ProcessArtifacts(ctx, []string{"a1", "a2", "a3", "a4", "a5"})
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, r := range results {
		if r == nil {
			t.Fatal("nil result")
		}
	}
}

func TestBatchProcessor_ProcessDue(t *testing.T) {
	lister := &mockDueLister{due: []model.Artifact{{ID: "a1"}, {ID: "a2"}}}
	adv := &mockAdvancer{}
	processor := NewBatchProcessor(adv, 4, discardLogger())

	results, err := processor.ProcessDue(context.Background(), lister, time.Now(), 25)
	if err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
	if lister.limit != 25 {
		t.Errorf("expected limit 25 passed through, got %d", lister.limit)
	}

	lister.err = errors.New("no such table")
	if _, err := processor.ProcessDue(context.Background(), lister, time.Now(), 25); err == nil {
		t.Error("expected list error")
	}
}

func TestReadIDsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	content := "# backlog\na1\n\n  a2  \na1\n# done\na3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := ReadIDsFromFile(path)
	if err != nil {
		t.Fatalf("ReadIDsFromFile failed: %v", err)
	}
	want := []string{"a1", "a2", "a3"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("id %d: expected %s, got %s", i, want[i], ids[i])
		}
	}
}

func TestReadIDsFromFile_NonExistent(t *testing.T) {
	if _, err := ReadIDsFromFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	if err := os.WriteFile(path, []byte("a1\na2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	processor := NewBatchProcessor(&mockAdvancer{}, 2, discardLogger())
	results, err := processor.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}

	if _, err := processor.ProcessFile(context.Background(), path+".missing"); err == nil {
		t.Error("expected error for missing file")
	}
}
