package stores

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gridci/gridci/pkg/matrix"
	"github.com/gridci/gridci/pkg/report"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleReport() *report.Report {
	results := []matrix.JobResult{
		{
			Job: matrix.Job{
				Assignments: map[string]string{"python": "3.5", "db": "sqlite"},
				AxisOrder:   []string{"python", "db"},
			},
			Status:     matrix.JobStatusPassed,
			StartedAt:  time.Now().Add(-2 * time.Second),
			FinishedAt: time.Now().Add(-1 * time.Second),
		},
		{
			Job: matrix.Job{
				Assignments: map[string]string{"python": "3.5", "db": "postgres"},
				AxisOrder:   []string{"python", "db"},
			},
			AllowFailure: true,
			Status:       matrix.JobStatusSoftFailed,
			ExitCode:     1,
			Err:          matrix.NewJobFailureError("command exited non-zero", nil),
		},
	}
	return report.New("wafer-ci", "matrix.yaml", 1, results, time.Now().Add(-3*time.Second))
}

func TestInitCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init failed for nested path: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.SaveReport(context.Background(), sampleReport()); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("database directory missing: %v", err)
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := newTestStore(t)
	rep := sampleReport()

	if err := store.SaveReport(context.Background(), rep); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	run, err := store.GetRun(context.Background(), rep.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Matrix != "wafer-ci" || run.Verdict != "pass" {
		t.Errorf("unexpected run record: %+v", run)
	}
	if run.Total != 2 || run.Passed != 1 || run.SoftFailed != 1 || run.Excluded != 1 {
		t.Errorf("summary counts lost: %+v", run)
	}
}

func TestGetJobResultsOrderAndContent(t *testing.T) {
	store := newTestStore(t)
	rep := sampleReport()

	if err := store.SaveReport(context.Background(), rep); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	results, err := store.GetJobResults(context.Background(), rep.RunID)
	if err != nil {
		t.Fatalf("GetJobResults failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 job results, got %d", len(results))
	}
	if results[0].Label != "python=3.5 db=sqlite" {
		t.Errorf("resolution order not preserved: %+v", results[0])
	}
	if results[1].Status != "soft_failed" || !results[1].Allowed || results[1].ExitCode != 1 {
		t.Errorf("unexpected stored result: %+v", results[1])
	}
	if results[1].Error == "" {
		t.Error("error message not persisted")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)

	first := sampleReport()
	first.StartedAt = time.Now().Add(-time.Hour)
	second := sampleReport()

	for _, rep := range []*report.Report{first, second} {
		if err := store.SaveReport(context.Background(), rep); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}
	}

	runs, err := store.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second.RunID {
		t.Errorf("expected newest run first, got %s", runs[0].ID)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetRun(context.Background(), "no-such-run"); err == nil {
		t.Fatal("expected error for missing run")
	}
}

func TestPruneBefore(t *testing.T) {
	store := newTestStore(t)

	old := sampleReport()
	old.StartedAt = time.Now().Add(-48 * time.Hour)
	recent := sampleReport()

	for _, rep := range []*report.Report{old, recent} {
		if err := store.SaveReport(context.Background(), rep); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}
	}

	pruned, err := store.PruneBefore(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned run, got %d", pruned)
	}

	runs, err := store.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != recent.RunID {
		t.Errorf("unexpected surviving runs: %+v", runs)
	}
}
