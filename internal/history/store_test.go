package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"dvrflow/internal/history"
	"dvrflow/internal/testsupport"
)

func TestRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	run, err := store.BeginRun(ctx, "/recordings", "process")
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected run ID")
	}

	want := []history.ItemRecord{
		{
			RunID:        run.ID,
			Title:        "The Simpsons",
			EpisodeTitle: "Bart Gets an F",
			SourcePath:   "/recordings/The Simpsons - Bart Gets an F.TiVo",
			FinalPath:    "/media/The Simpsons - S02E01 - Bart Gets an F.mp4",
			Status:       "succeeded",
			Warnings:     []string{"deleting source failed"},
			Stages: []history.StageRecord{
				{Stage: "decrypting", Outcome: "ran", Tool: "tivodecoder", Duration: 2 * time.Second},
				{Stage: "transcoding", Outcome: "ran", Tool: "ffmpeg/libx264", Duration: time.Minute},
			},
		},
		{
			RunID:        run.ID,
			Title:        "Broken",
			Status:       "failed",
			FailedStage:  "decrypting",
			ErrorKind:    "tool_execution",
			ErrorMessage: "tivodecoder exited with status 1",
		},
	}
	for _, rec := range want {
		if err := store.RecordItem(ctx, rec); err != nil {
			t.Fatalf("RecordItem failed: %v", err)
		}
	}
	if err := store.FinishRun(ctx, run.ID, history.Counts{Succeeded: 1, Failed: 1}); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	got, err := store.Items(ctx, run.ID)
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	opts := cmpopts.IgnoreFields(history.ItemRecord{}, "ID", "StartedAt", "FinishedAt")
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}

	runs, err := store.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].FinishedAt == nil || runs[0].Total() != 2 || runs[0].Failed != 1 {
		t.Fatalf("unexpected run summary: %+v", runs[0])
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	var ids []string
	for _, src := range []string{"a", "b", "c"} {
		run, err := store.BeginRun(ctx, src, "process")
		if err != nil {
			t.Fatalf("BeginRun failed: %v", err)
		}
		ids = append(ids, run.ID)
	}

	runs, err := store.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("unexpected order: %+v", runs)
	}
}

func TestRecordItemRequiresRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	if err := store.RecordItem(context.Background(), history.ItemRecord{Status: "failed"}); err == nil {
		t.Fatal("expected error for missing run id")
	}
}

func TestStatusCountsAndPrune(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	run, err := store.BeginRun(ctx, "src", "fetch")
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	for _, status := range []string{"skipped", "skipped", "succeeded"} {
		if err := store.RecordItem(ctx, history.ItemRecord{RunID: run.ID, Status: status}); err != nil {
			t.Fatalf("RecordItem failed: %v", err)
		}
	}
	counts, err := store.StatusCounts(ctx)
	if err != nil {
		t.Fatalf("StatusCounts failed: %v", err)
	}
	if diff := cmp.Diff(map[string]int{"skipped": 2, "succeeded": 1}, counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}

	removed, err := store.Prune(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned run, got %d", removed)
	}
	items, err := store.Items(ctx, run.ID)
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected items to cascade, got %d", len(items))
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := first.BeginRun(context.Background(), "src", "process"); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	_ = first.Close()

	second := testsupport.MustOpenHistory(t, cfg)
	runs, err := second.RecentRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected persisted run, got %d", len(runs))
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := history.Open(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
