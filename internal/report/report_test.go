package report_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"dvrflow/internal/batch"
	"dvrflow/internal/pipeline"
	"dvrflow/internal/report"
	"dvrflow/internal/services"
	"dvrflow/internal/stageexec"
)

func sampleSummary() batch.Summary {
	started := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	return batch.Summary{
		RunID:      "run-1",
		Source:     "/recordings",
		Mode:       "full",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Succeeded:  1,
		Failed:     1,
		Items: []pipeline.Outcome{
			{
				Ref:    pipeline.RecordingRef{Title: "Show", EpisodeTitle: "Pilot", SourcePath: "/recordings/Show - Pilot.TiVo"},
				Status: pipeline.StatusSucceeded,
				Name:   "Show - S01E01 - Pilot",
				Path:   "/recordings/Show - S01E01 - Pilot.mkv",
				Stages: []stageexec.Record{{Stage: "decrypting", Outcome: stageexec.OutcomeRan, Tool: "java", Duration: 2 * time.Second}},
			},
			{
				Ref:         pipeline.RecordingRef{Title: "Other", Locator: "http://dvr/2"},
				Status:      pipeline.StatusFailed,
				FailedStage: "acquiring",
				Err:         fmt.Errorf("download: %w", services.ErrTransient),
				Stages:      []stageexec.Record{{Stage: "acquiring", Outcome: stageexec.OutcomeFailed, Diagnostics: "connection reset"}},
			},
		},
	}
}

func TestFromSummary(t *testing.T) {
	r := report.FromSummary(sampleSummary())
	if r.Succeeded != 1 || r.Failed != 1 || len(r.Items) != 2 {
		t.Fatalf("unexpected counts: %+v", r)
	}
	failed := r.Items[1]
	want := report.Item{
		Title:       "Other",
		Source:      "http://dvr/2",
		Status:      "failed",
		FailedStage: "acquiring",
		ErrorKind:   "transient",
		Error:       "download: transient failure",
		Diagnostics: "connection reset",
		Stages:      []report.Stage{{Stage: "acquiring", Outcome: "failed"}},
	}
	if diff := cmp.Diff(want, failed); diff != "" {
		t.Fatalf("failed item mismatch (-want +got):\n%s", diff)
	}
	if r.Items[0].Stages[0].Seconds != 2 {
		t.Fatalf("expected stage duration in seconds, got %v", r.Items[0].Stages[0].Seconds)
	}
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "last_report.json")
	want := report.FromSummary(sampleSummary())
	if err := report.Write(path, want); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := report.Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}

	if _, err := report.Read(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEncodeMany(t *testing.T) {
	var buf bytes.Buffer
	one := report.FromSummary(sampleSummary())
	if err := report.Encode(&buf, one, one); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var decoded []report.Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected a JSON array: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected two reports, got %d", len(decoded))
	}
}
