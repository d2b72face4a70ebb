package batch_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"

	"dvrflow/internal/batch"
	"dvrflow/internal/metadata"
	"dvrflow/internal/pipeline"
	"dvrflow/internal/services"
	"dvrflow/internal/services/tivo"
	"dvrflow/internal/testsupport"
)

func collect(t *testing.T, e *batch.Expander, src batch.Source) ([]pipeline.RecordingRef, []error) {
	t.Helper()
	var (
		refs []pipeline.RecordingRef
		errs []error
	)
	for ref, err := range e.Expand(context.Background(), src) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refs = append(refs, ref)
	}
	return refs, errs
}

func TestExpandDirectoryIsSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"b - Two.TiVo",
		"a - S01E02 - One.tivo",
		"c.mpg",
		"notes.txt",
		".hidden.TiVo",
		"d - Part.dvrflow-partial.mpg",
	} {
		testsupport.WriteFile(t, filepath.Join(dir, name), 4)
	}
	testsupport.WriteFile(t, filepath.Join(dir, "sub", "e.TiVo"), 4)

	refs, errs := collect(t, batch.NewExpander(nil), batch.DirectorySource(dir, batch.RecordingExtensions...))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	want := []pipeline.RecordingRef{
		{Title: "a", EpisodeTitle: "One", SourcePath: filepath.Join(dir, "a - S01E02 - One.tivo"), Format: pipeline.FormatTiVo, Meta: &metadata.EpisodeMetadata{Season: 1, Episode: 2}},
		{Title: "b", EpisodeTitle: "Two", SourcePath: filepath.Join(dir, "b - Two.TiVo"), Format: pipeline.FormatTiVo},
		{Title: "c", SourcePath: filepath.Join(dir, "c.mpg"), Format: pipeline.FormatMPEG},
	}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Fatalf("refs mismatch (-want +got):\n%s", diff)
	}

	again, _ := collect(t, batch.NewExpander(nil), batch.DirectorySource(dir, batch.ProtectedExtensions...))
	if len(again) != 2 {
		t.Fatalf("expected only .TiVo recordings, got %d", len(again))
	}
}

func TestExpandMissingSources(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	for _, src := range []batch.Source{batch.FileSource(missing), batch.DirectorySource(missing)} {
		refs, errs := collect(t, batch.NewExpander(nil), src)
		if len(refs) != 0 || len(errs) != 1 || !errors.Is(errs[0], services.ErrNotFound) {
			t.Fatalf("%s: expected one not-found error, got refs=%v errs=%v", src.Kind, refs, errs)
		}
	}
}

type fakeLister struct {
	recordings []tivo.Recording
	err        error
}

func (f fakeLister) List(context.Context, tivo.Query) ([]tivo.Recording, error) {
	return f.recordings, f.err
}

func TestExpandDevice(t *testing.T) {
	lister := fakeLister{recordings: []tivo.Recording{
		{Title: "Show", EpisodeTitle: "One", URL: "http://dvr/1"},
		{Title: "Show", EpisodeTitle: "Two", URL: "http://dvr/2"},
	}}
	refs, errs := collect(t, batch.NewExpander(lister), batch.DeviceSource(tivo.Query{Title: "Show"}))
	if len(errs) != 0 || len(refs) != 2 {
		t.Fatalf("unexpected expansion refs=%v errs=%v", refs, errs)
	}
	if !refs[0].Remote() || refs[0].Format != pipeline.FormatTiVo || refs[1].Locator != "http://dvr/2" {
		t.Fatalf("unexpected refs: %+v", refs)
	}
}

func TestExpandDeviceWithoutMatchesFails(t *testing.T) {
	_, errs := collect(t, batch.NewExpander(fakeLister{}), batch.DeviceSource(tivo.Query{Title: "Nothing"}))
	if len(errs) != 1 || !errors.Is(errs[0], services.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", errs)
	}
}

type fakeProcessor struct {
	fail   map[string]bool
	seen   []string
	onCall func(ref pipeline.RecordingRef)
}

func (f *fakeProcessor) Scope() pipeline.Scope { return pipeline.ScopeFull }

func (f *fakeProcessor) Process(_ context.Context, ref pipeline.RecordingRef) pipeline.Outcome {
	f.seen = append(f.seen, ref.Title)
	if f.onCall != nil {
		f.onCall(ref)
	}
	if f.fail[ref.Title] {
		return pipeline.Outcome{Ref: ref, Status: pipeline.StatusFailed, FailedStage: pipeline.StageDecrypting, Err: services.ErrToolExecution}
	}
	return pipeline.Outcome{Ref: ref, Status: pipeline.StatusSucceeded, Path: ref.SourcePath}
}

func writeRecordings(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		testsupport.WriteFile(t, filepath.Join(dir, name+".mpg"), 8)
	}
	return dir
}

func TestRunIsolatesFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	dir := writeRecordings(t, "a", "b", "c")
	proc := &fakeProcessor{fail: map[string]bool{"b": true}}

	runner := batch.NewRunner(batch.NewExpander(nil), proc, batch.WithLedger(store), batch.WithLock(cfg.LockPath()))
	summary, err := runner.Run(context.Background(), batch.DirectorySource(dir))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, proc.seen); diff != "" {
		t.Fatalf("processing order mismatch (-want +got):\n%s", diff)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 || summary.OK() {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	items, err := store.Items(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if len(items) != 3 || items[1].Status != "failed" || items[1].ErrorKind != "tool_execution" {
		t.Fatalf("unexpected ledger items: %+v", items)
	}
	runs, err := store.RecentRuns(context.Background(), 1)
	if err != nil || len(runs) != 1 || runs[0].Failed != 1 || runs[0].FinishedAt == nil {
		t.Fatalf("unexpected ledger run: %+v (err=%v)", runs, err)
	}
}

func TestRunStopsBetweenItemsOnCancel(t *testing.T) {
	dir := writeRecordings(t, "a", "b", "c")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := &fakeProcessor{onCall: func(ref pipeline.RecordingRef) {
		if ref.Title == "a" {
			cancel()
		}
	}}

	summary, err := batch.NewRunner(batch.NewExpander(nil), proc).Run(ctx, batch.DirectorySource(dir))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !summary.Canceled || len(proc.seen) != 1 {
		t.Fatalf("expected cancellation after first item, got canceled=%v seen=%v", summary.Canceled, proc.seen)
	}
}

func TestRunRecordsExpansionFailure(t *testing.T) {
	proc := &fakeProcessor{}
	summary, err := batch.NewRunner(batch.NewExpander(fakeLister{}), proc).Run(context.Background(), batch.DeviceSource(tivo.Query{Title: "Gone"}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Failed != 1 || summary.Items[0].FailedStage != batch.StageExpanding || len(proc.seen) != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestRunRefusesHeldLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	held := flock.New(cfg.LockPath())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("could not take lock: %v", err)
	}
	defer held.Unlock()

	runner := batch.NewRunner(batch.NewExpander(nil), &fakeProcessor{}, batch.WithLock(cfg.LockPath()))
	if _, err := runner.Run(context.Background(), batch.DirectorySource(t.TempDir())); !errors.Is(err, batch.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestRunRejectsSingleFileDestinationForManyRecordings(t *testing.T) {
	dir := writeRecordings(t, "a", "b")
	dest := filepath.Join(t.TempDir(), "out", "stripped.mpg")

	for _, src := range []batch.Source{batch.DirectorySource(dir), batch.DeviceSource(tivo.Query{Title: "a"})} {
		proc := &fakeProcessor{}
		runner := batch.NewRunner(batch.NewExpander(fakeLister{}), proc, batch.WithDestinations("", dest))
		_, err := runner.Run(context.Background(), src)
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", src.Kind, err)
		}
		if len(proc.seen) != 0 {
			t.Fatalf("%s: no recording may be processed, saw %v", src.Kind, proc.seen)
		}
	}

	proc := &fakeProcessor{}
	runner := batch.NewRunner(batch.NewExpander(nil), proc, batch.WithDestinations(dest, filepath.Dir(dest)))
	if _, err := runner.Run(context.Background(), batch.FileSource(filepath.Join(dir, "a.mpg"))); err != nil {
		t.Fatalf("single file source should accept a file destination: %v", err)
	}
	if len(proc.seen) != 1 {
		t.Fatalf("expected the single recording to run, saw %v", proc.seen)
	}
}
