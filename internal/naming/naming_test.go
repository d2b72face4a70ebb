package naming_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dvrflow/internal/metadata"
	"dvrflow/internal/naming"
)

func TestCanonicalName(t *testing.T) {
	meta := &metadata.EpisodeMetadata{Season: 1, Episode: 1}
	cases := []struct {
		title, episode string
		meta           *metadata.EpisodeMetadata
		want           string
	}{
		{"Show", "Pilot", meta, "Show - S01E01 - Pilot"},
		{"Show", "Pilot", nil, "Show - Pilot"},
		{"Show", "", nil, "Show"},
		{"Show", "", meta, "Show"},
		{"Show", "Part 1/2", &metadata.EpisodeMetadata{Season: 12, Episode: 105}, "Show - S12E105 - Part 1-2"},
	}
	for _, tc := range cases {
		got := naming.CanonicalName(tc.title, tc.episode, tc.meta)
		if got != tc.want {
			t.Fatalf("CanonicalName(%q, %q) = %q, want %q", tc.title, tc.episode, got, tc.want)
		}
		if again := naming.CanonicalName(tc.title, tc.episode, tc.meta); again != got {
			t.Fatalf("CanonicalName not deterministic: %q vs %q", got, again)
		}
	}
}

func TestNewPlanDefaults(t *testing.T) {
	plan := naming.NewPlan("Show - S01E01 - Pilot", "/rec/Show - Pilot.TiVo", naming.Layout{Container: "mp4", Decrypt: true})
	want := naming.Plan{
		Name:      "Show - S01E01 - Pilot",
		Source:    "/rec/Show - Pilot.TiVo",
		Decrypted: "/rec/Show - Pilot.mpg",
		CutList:   "/rec/Show - Pilot.edl",
		Final:     "/rec/Show - S01E01 - Pilot.mp4",
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestNewPlanDestinations(t *testing.T) {
	out := t.TempDir()
	plan := naming.NewPlan("Show", "/rec/Show.mpg", naming.Layout{
		TranscodeDestination: out,
		Container:            ".mkv",
	})
	if plan.Decrypted != "/rec/Show.mpg" {
		t.Fatalf("undecrypted source should pass through, got %q", plan.Decrypted)
	}
	if plan.Final != filepath.Join(out, "Show.mkv") {
		t.Fatalf("unexpected final path %q", plan.Final)
	}

	explicit := naming.NewPlan("Show", "/rec/Show.TiVo", naming.Layout{DecryptDestination: "/elsewhere/custom.mpg", Decrypt: true})
	if explicit.Decrypted != "/elsewhere/custom.mpg" {
		t.Fatalf("explicit destination ignored: %q", explicit.Decrypted)
	}
	if explicit.Final != "" {
		t.Fatalf("no container means no final artifact, got %q", explicit.Final)
	}
}

func TestExistenceChecks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Show - S01E01 - Pilot.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "empty.mpg"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !naming.ExistsAt(filepath.Join(dir, "Show - S01E01 - Pilot"), ".mkv", ".mp4") {
		t.Fatal("expected ExistsAt to match mp4")
	}
	if naming.ExistsAt(filepath.Join(dir, "Show - S01E01 - Pilot"), ".mkv") {
		t.Fatal("unexpected match for mkv")
	}
	if !naming.ExistsAnyExt(dir, "Show - S01E01 - Pilot") {
		t.Fatal("expected ExistsAnyExt match")
	}
	if naming.ExistsAnyExt(dir, "Show - Pilot") {
		t.Fatal("unexpected ExistsAnyExt match")
	}
	if naming.ExistsAnyExt(filepath.Join(dir, "missing"), "Show") {
		t.Fatal("missing directory must not match")
	}
	if naming.NonEmpty(filepath.Join(dir, "empty.mpg")) {
		t.Fatal("empty file reported as non-empty")
	}
	if !naming.NonEmpty(path) {
		t.Fatal("expected non-empty file")
	}
}

func TestParseName(t *testing.T) {
	cases := []struct {
		in   string
		want naming.Parsed
	}{
		{"Show - S01E02 - The Return", naming.Parsed{Title: "Show", EpisodeTitle: "The Return", Meta: &metadata.EpisodeMetadata{Season: 1, Episode: 2}}},
		{"Show - Pilot", naming.Parsed{Title: "Show", EpisodeTitle: "Pilot"}},
		{"Movie Night", naming.Parsed{Title: "Movie Night"}},
		{"Show - Part - Two", naming.Parsed{Title: "Show", EpisodeTitle: "Part - Two"}},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, naming.ParseName(tc.in)); diff != "" {
			t.Fatalf("ParseName(%q) mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestPartialPath(t *testing.T) {
	got := naming.PartialPath("/media/Show - Pilot.mp4")
	if got != "/media/Show - Pilot.dvrflow-partial.mp4" {
		t.Fatalf("PartialPath = %q", got)
	}
	if !naming.IsPartial(got) {
		t.Fatal("expected partial path to be recognised")
	}
	if naming.IsPartial("/media/Show - Pilot.mp4") {
		t.Fatal("final path must not look partial")
	}
}
