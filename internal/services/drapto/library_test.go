package drapto_test

import (
	"context"
	"testing"

	"dvrflow/internal/services/drapto"
)

func TestOutputPath(t *testing.T) {
	cases := map[string]string{
		"/rec/Show - Pilot.mpg": "/out/Show - Pilot.mkv",
		"/rec/plain":            "/out/plain.mkv",
		"/rec/.hidden":          "/out/.hidden.mkv",
	}
	for input, want := range cases {
		if got := drapto.OutputPath(input, "/out"); got != want {
			t.Fatalf("OutputPath(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestEncodeValidatesArguments(t *testing.T) {
	lib := drapto.NewLibrary(nil)
	if _, err := lib.Encode(context.Background(), "", "/out"); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := lib.Encode(context.Background(), "/rec/a.mpg", "  "); err == nil {
		t.Fatal("expected error for empty output dir")
	}
}
