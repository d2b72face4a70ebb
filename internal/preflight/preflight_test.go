package preflight

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"dvrflow/internal/services/tvdb"
	"dvrflow/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func tvdbServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["apikey"] != apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "t"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckTVDB_OK(t *testing.T) {
	srv := tvdbServer(t, "good")
	result := CheckTVDB(context.Background(), srv.URL, tvdb.Credentials{APIKey: "good", UserKey: "u", Username: "n"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckTVDB_BadKey(t *testing.T) {
	srv := tvdbServer(t, "good")
	result := CheckTVDB(context.Background(), srv.URL, tvdb.Credentials{APIKey: "bad", UserKey: "u", Username: "n"})
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
}

func TestCheckTVDB_Incomplete(t *testing.T) {
	result := CheckTVDB(context.Background(), "http://localhost", tvdb.Credentials{APIKey: "k"})
	if result.Passed || result.Detail != "credentials incomplete" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckDevice(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	if result := CheckDevice(context.Background(), addr); !result.Passed {
		_ = ln.Close()
		t.Fatalf("expected reachable device, got %s", result.Detail)
	}
	_ = ln.Close()

	if result := CheckDevice(context.Background(), addr); result.Passed {
		t.Fatal("expected closed port to fail")
	}
	if result := CheckDevice(context.Background(), ""); result.Passed {
		t.Fatal("expected failure for missing hostname")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	cfg.Paths.DestDir = t.TempDir()

	results := RunAll(context.Background(), cfg)
	// State and download directory checks only
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestRunAll_IncludesTVDBWhenConfigured(t *testing.T) {
	srv := tvdbServer(t, "key")
	cfg := testsupport.NewConfig(t)
	cfg.Paths.DestDir = ""
	cfg.TVDB.BaseURL = srv.URL
	cfg.TVDB.APIKey = "key"
	cfg.TVDB.UserKey = "user"
	cfg.TVDB.Username = "name"

	results := RunAll(context.Background(), cfg)
	idx := slices.IndexFunc(results, func(r Result) bool { return r.Name == "TVDB" })
	if idx < 0 {
		t.Fatal("expected TVDB check in results")
	}
	if !results[idx].Passed {
		t.Errorf("TVDB check failed: %s", results[idx].Detail)
	}
}

func TestCheckSystemDeps(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithDecoder("exit 0\n"),
		testsupport.WithFFmpeg("echo 'ffmpeg version 6.0'\n"),
	)
	cfg.Comskip.Path = ""

	statuses := CheckSystemDeps(context.Background(), cfg)
	if missing := MissingRequired(statuses); len(missing) != 0 {
		t.Fatalf("unexpected missing dependencies %v: %+v", missing, statuses)
	}
	byName := map[string]bool{}
	for _, s := range statuses {
		byName[s.Name] = s.Optional
	}
	if !byName["Comskip"] || byName["Java"] || byName["TivoDecoder"] || byName["FFmpeg"] {
		t.Fatalf("unexpected optional flags %v", byName)
	}
}

func TestCheckSystemDepsReportsMissingDecoder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Decrypt.TivoDecoderPath = filepath.Join(t.TempDir(), "missing.jar")
	cfg.Decrypt.JavaBinary = "clearly-not-present-java"

	missing := MissingRequired(CheckSystemDeps(context.Background(), cfg))
	if !slices.Contains(missing, "Java") || !slices.Contains(missing, "TivoDecoder") {
		t.Fatalf("expected java and decoder missing, got %v", missing)
	}
}
