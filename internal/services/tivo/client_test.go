package tivo_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"dvrflow/internal/services/tivo"
)

const (
	testMAK   = "1234567890"
	testRealm = "TiVo DVR"
	testNonce = "abcdef0123"
)

// digestGuard rejects requests lacking a valid digest response for testMAK.
func digestGuard(t *testing.T, next http.Handler) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Digest ") || !validDigest(r.Method, header) {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Digest realm=%q, nonce=%q, qop="auth"`, testRealm, testNonce))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validDigest(method, header string) bool {
	params := map[string]string{}
	for _, part := range strings.Split(strings.TrimPrefix(header, "Digest "), ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok {
			params[strings.ToLower(key)] = strings.Trim(value, `"`)
		}
	}
	if params["username"] != tivo.Username || params["nonce"] != testNonce {
		return false
	}
	ha1 := md5Hex(tivo.Username + ":" + testRealm + ":" + testMAK)
	ha2 := md5Hex(method + ":" + params["uri"])
	want := md5Hex(strings.Join([]string{ha1, testNonce, params["nc"], params["cnonce"], "auth", ha2}, ":"))
	return params["response"] == want
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

type fakeItem struct {
	title   string
	episode *string
	url     string
}

func strPtr(s string) *string { return &s }

func nowPlaying(items []fakeItem, pageSize int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Container") != "/NowPlaying" || r.URL.Query().Get("Recurse") != "Yes" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("AnchorOffset"))
		end := min(offset+pageSize, len(items))
		page := []fakeItem{}
		if offset < len(items) {
			page = items[offset:end]
		}
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
		b.WriteString(`<TiVoContainer xmlns="http://www.tivo.com/developer/calypso-protocol-1.6/">`)
		b.WriteString(`<Details><Title>Now Playing</Title></Details>`)
		fmt.Fprintf(&b, `<ItemStart>%d</ItemStart><ItemCount>%d</ItemCount>`, offset, len(page))
		for _, it := range page {
			b.WriteString(`<Item><Details>`)
			fmt.Fprintf(&b, `<Title>%s</Title>`, it.title)
			if it.episode != nil {
				fmt.Fprintf(&b, `<EpisodeTitle>%s</EpisodeTitle>`, *it.episode)
			}
			fmt.Fprintf(&b, `</Details><Links><Content><Url>%s</Url></Content></Links></Item>`, it.url)
		}
		b.WriteString(`</TiVoContainer>`)
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(b.String()))
	})
}

var library = []fakeItem{
	{title: "The Simpsons", episode: strPtr("Bart Gets an F"), url: "http://dvr/download/1.TiVo?id=1"},
	{title: "Jeopardy!", episode: strPtr("Show 1"), url: "http://dvr/download/2.TiVo?id=2"},
	{title: "The Simpsons", episode: strPtr("Homer's Odyssey"), url: "http://dvr/download/3.TiVo?id=3"},
	{title: "Some Movie", url: "http://dvr/download/4.TiVo?id=4"},
	{title: "The Simpsons", episode: strPtr("Treehouse of Horror"), url: "http://dvr/download/5.TiVo?id=5"},
}

func newClient(t *testing.T, handler http.Handler) *tivo.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("GET /TiVoConnect", handler)
	srv := httptest.NewServer(digestGuard(t, mux))
	t.Cleanup(srv.Close)
	return tivo.New("ignored", testMAK, tivo.WithBaseURL(srv.URL), tivo.WithDownloadPause(0))
}

func TestListPagesThroughAllItems(t *testing.T) {
	client := newClient(t, nowPlaying(library, 2))

	got, err := client.List(context.Background(), tivo.Query{Title: "The Simpsons"})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	want := []tivo.Recording{
		{Title: "The Simpsons", EpisodeTitle: "Bart Gets an F", URL: "http://dvr/download/1.TiVo?id=1&Format=video/x-tivo-mpeg"},
		{Title: "The Simpsons", EpisodeTitle: "Homer's Odyssey", URL: "http://dvr/download/3.TiVo?id=3&Format=video/x-tivo-mpeg"},
		{Title: "The Simpsons", EpisodeTitle: "Treehouse of Horror", URL: "http://dvr/download/5.TiVo?id=5&Format=video/x-tivo-mpeg"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("recordings mismatch (-want +got):\n%s", diff)
	}
}

func TestListEpisodeFilterReturnsFirstMatch(t *testing.T) {
	client := newClient(t, nowPlaying(library, 10))

	got, err := client.List(context.Background(), tivo.Query{Title: "The Simpsons", Episode: "Homer's Odyssey"})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 1 || got[0].EpisodeTitle != "Homer's Odyssey" {
		t.Fatalf("unexpected recordings: %+v", got)
	}
}

func TestListTitleOnlyRecording(t *testing.T) {
	client := newClient(t, nowPlaying(library, 10))

	got, err := client.List(context.Background(), tivo.Query{Title: "Some Movie"})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 1 || got[0].EpisodeTitle != "" {
		t.Fatalf("unexpected recordings: %+v", got)
	}
}

func TestListNoMatchesIsEmpty(t *testing.T) {
	client := newClient(t, nowPlaying(library, 10))

	got, err := client.List(context.Background(), tivo.Query{Title: "the simpsons"})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("title match should be exact, got %+v", got)
	}
}

func TestListMissingLinkIsUnexpectedFormat(t *testing.T) {
	client := newClient(t, nowPlaying([]fakeItem{{title: "Broken", episode: strPtr("x")}}, 10))

	_, err := client.List(context.Background(), tivo.Query{Title: "Broken"})
	if err == nil || !strings.Contains(err.Error(), "unexpected format") {
		t.Fatalf("expected unexpected format error, got %v", err)
	}
}

func TestListRejectsWrongMAK(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("GET /TiVoConnect", nowPlaying(library, 10))
	srv := httptest.NewServer(digestGuard(t, mux))
	t.Cleanup(srv.Close)
	client := tivo.New("ignored", "wrong", tivo.WithBaseURL(srv.URL))

	if _, err := client.List(context.Background(), tivo.Query{Title: "The Simpsons"}); err == nil {
		t.Fatal("expected authentication failure")
	}
}

func TestListReusesDigestChallenge(t *testing.T) {
	var challenges atomic.Int32
	mux := http.NewServeMux()
	mux.Handle("GET /TiVoConnect", nowPlaying(library, 10))
	guard := digestGuard(t, mux)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			challenges.Add(1)
		}
		guard.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	client := tivo.New("ignored", testMAK, tivo.WithBaseURL(srv.URL))

	for range 2 {
		if _, err := client.List(context.Background(), tivo.Query{Title: "The Simpsons"}); err != nil {
			t.Fatalf("List returned error: %v", err)
		}
	}
	if got := challenges.Load(); got != 1 {
		t.Fatalf("expected one unsigned request, got %d", got)
	}
}

func TestDownloadWritesAtomically(t *testing.T) {
	payload := strings.Repeat("tivo", 1024)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /download/1.TiVo", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Format") != tivo.DownloadFormat {
			http.Error(w, "format", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(payload))
	})
	srv := httptest.NewServer(digestGuard(t, mux))
	t.Cleanup(srv.Close)
	client := tivo.New("ignored", testMAK, tivo.WithBaseURL(srv.URL), tivo.WithDownloadPause(0))

	dest := filepath.Join(t.TempDir(), "nested", "The Simpsons - Bart Gets an F.TiVo")
	rec := tivo.Recording{Title: "The Simpsons", URL: srv.URL + "/download/1.TiVo?id=1&Format=" + tivo.DownloadFormat}
	n, err := client.Download(context.Background(), rec, dest)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("expected %d bytes, got %d", len(payload), n)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(data) != payload {
		t.Fatal("downloaded content mismatch")
	}
	entries, _ := os.ReadDir(filepath.Dir(dest))
	if len(entries) != 1 {
		t.Fatalf("expected only the final file, found %d entries", len(entries))
	}
}

func TestDownloadFailureLeavesNoFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /download/1.TiVo", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(digestGuard(t, mux))
	t.Cleanup(srv.Close)
	client := tivo.New("ignored", testMAK, tivo.WithBaseURL(srv.URL), tivo.WithDownloadPause(0))

	dest := filepath.Join(t.TempDir(), "show.TiVo")
	if _, err := client.Download(context.Background(), tivo.Recording{Title: "show", URL: "/download/1.TiVo?id=1"}, dest); err == nil {
		t.Fatal("expected download error")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("expected no file at %s, stat err=%v", dest, err)
	}
}

func TestDownloadPauseWaitsBetweenDownloads(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /download/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("data"))
	})
	srv := httptest.NewServer(digestGuard(t, mux))
	t.Cleanup(srv.Close)
	client := tivo.New("ignored", testMAK, tivo.WithBaseURL(srv.URL), tivo.WithDownloadPause(time.Hour))

	dir := t.TempDir()
	if _, err := client.Download(context.Background(), tivo.Recording{Title: "a", URL: "/download/a"}, filepath.Join(dir, "a.TiVo")); err != nil {
		t.Fatalf("first download: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.Download(ctx, tivo.Recording{Title: "b", URL: "/download/b"}, filepath.Join(dir, "b.TiVo")); err == nil {
		t.Fatal("expected second download to be held by the pause")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one request to reach the device, got %d", hits.Load())
	}
}
