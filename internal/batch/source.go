package batch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"dvrflow/internal/naming"
	"dvrflow/internal/pipeline"
	"dvrflow/internal/services"
	"dvrflow/internal/services/tivo"
)

// Kind selects how a Source expands.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindDevice
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindDevice:
		return "device"
	default:
		return "file"
	}
}

// Extension sets used to filter directory sources.
var (
	// ProtectedExtensions matches only raw device recordings.
	ProtectedExtensions = []string{naming.ExtTiVo}
	// RecordingExtensions matches everything the full pipeline accepts.
	RecordingExtensions = []string{naming.ExtTiVo, naming.ExtMPEG, ".mpeg", ".ts", ".mp4", ".m4v", ".mkv"}
)

// Source is something a batch expands into recordings.
type Source struct {
	Kind Kind
	// Path is the file or directory for local sources.
	Path string
	// Extensions filters directory entries, compared case-insensitively.
	Extensions []string
	// Query selects device recordings.
	Query tivo.Query
}

// FileSource is a single local recording.
func FileSource(path string) Source {
	return Source{Kind: KindFile, Path: path}
}

// DirectorySource is every matching recording directly inside dir.
func DirectorySource(dir string, exts ...string) Source {
	return Source{Kind: KindDirectory, Path: dir, Extensions: exts}
}

// DeviceSource is every device recording matching q.
func DeviceSource(q tivo.Query) Source {
	return Source{Kind: KindDevice, Query: q}
}

// PathSource picks FileSource or DirectorySource by what path is on disk.
func PathSource(path string, exts ...string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{}, services.Wrap(services.ErrNotFound, "expanding", "stat", fmt.Sprintf("source %s", path), err)
	}
	if info.IsDir() {
		return DirectorySource(path, exts...), nil
	}
	return FileSource(path), nil
}

// String describes the source for logs and the ledger.
func (s Source) String() string {
	if s.Kind == KindDevice {
		if s.Query.Episode != "" {
			return fmt.Sprintf("device:%s/%s", s.Query.Title, s.Query.Episode)
		}
		return "device:" + s.Query.Title
	}
	return s.Path
}

// Lister lists device recordings.
type Lister interface {
	List(ctx context.Context, q tivo.Query) ([]tivo.Recording, error)
}

// Expander turns Sources into RecordingRefs.
type Expander struct {
	lister Lister
}

// NewExpander builds an expander. lister may be nil when no device source
// will be expanded.
func NewExpander(lister Lister) *Expander {
	return &Expander{lister: lister}
}

// Expand yields the recordings of src lazily. Each call walks the source
// again, so the sequence can be restarted. A source that cannot be read
// yields a single error.
func (e *Expander) Expand(ctx context.Context, src Source) iter.Seq2[pipeline.RecordingRef, error] {
	return func(yield func(pipeline.RecordingRef, error) bool) {
		switch src.Kind {
		case KindFile:
			info, err := os.Stat(src.Path)
			switch {
			case err != nil:
				yield(pipeline.RecordingRef{SourcePath: src.Path}, services.Wrap(services.ErrNotFound, "expanding", "stat", "source file missing", err))
			case info.IsDir():
				yield(pipeline.RecordingRef{SourcePath: src.Path}, services.Wrap(services.ErrValidation, "expanding", "stat", "source is a directory", nil))
			default:
				yield(RefFromPath(src.Path), nil)
			}
		case KindDirectory:
			e.expandDirectory(src, yield)
		case KindDevice:
			e.expandDevice(ctx, src, yield)
		default:
			yield(pipeline.RecordingRef{}, fmt.Errorf("unknown source kind %d", src.Kind))
		}
	}
}

func (e *Expander) expandDirectory(src Source, yield func(pipeline.RecordingRef, error) bool) {
	entries, err := os.ReadDir(src.Path)
	if err != nil {
		yield(pipeline.RecordingRef{SourcePath: src.Path}, services.Wrap(services.ErrNotFound, "expanding", "read dir", "source directory unreadable", err))
		return
	}
	// os.ReadDir returns entries sorted by name.
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || naming.IsPartial(name) {
			continue
		}
		if !matchesExtension(name, src.Extensions) {
			continue
		}
		if !yield(RefFromPath(filepath.Join(src.Path, name)), nil) {
			return
		}
	}
}

func (e *Expander) expandDevice(ctx context.Context, src Source, yield func(pipeline.RecordingRef, error) bool) {
	label := pipeline.RecordingRef{Title: src.Query.Title, EpisodeTitle: src.Query.Episode, Format: pipeline.FormatTiVo}
	if e.lister == nil {
		yield(label, services.Wrap(services.ErrConfiguration, "expanding", "list", "no device client configured", nil))
		return
	}
	recordings, err := e.lister.List(ctx, src.Query)
	if err != nil {
		marker := services.ErrTransient
		if errors.Is(err, tivo.ErrUnexpectedFormat) {
			marker = services.ErrValidation
		}
		yield(label, services.Wrap(marker, "expanding", "list", "querying device recordings failed", err))
		return
	}
	if len(recordings) == 0 {
		yield(label, services.Wrap(services.ErrNotFound, "expanding", "list", "no recordings were found", nil))
		return
	}
	for _, rec := range recordings {
		ref := pipeline.RecordingRef{
			Title:        rec.Title,
			EpisodeTitle: rec.EpisodeTitle,
			Locator:      rec.URL,
			Format:       pipeline.FormatTiVo,
		}
		if !yield(ref, nil) {
			return
		}
	}
}

// RefFromPath builds a reference for a local file, recovering title,
// episode title and any SxxEyy numbering from its name.
func RefFromPath(path string) pipeline.RecordingRef {
	parsed := naming.ParseName(naming.Stem(path))
	return pipeline.RecordingRef{
		Title:        parsed.Title,
		EpisodeTitle: parsed.EpisodeTitle,
		SourcePath:   path,
		Format:       pipeline.FormatForPath(path),
		Meta:         parsed.Meta,
	}
}

func matchesExtension(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	return slices.ContainsFunc(exts, func(candidate string) bool {
		return strings.ToLower(candidate) == ext
	})
}
