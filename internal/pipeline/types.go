package pipeline

import (
	"path/filepath"
	"strings"
	"time"

	"dvrflow/internal/metadata"
	"dvrflow/internal/naming"
	"dvrflow/internal/stageexec"
)

// Format tags what kind of artifact a recording starts as.
type Format string

const (
	// FormatTiVo is a protected .TiVo recording that needs decrypting.
	FormatTiVo Format = "tivo"
	// FormatMPEG is a decrypted MPEG program stream.
	FormatMPEG Format = "mpeg"
	// FormatVideo is any other container ffmpeg can read.
	FormatVideo Format = "video"
)

// FormatForPath infers the format from a file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case strings.ToLower(naming.ExtTiVo):
		return FormatTiVo
	case naming.ExtMPEG, ".mpeg":
		return FormatMPEG
	default:
		return FormatVideo
	}
}

// Stage names in execution order.
const (
	StageResolving   = "resolving"
	StageAcquiring   = "acquiring"
	StageDecrypting  = "decrypting"
	StageDetecting   = "detecting"
	StageTranscoding = "transcoding"
	StageFinalizing  = "finalizing"
)

// RecordingRef identifies one recording to process. Exactly one of
// SourcePath or Locator is set.
type RecordingRef struct {
	Title        string
	EpisodeTitle string
	// SourcePath is a local recording.
	SourcePath string
	// Locator is the device download URL of a recording not yet fetched.
	Locator string
	Format  Format
	// Meta is season/episode already known from a numbered filename.
	Meta *metadata.EpisodeMetadata
}

// Remote reports whether the recording still lives on the device.
func (r RecordingRef) Remote() bool {
	return r.Locator != "" && r.SourcePath == ""
}

// Label names the recording in logs.
func (r RecordingRef) Label() string {
	switch {
	case r.Title != "" && r.EpisodeTitle != "":
		return r.Title + " - " + r.EpisodeTitle
	case r.Title != "":
		return r.Title
	default:
		return filepath.Base(r.SourcePath)
	}
}

// Status is the terminal state of one item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSkipped   Status = "skipped"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Scope limits how far the pipeline carries an item.
type Scope int

const (
	// ScopeFull runs every configured stage.
	ScopeFull Scope = iota
	// ScopeAcquire stops once the recording is downloaded.
	ScopeAcquire
	// ScopeDecrypt stops once the recording is decrypted.
	ScopeDecrypt
)

// String names the scope for logs and the history ledger.
func (s Scope) String() string {
	switch s {
	case ScopeAcquire:
		return "acquire"
	case ScopeDecrypt:
		return "decrypt"
	default:
		return "full"
	}
}

// Outcome is the result of processing one item.
type Outcome struct {
	Ref    RecordingRef
	Status Status
	// Name is the canonical, extension-less output name.
	Name string
	// Path is the last artifact successfully produced or found.
	Path        string
	Stages      []stageexec.Record
	Warnings    []string
	FailedStage string
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Diagnostics returns the captured tool output of the failed stage, if any.
func (o Outcome) Diagnostics() string {
	for _, rec := range o.Stages {
		if rec.Outcome == stageexec.OutcomeFailed {
			return rec.Diagnostics
		}
	}
	return ""
}
