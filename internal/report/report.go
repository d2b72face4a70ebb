package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"dvrflow/internal/batch"
	"dvrflow/internal/services"
)

// Report is the JSON form of one batch.
type Report struct {
	RunID      string    `json:"run_id,omitempty"`
	Source     string    `json:"source"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Succeeded  int       `json:"succeeded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Canceled   bool      `json:"canceled,omitempty"`
	Items      []Item    `json:"items"`
}

// Item is the JSON form of one outcome.
type Item struct {
	Title        string   `json:"title,omitempty"`
	EpisodeTitle string   `json:"episode_title,omitempty"`
	Source       string   `json:"source,omitempty"`
	Status       string   `json:"status"`
	Name         string   `json:"name,omitempty"`
	Path         string   `json:"path,omitempty"`
	Stages       []Stage  `json:"stages,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	FailedStage  string   `json:"failed_stage,omitempty"`
	ErrorKind    string   `json:"error_kind,omitempty"`
	Error        string   `json:"error,omitempty"`
	Diagnostics  string   `json:"diagnostics,omitempty"`
}

// Stage is one stage record.
type Stage struct {
	Stage    string  `json:"stage"`
	Outcome  string  `json:"outcome"`
	Tool     string  `json:"tool,omitempty"`
	ExitCode int     `json:"exit_code,omitempty"`
	Seconds  float64 `json:"seconds,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// FromSummary converts a batch summary.
func FromSummary(s batch.Summary) Report {
	r := Report{
		RunID:      s.RunID,
		Source:     s.Source,
		Mode:       s.Mode,
		StartedAt:  s.StartedAt.UTC(),
		FinishedAt: s.FinishedAt.UTC(),
		Succeeded:  s.Succeeded,
		Skipped:    s.Skipped,
		Failed:     s.Failed,
		Canceled:   s.Canceled,
		Items:      make([]Item, 0, len(s.Items)),
	}
	for _, out := range s.Items {
		item := Item{
			Title:        out.Ref.Title,
			EpisodeTitle: out.Ref.EpisodeTitle,
			Source:       out.Ref.SourcePath,
			Status:       string(out.Status),
			Name:         out.Name,
			Path:         out.Path,
			Warnings:     out.Warnings,
			FailedStage:  out.FailedStage,
			Diagnostics:  out.Diagnostics(),
		}
		if item.Source == "" {
			item.Source = out.Ref.Locator
		}
		if out.Err != nil {
			item.ErrorKind = services.Classify(out.Err)
			item.Error = out.Err.Error()
		}
		for _, rec := range out.Stages {
			item.Stages = append(item.Stages, Stage{
				Stage:    rec.Stage,
				Outcome:  string(rec.Outcome),
				Tool:     rec.Tool,
				ExitCode: rec.ExitCode,
				Seconds:  rec.Duration.Seconds(),
				Reason:   rec.Reason,
			})
		}
		r.Items = append(r.Items, item)
	}
	return r
}

// Encode writes reports as indented JSON. A single report is written as
// an object, several as an array.
func Encode(w io.Writer, reports ...Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	var v any = reports
	if len(reports) == 1 {
		v = reports[0]
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Write atomically replaces path with the JSON encoding of reports.
func Write(path string, reports ...Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "report", "mkdir", "create report directory", err)
	}
	var v any = reports
	if len(reports) == 1 {
		v = reports[0]
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "report", "write", "write report", err)
	}
	return nil
}

// Read loads a single report written by Write.
func Read(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, services.Wrap(services.ErrNotFound, "report", "read", "no report available", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, services.Wrap(services.ErrValidation, "report", "decode", "report is corrupt", err)
	}
	return r, nil
}
