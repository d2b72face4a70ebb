package history

import "time"

// Run is one batch invocation.
type Run struct {
	ID         string
	Source     string
	Mode       string
	StartedAt  time.Time
	FinishedAt *time.Time
	Succeeded  int
	Skipped    int
	Failed     int
	Canceled   bool
}

// Total returns the number of items the run recorded.
func (r Run) Total() int {
	return r.Succeeded + r.Skipped + r.Failed
}

// StageRecord is the persisted outcome of one pipeline stage.
type StageRecord struct {
	Stage       string        `json:"stage"`
	Outcome     string        `json:"outcome"`
	Tool        string        `json:"tool,omitempty"`
	ExitCode    int           `json:"exit_code,omitempty"`
	Duration    time.Duration `json:"duration_ns,omitempty"`
	Diagnostics string        `json:"diagnostics,omitempty"`
}

// ItemRecord is the persisted outcome of one recording.
type ItemRecord struct {
	ID           int64
	RunID        string
	Title        string
	EpisodeTitle string
	SourcePath   string
	FinalPath    string
	Status       string
	FailedStage  string
	ErrorKind    string
	ErrorMessage string
	Warnings     []string
	Stages       []StageRecord
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Counts summarises a finished run.
type Counts struct {
	Succeeded int
	Skipped   int
	Failed    int
	Canceled  bool
}
