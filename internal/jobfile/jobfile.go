package jobfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"dvrflow/internal/config"
	"dvrflow/internal/services"
)

// Action is what a job does.
type Action string

const (
	// ActionFetch downloads device recordings and carries them through the
	// configured stages.
	ActionFetch Action = "fetch"
	// ActionStrip only decrypts local recordings.
	ActionStrip Action = "strip"
	// ActionProcess runs the full pipeline over local recordings.
	ActionProcess Action = "process"
)

// Target is the override target for the action's destination and replace
// options.
func (a Action) Target() config.Target {
	if a == ActionStrip {
		return config.TargetDecrypt
	}
	return config.TargetTranscode
}

// File is a parsed job file.
type File struct {
	Jobs []Job `yaml:"jobs"`
}

// Job is one entry. Exactly one of Fetch, Strip or Process is set.
type Job struct {
	Name    string            `yaml:"name"`
	Fetch   *config.Overrides `yaml:"fetch"`
	Strip   *config.Overrides `yaml:"strip"`
	Process *config.Overrides `yaml:"process"`
}

// Action returns the job's action and options.
func (j Job) Action() (Action, config.Overrides) {
	switch {
	case j.Fetch != nil:
		return ActionFetch, *j.Fetch
	case j.Strip != nil:
		return ActionStrip, *j.Strip
	case j.Process != nil:
		return ActionProcess, *j.Process
	}
	return "", config.Overrides{}
}

// Label names the job in logs.
func (j Job) Label(index int) string {
	if name := strings.TrimSpace(j.Name); name != "" {
		return name
	}
	action, _ := j.Action()
	return fmt.Sprintf("job %d (%s)", index+1, action)
}

// Load reads and validates a job file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "jobs", "read", fmt.Sprintf("job file %s", path), err)
	}
	return Parse(data)
}

// Parse decodes and validates job file content. Unknown keys are rejected
// so a misspelt option never silently falls back to the config file.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, services.Wrap(services.ErrConfiguration, "jobs", "parse", "job file is empty", nil)
		}
		return nil, services.Wrap(services.ErrConfiguration, "jobs", "parse", "invalid job file", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every job names exactly one action with the options it
// cannot run without.
func (f *File) Validate() error {
	if len(f.Jobs) == 0 {
		return services.Wrap(services.ErrConfiguration, "jobs", "validate", "job file defines no jobs", nil)
	}
	var problems []string
	for i, job := range f.Jobs {
		if err := job.validate(); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", job.Label(i), err))
		}
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrConfiguration, "jobs", "validate", strings.Join(problems, "; "), nil)
	}
	return nil
}

func (j Job) validate() error {
	count := 0
	for _, set := range []bool{j.Fetch != nil, j.Strip != nil, j.Process != nil} {
		if set {
			count++
		}
	}
	if count != 1 {
		return fmt.Errorf("expected exactly one of fetch, strip or process, found %d", count)
	}
	action, opts := j.Action()
	switch action {
	case ActionFetch:
		if strings.TrimSpace(opts.Title) == "" {
			return errors.New("fetch requires title")
		}
		if strings.TrimSpace(opts.Source) != "" {
			return errors.New("fetch does not accept source")
		}
	default:
		if strings.TrimSpace(opts.Source) == "" {
			return fmt.Errorf("%s requires source", action)
		}
		if opts.Title != "" || opts.Episode != "" {
			return fmt.Errorf("%s does not accept title or episode", action)
		}
	}
	return nil
}
