package preflight

import (
	"context"

	"dvrflow/internal/config"
	"dvrflow/internal/services/tvdb"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// State directory (always checked)
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))

	if cfg.Paths.DestDir != "" {
		results = append(results, CheckDirectoryAccess("Download directory", cfg.Paths.DestDir))
	}

	if cfg.Device.Hostname != "" {
		results = append(results, CheckDevice(ctx, cfg.Device.Hostname))
	}

	if cfg.TVDBCredentialsSet() {
		results = append(results, CheckTVDB(ctx, cfg.TVDB.BaseURL, TVDBCredentials(cfg)))
	}

	return results
}

// TVDBCredentials extracts the lookup credentials from cfg.
func TVDBCredentials(cfg *config.Config) tvdb.Credentials {
	return tvdb.Credentials{APIKey: cfg.TVDB.APIKey, UserKey: cfg.TVDB.UserKey, Username: cfg.TVDB.Username}
}
