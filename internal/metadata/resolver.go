package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"dvrflow/internal/logging"
	"dvrflow/internal/services"
	"dvrflow/internal/services/tvdb"
	"dvrflow/internal/textutil"
)

// EpisodeMetadata is a resolved season/episode pair.
type EpisodeMetadata struct {
	Season        int
	Episode       int
	IgnoreFailure bool
}

// Credentials carries the TVDB account plus the failure policy.
type Credentials struct {
	APIKey        string
	UserKey       string
	Username      string
	IgnoreFailure bool
}

func (c Credentials) service() tvdb.Credentials {
	return tvdb.Credentials{APIKey: c.APIKey, UserKey: c.UserKey, Username: c.Username}
}

// LookupError reports why an episode could not be numbered.
type LookupError struct {
	Title        string
	EpisodeTitle string
	Reason       string
	Err          error
}

func (e *LookupError) Error() string {
	msg := fmt.Sprintf("metadata lookup for %q / %q: %s", e.Title, e.EpisodeTitle, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LookupError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrMetadataLookup}
	}
	return []error{services.ErrMetadataLookup, e.Err}
}

// Lookup is the subset of the TVDB client the resolver needs.
type Lookup interface {
	SearchSeries(ctx context.Context, creds tvdb.Credentials, name string) ([]tvdb.Series, error)
	Episodes(ctx context.Context, creds tvdb.Credentials, seriesID int64) ([]tvdb.Episode, error)
}

type cacheKey struct {
	title   string
	episode string
}

type seriesEntry struct {
	episodes []tvdb.Episode
	err      error
}

// Resolver numbers episodes against a remote database. Series episode lists
// and per-episode answers are memoised for the lifetime of the resolver.
type Resolver struct {
	client Lookup
	logger *slog.Logger

	mu     sync.Mutex
	series map[string]seriesEntry
	cache  map[cacheKey]resolution
}

type resolution struct {
	meta *EpisodeMetadata
	err  error
}

// NewResolver builds a resolver over client.
func NewResolver(client Lookup, logger *slog.Logger) *Resolver {
	return &Resolver{
		client: client,
		logger: logging.NewComponentLogger(logger, "metadata"),
		series: make(map[string]seriesEntry),
		cache:  make(map[cacheKey]resolution),
	}
}

// Resolve looks up the season and episode numbers for episodeTitle within
// title. It returns nil without contacting the service when there is no
// episode title or the credentials are incomplete. Lookup failures come back
// as *LookupError unless creds.IgnoreFailure is set, in which case the result
// is nil and the returned warning explains what happened.
func (r *Resolver) Resolve(ctx context.Context, title, episodeTitle string, creds Credentials) (*EpisodeMetadata, string, error) {
	title = strings.TrimSpace(title)
	episodeTitle = strings.TrimSpace(episodeTitle)
	if episodeTitle == "" {
		return nil, "", nil
	}
	if !creds.service().Complete() || r.client == nil {
		r.logger.Debug("metadata lookup skipped",
			logging.String("reason", "credentials not configured"),
			logging.String("title", title))
		return nil, "", nil
	}

	key := cacheKey{title: textutil.Fold(title), episode: textutil.Fold(episodeTitle)}
	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if !ok {
		meta, err := r.lookup(ctx, title, episodeTitle, creds)
		cached = resolution{meta: meta, err: err}
		if definite(err) {
			r.mu.Lock()
			r.cache[key] = cached
			r.mu.Unlock()
		}
	}

	if cached.err != nil {
		if creds.IgnoreFailure && ctx.Err() == nil {
			warning := cached.err.Error()
			logging.WarnWithContext(r.logger, "episode numbering unavailable", "metadata_lookup_ignored",
				logging.String("title", title),
				logging.String("episode_title", episodeTitle),
				logging.Error(cached.err),
				logging.String(logging.FieldImpact, "output uses un-numbered name"),
				logging.String(logging.FieldErrorHint, "check the title against TVDB or rename manually"))
			return nil, warning, nil
		}
		return nil, "", cached.err
	}
	meta := *cached.meta
	meta.IgnoreFailure = creds.IgnoreFailure
	return &meta, "", nil
}

func (r *Resolver) lookup(ctx context.Context, title, episodeTitle string, creds Credentials) (*EpisodeMetadata, error) {
	episodes, err := r.seriesEpisodes(ctx, title, creds)
	if err != nil {
		reason := "remote lookup failed"
		if errors.Is(err, tvdb.ErrNotFound) {
			reason = "series not found"
		}
		return nil, &LookupError{Title: title, EpisodeTitle: episodeTitle, Reason: reason, Err: err}
	}
	match, ok := MatchEpisode(episodes, episodeTitle)
	if !ok {
		return nil, &LookupError{Title: title, EpisodeTitle: episodeTitle, Reason: "episode not found"}
	}
	r.logger.Debug("episode resolved",
		logging.String("title", title),
		logging.String("episode_title", episodeTitle),
		logging.Int("season", match.AiredSeason),
		logging.Int("episode", match.AiredEpisodeNumber))
	return &EpisodeMetadata{Season: match.AiredSeason, Episode: match.AiredEpisodeNumber}, nil
}

func (r *Resolver) seriesEpisodes(ctx context.Context, title string, creds Credentials) ([]tvdb.Episode, error) {
	key := textutil.Fold(title)
	r.mu.Lock()
	entry, ok := r.series[key]
	r.mu.Unlock()
	if ok {
		return entry.episodes, entry.err
	}

	series, err := r.client.SearchSeries(ctx, creds.service(), title)
	if err == nil && len(series) == 0 {
		err = fmt.Errorf("series %q: %w", title, tvdb.ErrNotFound)
	}
	var episodes []tvdb.Episode
	if err == nil {
		episodes, err = r.client.Episodes(ctx, creds.service(), series[0].ID)
	}
	if definite(err) {
		r.mu.Lock()
		r.series[key] = seriesEntry{episodes: episodes, err: err}
		r.mu.Unlock()
	}
	return episodes, err
}

// definite reports whether a lookup answer holds for the rest of the
// process: a success or a miss the service reported. Timeouts and other
// transport failures are retried by the next episode that asks.
func definite(err error) bool {
	if err == nil || errors.Is(err, tvdb.ErrNotFound) {
		return true
	}
	var lookupErr *LookupError
	return errors.As(err, &lookupErr) && lookupErr.Err == nil
}

// MatchEpisode picks the episode whose name matches title. Exact matches win,
// then case-folded equality, then case-folded substring containment. Within a
// tier the first episode in service order wins.
func MatchEpisode(episodes []tvdb.Episode, title string) (tvdb.Episode, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return tvdb.Episode{}, false
	}
	tiers := []func(name string) bool{
		func(name string) bool { return name == title },
		func(name string) bool { return textutil.EqualFold(name, title) },
		func(name string) bool { return textutil.ContainsFold(name, title) },
	}
	for _, match := range tiers {
		for _, ep := range episodes {
			if match(strings.TrimSpace(ep.EpisodeName)) {
				return ep, true
			}
		}
	}
	return tvdb.Episode{}, false
}
