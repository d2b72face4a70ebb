package naming

import (
	"regexp"
	"strconv"
	"strings"

	"dvrflow/internal/metadata"
)

var numberedPattern = regexp.MustCompile(`^(.+?) - [Ss](\d{1,3})[Ee](\d{1,4}) - (.+)$`)

// Parsed is what can be recovered from an existing recording filename.
type Parsed struct {
	Title        string
	EpisodeTitle string
	Meta         *metadata.EpisodeMetadata
}

// ParseName splits a canonical name back into its parts. Names with no
// " - " separator are treated as a bare title.
func ParseName(base string) Parsed {
	base = strings.TrimSpace(base)
	if m := numberedPattern.FindStringSubmatch(base); m != nil {
		season, _ := strconv.Atoi(m[2])
		episode, _ := strconv.Atoi(m[3])
		return Parsed{
			Title:        strings.TrimSpace(m[1]),
			EpisodeTitle: strings.TrimSpace(m[4]),
			Meta:         &metadata.EpisodeMetadata{Season: season, Episode: episode},
		}
	}
	if title, episode, ok := strings.Cut(base, " - "); ok {
		return Parsed{Title: strings.TrimSpace(title), EpisodeTitle: strings.TrimSpace(episode)}
	}
	return Parsed{Title: base}
}
