package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dvrflow/internal/metadata"
	"dvrflow/internal/textutil"
)

// Artifact extensions produced by each stage.
const (
	ExtTiVo    = ".TiVo"
	ExtMPEG    = ".mpg"
	ExtCutList = ".edl"
)

// CanonicalName returns the extension-less output name for a recording:
// "Title - S01E01 - Episode" with metadata, "Title - Episode" without it and
// "Title" when there is no episode title. Unsafe characters are replaced.
func CanonicalName(title, episodeTitle string, meta *metadata.EpisodeMetadata) string {
	title = strings.TrimSpace(title)
	episodeTitle = strings.TrimSpace(episodeTitle)
	var name string
	switch {
	case episodeTitle != "" && meta != nil:
		name = fmt.Sprintf("%s - S%02dE%02d - %s", title, meta.Season, meta.Episode, episodeTitle)
	case episodeTitle != "":
		name = fmt.Sprintf("%s - %s", title, episodeTitle)
	default:
		name = title
	}
	return textutil.SanitizeFileName(name)
}

// Layout describes where each stage writes. Empty directories mean "beside
// the stage input".
type Layout struct {
	// DownloadDir receives device downloads.
	DownloadDir string
	// DecryptDestination is a directory, or an explicit file for single items.
	DecryptDestination string
	// TranscodeDestination is a directory, or an explicit file for single items.
	TranscodeDestination string
	// Container is the final file extension without the dot.
	Container string
	// Decrypt reports whether the source needs the decrypt stage.
	Decrypt bool
}

// Plan lists the artifact path of every stage for one recording.
type Plan struct {
	Name      string
	Source    string
	Decrypted string
	CutList   string
	Final     string
}

// NewPlan derives the stage artifact paths. source is the acquired input, or
// the planned download path for device recordings.
func NewPlan(name, source string, layout Layout) Plan {
	plan := Plan{Name: name, Source: source}

	srcDir := filepath.Dir(source)
	srcStem := Stem(source)
	if layout.Decrypt {
		plan.Decrypted = destinationFor(layout.DecryptDestination, srcDir, srcStem, ExtMPEG)
	} else {
		plan.Decrypted = source
	}

	decDir := filepath.Dir(plan.Decrypted)
	plan.CutList = filepath.Join(decDir, Stem(plan.Decrypted)+ExtCutList)

	container := strings.TrimPrefix(layout.Container, ".")
	if container != "" {
		plan.Final = destinationFor(layout.TranscodeDestination, decDir, name, "."+container)
	}
	return plan
}

// DownloadPath returns where a device recording named name is saved.
func DownloadPath(dir, name string) string {
	return filepath.Join(dir, name+ExtTiVo)
}

// destinationFor resolves a configured destination. An explicit file path
// (one with an extension that is not an existing directory) is used as-is.
func destinationFor(dest, fallbackDir, stem, ext string) string {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return filepath.Join(fallbackDir, stem+ext)
	}
	if IsExplicitFile(dest) {
		return dest
	}
	return filepath.Join(dest, stem+ext)
}

// IsExplicitFile reports whether a destination names a file rather than a
// directory.
func IsExplicitFile(dest string) bool {
	if dest == "" || strings.HasSuffix(dest, string(filepath.Separator)) {
		return false
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return false
	}
	return filepath.Ext(dest) != ""
}

// Stem returns the base name of path without its final extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// WithoutExt strips the final extension from path.
func WithoutExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// ExistsAt reports whether pathWithoutExt exists with any of exts as a
// non-directory.
func ExistsAt(pathWithoutExt string, exts ...string) bool {
	for _, ext := range exts {
		if info, err := os.Stat(pathWithoutExt + ext); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// Exists reports whether path exists as a non-directory.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	return ExistsAt(WithoutExt(path), filepath.Ext(path))
}

// NonEmpty reports whether path is a regular file with content.
func NonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// ExistsAnyExt reports whether dir holds a file whose name without its final
// extension equals base. A missing directory never matches.
func ExistsAnyExt(dir, base string) bool {
	if dir == "" || base == "" {
		return false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if Stem(entry.Name()) == base {
			return true
		}
	}
	return false
}

// partialMarker tags in-progress stage outputs. The real extension stays last
// so tools that infer a container from it still work.
const partialMarker = ".dvrflow-partial"

// PartialPath returns the staging path a stage writes before renaming the
// finished artifact to path.
func PartialPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + partialMarker + ext
}

// IsPartial reports whether name is an in-progress stage output.
func IsPartial(name string) bool {
	return strings.Contains(filepath.Base(name), partialMarker)
}
