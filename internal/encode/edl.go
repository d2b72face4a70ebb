package encode

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
)

// EDL actions that remove footage. 1 (mute) and 2 (scene marker) keep it.
const (
	edlActionCut        = 0
	edlActionCommercial = 3
)

// Segment is a span of the source in seconds. End of zero means "to the end
// of the file".
type Segment struct {
	Start float64
	End   float64
}

// ParseEDL reads a comskip/MPlayer edit decision list and returns the cut
// spans, sorted and merged.
func ParseEDL(r io.Reader) ([]Segment, error) {
	var cuts []Segment
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("edl line %d: expected start and end", lineNo)
		}
		start, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("edl line %d: start: %w", lineNo, err)
		}
		end, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("edl line %d: end: %w", lineNo, err)
		}
		action := edlActionCut
		if len(fields) > 2 {
			if action, err = strconv.Atoi(fields[2]); err != nil {
				return nil, fmt.Errorf("edl line %d: action: %w", lineNo, err)
			}
		}
		if action != edlActionCut && action != edlActionCommercial {
			continue
		}
		if start < 0 || end <= start {
			continue
		}
		cuts = append(cuts, Segment{Start: start, End: end})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read edl: %w", err)
	}
	return mergeSegments(cuts), nil
}

// ReadEDL parses the cut list at path.
func ReadEDL(path string) ([]Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseEDL(f)
}

func mergeSegments(cuts []Segment) []Segment {
	if len(cuts) < 2 {
		return cuts
	}
	slices.SortFunc(cuts, func(a, b Segment) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})
	merged := []Segment{cuts[0]}
	for _, cut := range cuts[1:] {
		last := &merged[len(merged)-1]
		if cut.Start <= last.End {
			last.End = max(last.End, cut.End)
			continue
		}
		merged = append(merged, cut)
	}
	return merged
}

// KeepSegments returns the spans left after removing cuts. The final span is
// open-ended.
func KeepSegments(cuts []Segment) []Segment {
	var keep []Segment
	pos := 0.0
	for _, cut := range cuts {
		if cut.Start > pos {
			keep = append(keep, Segment{Start: pos, End: cut.Start})
		}
		pos = cut.End
	}
	return append(keep, Segment{Start: pos})
}

// WriteConcatList writes an ffconcat script that plays only the kept spans
// of src.
func WriteConcatList(w io.Writer, src string, keep []Segment) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "ffconcat version 1.0")
	quoted := "'" + strings.ReplaceAll(src, "'", `'\''`) + "'"
	for _, seg := range keep {
		fmt.Fprintf(bw, "file %s\n", quoted)
		if seg.Start > 0 {
			fmt.Fprintf(bw, "inpoint %s\n", formatSeconds(seg.Start))
		}
		if seg.End > 0 {
			fmt.Fprintf(bw, "outpoint %s\n", formatSeconds(seg.End))
		}
	}
	return bw.Flush()
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// PrepareInput returns the transcode input for src. When cutList names an
// EDL with at least one cut, an ffconcat script is written into workDir and
// the returned cleanup removes it. A missing cut list means no cutting.
func PrepareInput(src, cutList, workDir string) (TranscodeInput, func(), error) {
	plain := TranscodeInput{Path: src}
	noop := func() {}
	if cutList == "" {
		return plain, noop, nil
	}
	cuts, err := ReadEDL(cutList)
	if err != nil {
		if os.IsNotExist(err) {
			return plain, noop, nil
		}
		return TranscodeInput{}, noop, err
	}
	if len(cuts) == 0 {
		return plain, noop, nil
	}

	file, err := os.CreateTemp(workDir, ".dvrflow-*.ffconcat")
	if err != nil {
		return TranscodeInput{}, noop, fmt.Errorf("create concat list: %w", err)
	}
	cleanup := func() { _ = os.Remove(file.Name()) }
	if err := WriteConcatList(file, src, KeepSegments(cuts)); err != nil {
		file.Close()
		cleanup()
		return TranscodeInput{}, noop, fmt.Errorf("write concat list: %w", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return TranscodeInput{}, noop, fmt.Errorf("close concat list: %w", err)
	}
	return TranscodeInput{Path: file.Name(), Concat: true}, cleanup, nil
}
