package tasks

import (
	"regexp"
	"strconv"
	"strings"
)

// HunkHeader is the parsed form of a unified-diff hunk header line,
// e.g. "@@ -10,6 +12,8 @@ func main() {".
type HunkHeader struct {
	OldStartLine int
	OldLineCount int
	NewStartLine int
	NewLineCount int
	HeaderText   string
}

// Line counts default to 1 when omitted ("@@ -5 +5 @@").
var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)`)

// ParseHunkHeader scans a diff fragment for its first hunk header and
// parses it. Returns false when the fragment contains none.
func ParseHunkHeader(diff string) (HunkHeader, bool) {
	for _, line := range strings.Split(diff, "\n") {
		if !strings.HasPrefix(line, "@@") {
			continue
		}
		matches := hunkHeaderRegex.FindStringSubmatch(line)
		if len(matches) < 6 {
			continue
		}

		oldStart, _ := strconv.Atoi(matches[1])
		oldCount := 1
		if matches[2] != "" {
			oldCount, _ = strconv.Atoi(matches[2])
		}
		newStart, _ := strconv.Atoi(matches[3])
		newCount := 1
		if matches[4] != "" {
			newCount, _ = strconv.Atoi(matches[4])
		}

		return HunkHeader{
			OldStartLine: oldStart,
			OldLineCount: oldCount,
			NewStartLine: newStart,
			NewLineCount: newCount,
			HeaderText:   strings.TrimSpace(matches[5]),
		}, true
	}
	return HunkHeader{}, false
}

// ContainsNewLine reports whether a new-file line number falls inside the
// hunk's new-file span.
func (h HunkHeader) ContainsNewLine(line int) bool {
	return line >= h.NewStartLine && line < h.NewStartLine+h.NewLineCount
}
