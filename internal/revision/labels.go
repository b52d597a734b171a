package revision

import (
	"regexp"
	"strings"
)

// labelLine matches "Key: value" and "Key=value" metadata lines inside a
// change message. Keys are restricted so prose with a colon does not turn
// into a label.
var labelLine = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_-]*) *[:=] *(.*)$`)

// ParseMessageLabels extracts labels from a change message. Every matching
// line counts, in order, so a key repeated across lines keeps all of its
// values.
func ParseMessageLabels(message string) *Labels {
	labels := NewLabels()
	for _, line := range strings.Split(message, "\n") {
		if m := labelLine.FindStringSubmatch(line); m != nil {
			labels.Put(m[1], m[2])
		}
	}
	return labels
}
