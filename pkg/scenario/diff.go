package scenario

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// lineDiff renders a unified-style line diff from want to got. Lines only in
// want are prefixed "- ", lines only in got "+ ".
func lineDiff(want, got []string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToRunes(joinLines(want), joinLines(got))
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(a, b, false), lines)

	var sb strings.Builder

	for _, d := range diffs {
		prefix := "  "

		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffEqual:
		}

		for line := range strings.SplitSeq(strings.TrimSuffix(d.Text, "\n"), "\n") {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	return strings.Join(lines, "\n") + "\n"
}
