package captions

import (
	"regexp"
	"strings"
)

var (
	stageDirectionRE = regexp.MustCompile(`\([^)]*\)`)
	bracketTagRE     = regexp.MustCompile(`\[[^\]]*\]`)
	separatorRE      = regexp.MustCompile(`(?m)^\s*(?:={3,}|-{3,}|\*{3,})\s*$`)
	markdownRE       = regexp.MustCompile(`[*_#` + "`" + `]+`)
)

// CleanStory turns raw model output into narratable text: stage directions,
// speaker tags, separators and markdown markers are removed and whitespace
// is collapsed to single spaces.
func CleanStory(s string) string {
	s = separatorRE.ReplaceAllString(s, " ")
	s = stageDirectionRE.ReplaceAllString(s, " ")
	s = bracketTagRE.ReplaceAllString(s, " ")
	s = markdownRE.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}
