package ocr

import (
	"regexp"
	"time"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reMultiSpace = regexp.MustCompile(`[ \t]{2,}`)
	reMultiBreak = regexp.MustCompile(`\n(?:[ \t]*\n)+`)
)

// reLabelRun finds a "label: value" pair immediately followed by another
// "label:" on the same line. RE2 has no lookaround, hence regexp2.
var reLabelRun = func() *regexp2.Regexp {
	re := regexp2.MustCompile(`(?<=\w): ([^:\n]+?) (?=\w+:)`, regexp2.None)
	re.MatchTimeout = 2 * time.Second
	return re
}()

// printableASCII keeps 0x20..0x7E plus newline and tab; any other rune
// becomes a single space so neighbouring tokens stay apart.
var printableASCII = runes.Map(func(r rune) rune {
	if r == '\n' || r == '\t' || (r >= 0x20 && r <= 0x7e) {
		return r
	}
	return ' '
})

// Normalize cleans raw OCR text for field extraction:
//
//  1. unify line breaks and blank out non-printable / non-ASCII runes
//  2. collapse runs of spaces and tabs into one space
//  3. collapse runs of line breaks (and whitespace-only lines) into one
//  4. split "A: 1 B: 2" into one label/value pair per line
//
// Normalize is total and idempotent. Step 4 is a textual heuristic: labels
// that end in ")" or contain a colon are left on their line.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s, _, _ = transform.String(printableASCII, s)
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = reMultiBreak.ReplaceAllString(s, "\n")
	return splitLabelRuns(s)
}

func splitLabelRuns(s string) string {
	out, err := reLabelRun.Replace(s, ": $1\n", -1, -1)
	if err != nil {
		// match timeout: keep the text unsplit rather than fail the document
		return s
	}
	return out
}
