package textio

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const whitespaceRegexPattern = `\s+`

// Typographic characters folded to plain ASCII before synthesis.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsisChar = "…"
)

// defaultSentenceEnd is appended when a line carries no terminal
// punctuation; the model produces cleaner prosody with a closed
// sentence.
const defaultSentenceEnd = "."

var whitespacePattern = regexp.MustCompile(whitespaceRegexPattern)

var typographyReplacer = strings.NewReplacer(
	emDash, ", ",
	enDash, "-",
	figureDash, "-",
	ellipsisChar, "...",
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
	" ", " ",
)

// sentenceEndRunes covers both ASCII and CJK terminal punctuation, plus
// closers that legitimately follow it.
var sentenceEndRunes = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
	'…': true, ':': true, ';': true,
	'：': true, '；': true,
	'"': true, '\'': true, ')': true, '）': true, '」': true, '』': true,
}

// Normalize prepares one line of text for synthesis: it folds smart
// quotes, dashes and the ellipsis character to plain forms, collapses
// runs of whitespace, and ensures the line ends with sentence
// punctuation. An empty or all-whitespace line normalizes to "".
func Normalize(text string) string {
	normalized := typographyReplacer.Replace(text)
	normalized = whitespacePattern.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(normalized)

	if normalized == "" {
		return ""
	}

	lastRune, _ := utf8.DecodeLastRuneInString(normalized)
	if !sentenceEndRunes[lastRune] {
		normalized += defaultSentenceEnd
	}

	return normalized
}

// NormalizeAll normalizes every line and drops the ones that collapse
// to nothing.
func NormalizeAll(texts []string) []string {
	kept := make([]string, 0, len(texts))

	for _, text := range texts {
		normalized := Normalize(text)
		if normalized == "" {
			continue
		}

		kept = append(kept, normalized)
	}

	return kept
}
