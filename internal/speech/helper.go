package speech

import (
	"strings"
	"unicode/utf8"
)

var (
	sentenceEnders = []rune{'.', '!', '?', ';', '\n', '。', '！', '？', '；'}
	clauseBreaks   = []rune{',', ':', '，', '、', '：'}
)

// SplitText breaks text into chunks of at most maxChars characters, cutting
// at sentence boundaries and merging short sentences together. A sentence
// longer than maxChars is further split at clause boundaries; a clause with
// no break point is returned whole and left to the caller's length ceiling.
// The transformation is pure: identical input yields identical chunks.
func SplitText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = 240
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, sentence := range splitAfterAny(text, sentenceEnders) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if utf8.RuneCountInString(sentence) > maxChars {
			flush()
			chunks = append(chunks, mergePieces(splitAfterAny(sentence, clauseBreaks), maxChars)...)
			continue
		}

		if current.Len() > 0 &&
			utf8.RuneCountInString(current.String())+utf8.RuneCountInString(sentence)+1 > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()

	return chunks
}

// splitAfterAny cuts s into pieces, each ending just after one of the given
// boundary runes.
func splitAfterAny(s string, boundaries []rune) []string {
	var pieces []string
	last := 0
	for i, r := range s {
		for _, b := range boundaries {
			if r == b {
				pieces = append(pieces, s[last:i+utf8.RuneLen(r)])
				last = i + utf8.RuneLen(r)
				break
			}
		}
	}
	if last < len(s) {
		pieces = append(pieces, s[last:])
	}
	return pieces
}

// mergePieces greedily packs consecutive pieces into chunks of at most
// maxChars characters. An individual piece over the limit passes through
// untouched.
func mergePieces(pieces []string, maxChars int) []string {
	var out []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
	}

	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		if current.Len() > 0 &&
			utf8.RuneCountInString(current.String())+utf8.RuneCountInString(piece)+1 > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(piece)
	}
	flush()

	return out
}
