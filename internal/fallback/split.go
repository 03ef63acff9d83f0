package fallback

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var blankLineRe = regexp.MustCompile(`\n[ \t]*\n`)

// Split делит текст не больше чем на maxChunks кусков.
// Границы по убыванию предпочтения: пустые строки, концы предложений,
// одиночные переводы строки, середина текста. Следующий уровень пробуется,
// только если предыдущий дал не больше одного куска.
func Split(text string, maxChunks int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChunks < 2 {
		return []string{text}
	}

	levels := []struct {
		split func(string) []string
		sep   string
	}{
		{splitParagraphs, "\n\n"},
		{splitSentences, " "},
		{splitLines, "\n"},
	}

	for _, lvl := range levels {
		pieces := lvl.split(text)
		if len(pieces) > 1 {
			return group(pieces, maxChunks, lvl.sep)
		}
	}
	return splitMidpoint(text)
}

func splitParagraphs(text string) []string {
	return nonEmpty(blankLineRe.Split(text, -1))
}

func splitLines(text string) []string {
	return nonEmpty(strings.Split(text, "\n"))
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

// splitSentences режет после знака конца предложения, за которым идет пробел
func splitSentences(text string) []string {
	var pieces []string
	start := 0

	for off, r := range text {
		if !isSentenceEnd(r) {
			continue
		}
		end := off + utf8.RuneLen(r)
		next, _ := utf8.DecodeRuneInString(text[end:])
		// несколько знаков подряд ("?!", "...") остаются в одном предложении
		if end < len(text) && unicode.IsSpace(next) {
			pieces = append(pieces, text[start:end])
			start = end
		}
	}
	if start < len(text) {
		pieces = append(pieces, text[start:])
	}
	return nonEmpty(pieces)
}

func splitMidpoint(text string) []string {
	runes := []rune(text)
	if len(runes) < 2 {
		return []string{text}
	}
	mid := len(runes) / 2
	return nonEmpty([]string{string(runes[:mid]), string(runes[mid:])})
}

// group склеивает соседние куски, чтобы их стало не больше maxChunks,
// стараясь выровнять длину
func group(pieces []string, maxChunks int, sep string) []string {
	if len(pieces) <= maxChunks {
		return pieces
	}

	total := 0
	for _, p := range pieces {
		total += utf8.RuneCountInString(p)
	}
	target := total / maxChunks
	if target == 0 {
		target = 1
	}

	out := make([]string, 0, maxChunks)
	var cur []string
	size := 0
	for i, p := range pieces {
		cur = append(cur, p)
		size += utf8.RuneCountInString(p)

		remainingPieces := len(pieces) - i - 1
		remainingSlots := maxChunks - len(out) - 1
		if (size >= target && remainingSlots > 0) || remainingPieces < remainingSlots {
			out = append(out, strings.Join(cur, sep))
			cur = nil
			size = 0
		}
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, sep))
	}
	return out
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
