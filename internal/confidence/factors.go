package confidence

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// фрагменты, которые перевод обязан сохранить как есть
var fragmentRes = []*regexp.Regexp{
	regexp.MustCompile(`https?://[^\s)>\]]+`),
	regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.]+`),
	regexp.MustCompile(`\{\{?[\w.]+\}?\}`),
	regexp.MustCompile(`%[sdvfq]`),
	regexp.MustCompile(`</?[a-zA-Z][\w-]*[^<>]*>`),
	regexp.MustCompile("`[^`\n]+`"),
	regexp.MustCompile(`\d+(?:[.,]\d+)*`),
}

// Fragments достает из текста неизменяемые фрагменты без повторов
func Fragments(text string) []string {
	seen := make(map[string]struct{})
	var out []string

	masked := text
	for _, re := range fragmentRes {
		for _, m := range re.FindAllString(masked, -1) {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
		// числа внутри URL и тегов не считаем отдельно
		masked = re.ReplaceAllString(masked, " ")
	}
	return out
}

// PreservedFragments - сколько фрагментов источника нашлось в выводе
func PreservedFragments(output, source string) (found, preserved int) {
	frags := Fragments(source)
	for _, f := range frags {
		if strings.Contains(output, f) {
			preserved++
		}
	}
	return len(frags), preserved
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？', ':', ';', '"', '»', ')', '”':
		return true
	}
	return false
}

// StructureRatio - доля предложений, которые начинаются не со строчной
// буквы и заканчиваются знаком препинания
func StructureRatio(text string) float64 {
	sentences := sentences(text)
	if len(sentences) == 0 {
		return 0
	}
	ok := 0
	for _, s := range sentences {
		first, _ := utf8.DecodeRuneInString(s)
		last, _ := utf8.DecodeLastRuneInString(s)
		if !unicode.IsLower(first) && (isTerminal(last) || unicode.IsDigit(last)) {
			ok++
		}
	}
	return float64(ok) / float64(len(sentences))
}

func sentences(text string) []string {
	var out []string
	start := 0
	flush := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
	}

	for off, r := range text {
		size := utf8.RuneLen(r)
		switch r {
		case '\n':
			flush(off)
			start = off + size
		case '.', '!', '?', '…':
			end := off + size
			next, _ := utf8.DecodeRuneInString(text[end:])
			if end == len(text) || unicode.IsSpace(next) {
				flush(end)
				start = end
			}
		}
	}
	if start < len(text) {
		flush(len(text))
	}
	return out
}

// LengthRatio в символах; пустой источник дает 1
func LengthRatio(output, source string) float64 {
	src := utf8.RuneCountInString(strings.TrimSpace(source))
	if src == 0 {
		return 1
	}
	return float64(utf8.RuneCountInString(strings.TrimSpace(output))) / float64(src)
}

// LengthFactor: [0.5,3] - норма, [0.3,4] - подозрительно, дальше - плохо
func LengthFactor(ratio float64) float64 {
	switch {
	case ratio >= 0.5 && ratio <= 3:
		return 1
	case ratio >= 0.3 && ratio <= 4:
		return 0.8
	default:
		return 0.5
	}
}

var errorMarkers = []string{
	"[translation failed]",
	"[error]",
	"translation error",
	"i cannot translate",
	"i can't translate",
	"i'm sorry, but",
	"as an ai",
	"не могу перевести",
	"ошибка перевода",
	"как языковая модель",
}

// HasErrorMarkers - модель вернула отказ или сообщение об ошибке вместо перевода
func HasErrorMarkers(output string) bool {
	lower := strings.ToLower(output)
	for _, m := range errorMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// TermCoverage - доля терминов глоссария из источника, переведенных как положено.
// ok=false, если ни одного термина в источнике нет.
func TermCoverage(output, source string, glossary map[string]string) (coverage float64, ok bool) {
	lowerSrc := strings.ToLower(source)
	lowerOut := strings.ToLower(output)

	total, hit := 0, 0
	for term, translation := range glossary {
		if term == "" || !strings.Contains(lowerSrc, strings.ToLower(term)) {
			continue
		}
		total++
		if strings.Contains(lowerOut, strings.ToLower(translation)) {
			hit++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(hit) / float64(total), true
}

func countPunctuation(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsPunct(r) {
			n++
		}
	}
	return n
}

// PunctuationRatio = min/max количества знаков препинания
func PunctuationRatio(output, source string) float64 {
	a, b := countPunctuation(output), countPunctuation(source)
	if a == 0 && b == 0 {
		return 1
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return float64(lo) / float64(hi)
}

var delimiterPairs = [][2]rune{
	{'(', ')'},
	{'[', ']'},
	{'{', '}'},
	{'«', '»'},
}

// DelimitersBalanced проверяет парные скобки, кавычки-елочки и ```-блоки
func DelimitersBalanced(text string) bool {
	if strings.Count(text, "```")%2 != 0 {
		return false
	}
	for _, p := range delimiterPairs {
		depth := 0
		for _, r := range text {
			switch r {
			case p[0]:
				depth++
			case p[1]:
				depth--
			}
			if depth < 0 {
				return false
			}
		}
		if depth != 0 {
			return false
		}
	}
	return strings.Count(text, `"`)%2 == 0
}

var metaPreambles = []string{
	"here is the translation",
	"here's the translation",
	"translation:",
	"translated text:",
	"sure, here",
	"вот перевод",
	"перевод:",
	"конечно, вот",
}

// HasMetaPreamble - вывод начинается с пояснения модели, а не с перевода
func HasMetaPreamble(output string) bool {
	head := strings.ToLower(strings.TrimSpace(output))
	if len(head) > 80 {
		head = head[:80]
	}
	for _, p := range metaPreambles {
		if strings.HasPrefix(head, p) {
			return true
		}
	}
	return false
}

// ForeignScriptLeak - остались буквы письменности script вне `кода` и «цитат».
// Доля считается от всех букв вывода.
func ForeignScriptLeak(output string, script *unicode.RangeTable) float64 {
	if script == nil {
		return 0
	}
	letters, foreign := 0, 0
	inCode, inQuote := false, false
	for _, r := range output {
		switch r {
		case '`':
			inCode = !inCode
			continue
		case '«':
			inQuote = true
			continue
		case '»':
			inQuote = false
			continue
		}
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if !inCode && !inQuote && unicode.Is(script, r) {
			foreign++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(foreign) / float64(letters)
}

// Formatting - итог проверки оформления
type Formatting struct {
	DelimitersBalanced bool
	MetaPreamble       bool
	ForeignLeak        float64
}

// OK допускает до 5% букв исходной письменности (имена, аббревиатуры)
func (f Formatting) OK() bool {
	return f.DelimitersBalanced && !f.MetaPreamble && f.ForeignLeak <= 0.05
}

func CheckFormatting(output string, sourceScript *unicode.RangeTable) Formatting {
	return Formatting{
		DelimitersBalanced: DelimitersBalanced(output),
		MetaPreamble:       HasMetaPreamble(output),
		ForeignLeak:        ForeignScriptLeak(output, sourceScript),
	}
}
