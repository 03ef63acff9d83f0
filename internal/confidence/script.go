package confidence

import (
	"strings"
	"unicode"
)

var scripts = []*unicode.RangeTable{
	unicode.Latin,
	unicode.Cyrillic,
	unicode.Greek,
	unicode.Arabic,
	unicode.Hebrew,
	unicode.Han,
	unicode.Hangul,
	unicode.Devanagari,
	unicode.Thai,
}

// DominantScript - письменность большинства букв текста, nil если букв нет
func DominantScript(text string) *unicode.RangeTable {
	counts := make([]int, len(scripts))
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		for i, s := range scripts {
			if unicode.Is(s, r) {
				counts[i]++
				break
			}
		}
	}
	best, bestN := -1, 0
	for i, n := range counts {
		if n > bestN {
			best, bestN = i, n
		}
	}
	if best < 0 {
		return nil
	}
	return scripts[best]
}

var languageScripts = map[string]*unicode.RangeTable{
	"en": unicode.Latin, "de": unicode.Latin, "fr": unicode.Latin, "es": unicode.Latin,
	"it": unicode.Latin, "pt": unicode.Latin, "nl": unicode.Latin, "pl": unicode.Latin,
	"cs": unicode.Latin, "tr": unicode.Latin, "sv": unicode.Latin, "fi": unicode.Latin,
	"ru": unicode.Cyrillic, "uk": unicode.Cyrillic, "be": unicode.Cyrillic, "bg": unicode.Cyrillic,
	"kk": unicode.Cyrillic, "sr": unicode.Cyrillic,
	"el": unicode.Greek,
	"ar": unicode.Arabic, "fa": unicode.Arabic,
	"he": unicode.Hebrew,
	"zh": unicode.Han,
	"ko": unicode.Hangul,
	"hi": unicode.Devanagari,
	"th": unicode.Thai,
}

// ScriptForLanguage понимает коды вида "ru" и "pt-BR". Японский смешанный, для него nil.
func ScriptForLanguage(lang string) *unicode.RangeTable {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return languageScripts[lang]
}

// LeakScript - письменность источника, которую стоит искать в переводе.
// nil, если она совпадает с письменностью целевого языка или неизвестна.
func LeakScript(source, targetLang string) *unicode.RangeTable {
	src := DominantScript(source)
	dst := ScriptForLanguage(targetLang)
	if src == nil || dst == nil || src == dst {
		return nil
	}
	return src
}
