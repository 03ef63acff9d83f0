package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kitbuilder587/translation-pipeline/internal/fallback"
)

// PromptBuilder строит системный и пользовательский промпт для вызова
type PromptBuilder interface {
	Build(call fallback.Call) (system, user string)
}

type PromptBuilderFunc func(call fallback.Call) (system, user string)

func (f PromptBuilderFunc) Build(call fallback.Call) (string, string) { return f(call) }

type DefaultPromptBuilder struct{}

const baseRules = `Rules:
1. Output ONLY the translation, without comments or explanations
2. Keep URLs, e-mails, numbers, placeholders like {name} or %s, HTML tags and text in backticks unchanged
3. Keep paragraph breaks and list structure of the source`

const strictRules = `
4. Do NOT add any preamble such as "Here is the translation"
5. Do NOT wrap the answer in quotes or code fences
6. Every bracket, quote and code fence from the source must appear in the output
7. Do NOT leave words of the source language untranslated, except names and code`

func (DefaultPromptBuilder) Build(call fallback.Call) (string, string) {
	item := call.Item

	var sys strings.Builder
	fmt.Fprintf(&sys, "You are a professional translator. Translate the user's text %sto %s.\n\n",
		fromLang(item.SourceLang), langName(item.TargetLang))
	sys.WriteString(baseRules)
	if call.Mode == fallback.ModeStrict {
		sys.WriteString(strictRules)
	}

	// в reduced режиме контекста и глоссария уже нет в item
	if len(item.Glossary) > 0 {
		sys.WriteString("\n\nGlossary (source term -> required translation):\n")
		terms := make([]string, 0, len(item.Glossary))
		for k := range item.Glossary {
			terms = append(terms, k)
		}
		sort.Strings(terms)
		for _, k := range terms {
			fmt.Fprintf(&sys, "- %s -> %s\n", k, item.Glossary[k])
		}
	}

	var user strings.Builder
	if item.Context != "" {
		user.WriteString("=== CONTEXT (do not translate) ===\n")
		user.WriteString(item.Context)
		user.WriteString("\n\n=== TEXT ===\n")
	}
	user.WriteString(call.Text)

	return sys.String(), user.String()
}

func fromLang(lang string) string {
	if lang == "" {
		return ""
	}
	return "from " + langName(lang) + " "
}

var languageNames = map[string]string{
	"en": "English", "ru": "Russian", "de": "German", "fr": "French", "es": "Spanish",
	"it": "Italian", "pt": "Portuguese", "zh": "Chinese", "ja": "Japanese", "ko": "Korean",
	"uk": "Ukrainian", "pl": "Polish", "tr": "Turkish", "ar": "Arabic",
}

func langName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

// cleanOutput снимает обертку из ``` и кавычек, если в источнике ее не было
func cleanOutput(out, source string) string {
	out = strings.TrimSpace(out)
	if strings.HasPrefix(out, "```") && strings.HasSuffix(out, "```") && len(out) >= 6 &&
		!strings.HasPrefix(strings.TrimSpace(source), "```") {
		inner := strings.TrimSuffix(strings.TrimPrefix(out, "```"), "```")
		// первая строка после ``` может быть языком разметки
		if nl := strings.IndexByte(inner, '\n'); nl >= 0 && !strings.ContainsAny(inner[:nl], " \t") {
			inner = inner[nl+1:]
		}
		out = strings.TrimSpace(inner)
	}
	src := strings.TrimSpace(source)
	if len(out) >= 2 && out[0] == '"' && out[len(out)-1] == '"' && !(len(src) > 0 && src[0] == '"') {
		out = strings.TrimSpace(out[1 : len(out)-1])
	}
	return out
}
