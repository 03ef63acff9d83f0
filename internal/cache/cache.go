package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"
)

type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Delete(key string)
}

// KeyParts - все, от чего зависит перевод
type KeyParts struct {
	Text       string
	SourceLang string
	TargetLang string
	Profile    string
	Glossary   map[string]string
}

// Key строит ключ по нормализованному тексту, языкам, профилю и глоссарию.
// Порядок записей глоссария на ключ не влияет.
func Key(p KeyParts) string {
	var sb strings.Builder
	sb.WriteString(normalize(p.Text))
	sb.WriteByte(0)
	sb.WriteString(strings.ToLower(p.SourceLang))
	sb.WriteByte(0)
	sb.WriteString(strings.ToLower(p.TargetLang))
	sb.WriteByte(0)
	sb.WriteString(p.Profile)

	if len(p.Glossary) > 0 {
		terms := make([]string, 0, len(p.Glossary))
		for k := range p.Glossary {
			terms = append(terms, k)
		}
		sort.Strings(terms)
		for _, k := range terms {
			sb.WriteByte(0)
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(p.Glossary[k])
		}
	}

	hash := sha256.Sum256([]byte(sb.String()))
	return fmt.Sprintf("translation:%x", hash[:12])
}

// normalize схлопывает пробелы, регистр не трогаем: для перевода он значим
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
