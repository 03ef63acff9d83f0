package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxTextRunes - больше за раз не переводим, длинные документы режет вызывающий
const MaxTextRunes = 20000

type Request struct {
	ID         string
	Text       string
	SourceLang string
	TargetLang string
	// Glossary: термин источника -> обязательный перевод
	Glossary map[string]string
	Context  string
	Profile  Profile
}

func (r *Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}

	if utf8.RuneCountInString(r.Text) > MaxTextRunes {
		return ErrTextTooLong
	}

	if strings.TrimSpace(r.TargetLang) == "" {
		return ErrMissingTargetLang
	}

	if r.SourceLang != "" && strings.EqualFold(r.SourceLang, r.TargetLang) {
		return ErrSameLanguage
	}

	if err := r.Profile.Validate(); err != nil {
		return err
	}

	return nil
}

// Sanitize нормализует поля и выдает ID, если его не было.
// Пустой профиль заменяется стандартным.
func (r *Request) Sanitize() {
	r.Text = strings.TrimSpace(r.Text)
	r.SourceLang = strings.ToLower(strings.TrimSpace(r.SourceLang))
	r.TargetLang = strings.ToLower(strings.TrimSpace(r.TargetLang))
	r.Context = strings.TrimSpace(r.Context)
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Profile.Type == "" {
		r.Profile = StandardProfile()
	}
}
