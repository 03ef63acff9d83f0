package telegram

import (
	"strings"
)

// Command - разобранная команда оператора
type Command struct {
	Name string
	// Args - все после имени, с нормализованными пробелами
	Args string
}

// ParseCommand понимает "/cmd args" и "/cmd@botname args".
// Для текста без "/" возвращает пустое имя.
func ParseCommand(text string) Command {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Command{Args: normalizeSpaces(text)}
	}

	parts := strings.SplitN(text, " ", 2)
	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}

	var rest string
	if len(parts) > 1 {
		rest = normalizeSpaces(parts[1])
	}
	return Command{Name: name, Args: rest}
}

func (c Command) Fields() []string {
	return strings.Fields(c.Args)
}

// SplitFirst - первый аргумент и остаток (для "/resolve <id> текст")
func (c Command) SplitFirst() (first, rest string) {
	parts := strings.SplitN(c.Args, " ", 2)
	first = parts[0]
	if len(parts) > 1 {
		rest = parts[1]
	}
	return first, rest
}

func normalizeSpaces(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
