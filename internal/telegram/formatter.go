package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/kitbuilder587/translation-pipeline/internal/circuit"
	"github.com/kitbuilder587/translation-pipeline/internal/domain"
	"github.com/kitbuilder587/translation-pipeline/internal/quality"
)

func FormatCircuits(snapshots []circuit.Snapshot) string {
	if len(snapshots) == 0 {
		return "Цепей пока нет: к провайдерам еще не обращались."
	}

	var sb strings.Builder
	sb.WriteString("<b>Состояние цепей:</b>\n\n")

	open := 0
	for _, s := range snapshots {
		if s.State == circuit.StateOpen {
			open++
		}
		fmt.Fprintf(&sb, "%s <code>%s</code> [%s]", stateIcon(s.State), html.EscapeString(s.Dependency), s.State)
		if s.ConsecutiveFailures > 0 {
			fmt.Fprintf(&sb, " ошибок подряд: %d", s.ConsecutiveFailures)
		}
		if s.State != circuit.StateClosed && !s.LastFailure.IsZero() {
			fmt.Fprintf(&sb, ", открыта в %s", s.LastFailure.Format(time.TimeOnly))
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nВсего: %d, открыто: %d", len(snapshots), open)
	return sb.String()
}

func FormatGates(gates []quality.GateInfo) string {
	if len(gates) == 0 {
		return "Гейты не настроены."
	}

	var sb strings.Builder
	sb.WriteString("<b>Гейты качества:</b>\n\n")
	for i, g := range gates {
		mark := "✓"
		if !g.Enabled {
			mark = "✗"
		}
		fmt.Fprintf(&sb, "%d. %s %s\n   порог %.2f, вес %.2f, при провале: %s\n",
			i+1, mark, html.EscapeString(g.Name), g.Threshold, g.Weight, g.FailureAction)
	}
	return sb.String()
}

func FormatPendingReviews(reviews []domain.ManualReview, total int) string {
	if len(reviews) == 0 {
		return "Очередь ручной проверки пуста."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>На ручной проверке: %d</b>\n\n", total)
	for i, r := range reviews {
		fmt.Fprintf(&sb, "%d. <code>%s</code> %s→%s, %s\n   %s\n   <i>%s</i>\n\n",
			i+1,
			html.EscapeString(r.ID),
			html.EscapeString(langOrAuto(r.SourceLang)),
			html.EscapeString(r.TargetLang),
			r.CreatedAt.Format(time.DateTime),
			html.EscapeString(truncate(r.SourceText, 120)),
			html.EscapeString(truncate(r.Reason, 200)),
		)
	}
	if total > len(reviews) {
		fmt.Fprintf(&sb, "Показаны %d из %d.\n", len(reviews), total)
	}
	sb.WriteString("Закрыть: /resolve ID решение")
	return sb.String()
}

func FormatReviewNotification(r *domain.ManualReview) string {
	var sb strings.Builder
	sb.WriteString("<b>Перевод требует ручной проверки</b>\n\n")
	if r.ID != "" {
		fmt.Fprintf(&sb, "ID: <code>%s</code>\n", html.EscapeString(r.ID))
	}
	fmt.Fprintf(&sb, "Запрос: <code>%s</code>\n", html.EscapeString(r.RequestID))
	fmt.Fprintf(&sb, "Языки: %s→%s\n", html.EscapeString(langOrAuto(r.SourceLang)), html.EscapeString(r.TargetLang))
	if r.FailureKind != "" {
		fmt.Fprintf(&sb, "Категория: %s\n", html.EscapeString(r.FailureKind))
	}
	fmt.Fprintf(&sb, "Причина: %s\n\n", html.EscapeString(truncate(r.Reason, 500)))
	fmt.Fprintf(&sb, "<b>Текст:</b>\n%s", html.EscapeString(truncate(r.SourceText, 1000)))
	if r.Output != "" {
		fmt.Fprintf(&sb, "\n\n<b>Лучший вариант:</b>\n%s", html.EscapeString(truncate(r.Output, 1000)))
	}
	return sb.String()
}

func FormatCircuitNotification(dependency string, from, to circuit.State) string {
	switch to {
	case circuit.StateOpen:
		return fmt.Sprintf("%s Цепь <code>%s</code> открыта (%s → %s): запросы к зависимости приостановлены.",
			stateIcon(to), html.EscapeString(dependency), from, to)
	case circuit.StateClosed:
		return fmt.Sprintf("%s Цепь <code>%s</code> снова закрыта.", stateIcon(to), html.EscapeString(dependency))
	default:
		return fmt.Sprintf("%s Цепь <code>%s</code>: %s → %s", stateIcon(to), html.EscapeString(dependency), from, to)
	}
}

func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var messages []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			messages = append(messages, text)
			break
		}

		splitPoint := findSafeSplitPoint(text, maxLen)
		if splitPoint <= 0 || splitPoint > len(text) {
			splitPoint = maxLen
		}

		messages = append(messages, text[:splitPoint])
		text = text[splitPoint:]
	}

	return messages
}

func findSafeSplitPoint(text string, maxLen int) int {
	// ищем пробел или перевод строки, не ломая HTML-теги
	for i := maxLen - 1; i > maxLen/2; i-- {
		if i >= len(text) {
			continue
		}
		if isInsideHTMLTag(text, i) {
			continue
		}

		if text[i] == '\n' || text[i] == ' ' {
			return i + 1
		}
	}

	// внутри тега - ищем конец
	if maxLen < len(text) && isInsideHTMLTag(text, maxLen) {
		for i := maxLen; i < len(text); i++ {
			if text[i] == '>' {
				return i + 1
			}
		}
	}

	for i := maxLen - 1; i > 0; i-- {
		if text[i] == ' ' || text[i] == '\n' {
			return i + 1
		}
	}

	return maxLen
}

func isInsideHTMLTag(text string, pos int) bool {
	if pos >= len(text) || pos < 0 {
		return false
	}
	for i := pos; i >= 0; i-- {
		if text[i] == '>' {
			return false
		}
		if text[i] == '<' {
			return true
		}
	}
	return false
}

func stateIcon(s circuit.State) string {
	switch s {
	case circuit.StateClosed:
		return "●"
	case circuit.StateHalfOpen:
		return "◐"
	default:
		return "○"
	}
}

func langOrAuto(lang string) string {
	if lang == "" {
		return "auto"
	}
	return lang
}

// truncate режет по рунам, чтобы не ломать кириллицу
func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes-3]) + "..."
}
