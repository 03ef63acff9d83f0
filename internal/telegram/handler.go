package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/kitbuilder587/translation-pipeline/internal/domain"
	"github.com/kitbuilder587/translation-pipeline/internal/quality"
)

const defaultPendingLimit = 10

type Handler struct {
	bot *Bot
}

func NewHandler(bot *Bot) *Handler {
	return &Handler{bot: bot}
}

func (h *Handler) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	cmd := ParseCommand(msg.Text)
	h.bot.logger.Info("received message",
		zap.Int64("chat_id", chatID),
		zap.String("command", cmd.Name),
	)

	if !h.bot.isAdmin(chatID) {
		h.bot.Send(chatID, "Нет доступа. Бот принимает команды только от операторов.")
		return
	}
	if !h.bot.allow(chatID) {
		h.bot.logger.Warn("rate limit exceeded", zap.Int64("chat_id", chatID))
		h.bot.Send(chatID, "Слишком много команд. Пожалуйста, подождите минуту.")
		return
	}

	switch cmd.Name {
	case "start", "help":
		h.handleHelp(chatID)
	case "circuits":
		h.handleCircuits(chatID)
	case "reset":
		h.handleReset(chatID, cmd)
	case "resetall":
		h.handleResetAll(chatID)
	case "gates":
		h.handleGates(chatID)
	case "enable":
		h.handleToggle(chatID, cmd, true)
	case "disable":
		h.handleToggle(chatID, cmd, false)
	case "threshold":
		h.handleThreshold(chatID, cmd)
	case "pending":
		h.handlePending(ctx, chatID, cmd)
	case "resolve":
		h.handleResolve(ctx, chatID, cmd)
	default:
		h.bot.Send(chatID, "Неизвестная команда. Используйте /help для справки.")
	}
}

func (h *Handler) handleHelp(chatID int64) {
	helpText := `<b>Команды оператора:</b>

/circuits - Состояние цепей провайдеров
/reset зависимость - Закрыть цепь вручную
/resetall - Закрыть все цепи

/gates - Гейты качества
/enable гейт - Включить гейт
/disable гейт - Выключить гейт
/threshold гейт значение - Изменить порог (0..1)

/pending [N] - Очередь ручной проверки
/resolve ID решение - Закрыть заявку

<b>Примеры:</b>
• /reset openrouter
• /threshold confidence 0.75
• /resolve 3f2a... перевод исправлен вручную`

	h.bot.Send(chatID, helpText)
}

func (h *Handler) handleCircuits(chatID int64) {
	if h.bot.circuits == nil {
		h.bot.Send(chatID, "Цепи недоступны.")
		return
	}
	h.sendLong(chatID, FormatCircuits(h.bot.circuits.Snapshots()))
}

func (h *Handler) handleReset(chatID int64, cmd Command) {
	if h.bot.circuits == nil {
		h.bot.Send(chatID, "Цепи недоступны.")
		return
	}
	dep := cmd.Args
	if dep == "" {
		h.bot.Send(chatID, "Укажите зависимость: /reset openrouter")
		return
	}
	if !h.bot.circuits.Reset(dep) {
		h.bot.Send(chatID, fmt.Sprintf("Цепь %q не найдена.", dep))
		return
	}
	h.bot.logger.Info("circuit reset by operator", zap.Int64("chat_id", chatID), zap.String("dependency", dep))
	h.bot.Send(chatID, fmt.Sprintf("Цепь %q закрыта.", dep))
}

func (h *Handler) handleResetAll(chatID int64) {
	if h.bot.circuits == nil {
		h.bot.Send(chatID, "Цепи недоступны.")
		return
	}
	h.bot.circuits.ResetAll()
	h.bot.logger.Info("all circuits reset by operator", zap.Int64("chat_id", chatID))
	h.bot.Send(chatID, "Все цепи закрыты.")
}

func (h *Handler) handleGates(chatID int64) {
	if h.bot.gates == nil {
		h.bot.Send(chatID, "Гейты недоступны.")
		return
	}
	h.sendLong(chatID, FormatGates(h.bot.gates.Gates()))
}

func (h *Handler) handleToggle(chatID int64, cmd Command, enable bool) {
	if h.bot.gates == nil {
		h.bot.Send(chatID, "Гейты недоступны.")
		return
	}
	name := cmd.Args
	if name == "" {
		h.bot.Send(chatID, "Укажите гейт: /enable confidence")
		return
	}

	var err error
	if enable {
		err = h.bot.gates.Enable(name)
	} else {
		err = h.bot.gates.Disable(name)
	}
	if err != nil {
		h.bot.Send(chatID, mapErrorToMessage(err))
		return
	}

	state := "выключен"
	if enable {
		state = "включен"
	}
	h.bot.logger.Info("gate toggled by operator",
		zap.Int64("chat_id", chatID),
		zap.String("gate", name),
		zap.Bool("enabled", enable),
	)
	h.bot.Send(chatID, fmt.Sprintf("Гейт %s %s.", name, state))
}

func (h *Handler) handleThreshold(chatID int64, cmd Command) {
	if h.bot.gates == nil {
		h.bot.Send(chatID, "Гейты недоступны.")
		return
	}
	args := cmd.Fields()
	if len(args) != 2 {
		h.bot.Send(chatID, "Использование: /threshold гейт значение\nПример: /threshold confidence 0.75")
		return
	}

	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		h.bot.Send(chatID, "Укажите порог числом от 0 до 1.")
		return
	}

	if err := h.bot.gates.SetThreshold(args[0], value); err != nil {
		h.bot.Send(chatID, mapErrorToMessage(err))
		return
	}

	h.bot.logger.Info("gate threshold changed by operator",
		zap.Int64("chat_id", chatID),
		zap.String("gate", args[0]),
		zap.Float64("threshold", value),
	)
	h.bot.Send(chatID, fmt.Sprintf("Порог гейта %s изменен на %.2f.", args[0], value))
}

func (h *Handler) handlePending(ctx context.Context, chatID int64, cmd Command) {
	if h.bot.reviews == nil {
		h.bot.Send(chatID, "Очередь ручной проверки не подключена.")
		return
	}

	limit := defaultPendingLimit
	if cmd.Args != "" {
		n, err := strconv.Atoi(cmd.Args)
		if err != nil || n < 1 {
			h.bot.Send(chatID, "Укажите корректное количество: /pending 20")
			return
		}
		limit = n
	}

	reviews, err := h.bot.reviews.ListPending(ctx, limit)
	if err != nil {
		h.bot.logger.Error("failed to list pending reviews", zap.Error(err))
		h.bot.Send(chatID, mapErrorToMessage(err))
		return
	}
	total, err := h.bot.reviews.CountPending(ctx)
	if err != nil {
		h.bot.logger.Warn("failed to count pending reviews", zap.Error(err))
		total = len(reviews)
	}

	h.sendLong(chatID, FormatPendingReviews(reviews, total))
}

func (h *Handler) handleResolve(ctx context.Context, chatID int64, cmd Command) {
	if h.bot.reviews == nil {
		h.bot.Send(chatID, "Очередь ручной проверки не подключена.")
		return
	}

	id, resolution := cmd.SplitFirst()
	if id == "" || resolution == "" {
		h.bot.Send(chatID, "Использование: /resolve ID решение")
		return
	}

	review, err := h.bot.reviews.Resolve(ctx, id, resolution)
	if err != nil {
		h.bot.Send(chatID, mapErrorToMessage(err))
		return
	}

	h.bot.logger.Info("review resolved by operator",
		zap.Int64("chat_id", chatID),
		zap.String("review_id", review.ID),
	)
	h.bot.Send(chatID, fmt.Sprintf("Заявка %s закрыта.", review.ID))
}

func (h *Handler) sendLong(chatID int64, text string) {
	for _, m := range SplitMessage(text, 4096) { // лимит телеграма
		if err := h.bot.Send(chatID, m); err != nil {
			h.bot.logger.Error("failed to send message", zap.Error(err))
		}
	}
}

func mapErrorToMessage(err error) string {
	switch {
	case errors.Is(err, quality.ErrGateNotFound):
		return "Гейт не найден. Список: /gates"
	case errors.Is(err, quality.ErrInvalidThreshold):
		return "Порог должен быть от 0 до 1."
	case errors.Is(err, domain.ErrReviewNotFound):
		return "Заявка не найдена."
	case errors.Is(err, domain.ErrAlreadyResolved):
		return "Заявка уже закрыта."
	case errors.Is(err, domain.ErrEmptyResolution):
		return "Укажите решение по заявке."
	default:
		return "Произошла ошибка. Попробуйте позже."
	}
}
