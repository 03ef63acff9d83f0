package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/kitbuilder587/translation-pipeline/internal/circuit"
	"github.com/kitbuilder587/translation-pipeline/internal/domain"
	"github.com/kitbuilder587/translation-pipeline/internal/quality"
	"github.com/kitbuilder587/translation-pipeline/internal/ratelimit"
	"github.com/kitbuilder587/translation-pipeline/internal/repository"
)

type BotConfig struct {
	Token string
	Debug bool
	// AdminChatIDs - кому можно слать команды и кому уходят оповещения
	AdminChatIDs      []int64
	RequestsPerMinute int
}

// CircuitAdmin - то, что боту нужно от circuit.Registry
type CircuitAdmin interface {
	Snapshots() []circuit.Snapshot
	Reset(dependency string) bool
	ResetAll()
}

// GateAdmin - то, что боту нужно от quality.Runner
type GateAdmin interface {
	Gates() []quality.GateInfo
	Enable(name string) error
	Disable(name string) error
	SetThreshold(name string, threshold float64) error
}

type Deps struct {
	Circuits CircuitAdmin
	Gates    GateAdmin
	Reviews  repository.ManualReviewRepository
}

type Bot struct {
	api         *tgbotapi.BotAPI
	circuits    CircuitAdmin
	gates       GateAdmin
	reviews     repository.ManualReviewRepository
	admins      []int64
	logger      *zap.Logger
	handler     *Handler
	rateLimiter *ratelimit.Limiter
	wg          sync.WaitGroup

	// onSend перехватывает отправку, когда api нет (тесты)
	onSend func(chatID int64, text string)
}

func New(cfg BotConfig, deps Deps, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	api.Debug = cfg.Debug

	bot := newBot(cfg, deps, logger)
	bot.api = api

	if len(cfg.AdminChatIDs) == 0 {
		bot.logger.Warn("no admin chats configured, commands and notifications are disabled")
	}
	bot.logger.Info("telegram bot authorized",
		zap.String("username", api.Self.UserName),
		zap.Int("admins", len(cfg.AdminChatIDs)),
	)

	return bot, nil
}

func newBot(cfg BotConfig, deps Deps, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	bot := &Bot{
		circuits: deps.Circuits,
		gates:    deps.Gates,
		reviews:  deps.Reviews,
		admins:   append([]int64(nil), cfg.AdminChatIDs...),
		logger:   logger.Named("telegram"),
		rateLimiter: ratelimit.New(ratelimit.Config{
			RequestsPerMinute: cfg.RequestsPerMinute,
		}),
	}
	bot.handler = NewHandler(bot)
	return bot
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("bot started, waiting for updates")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bot stopping, waiting for handlers to finish")
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			b.rateLimiter.Stop()
			b.logger.Info("all handlers finished")
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			b.wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer b.wg.Done()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			chatID := int64(0)
			if update.Message != nil && update.Message.Chat != nil {
				chatID = update.Message.Chat.ID
			}
			b.logger.Error("panic in update handler",
				zap.Any("panic", r),
				zap.Int64("chat_id", chatID),
			)
		}
	}()

	b.handler.HandleMessage(ctx, update.Message)
}

func (b *Bot) isAdmin(chatID int64) bool {
	for _, id := range b.admins {
		if id == chatID {
			return true
		}
	}
	return false
}

func (b *Bot) Send(chatID int64, text string) error {
	if b.api == nil {
		if b.onSend != nil {
			b.onSend(chatID, text)
		}
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	return err
}

// broadcast шлет всем админам, ошибки отдельных чатов не прерывают рассылку
func (b *Bot) broadcast(text string) error {
	var firstErr error
	for _, id := range b.admins {
		for _, part := range SplitMessage(text, 4096) {
			if err := b.Send(id, part); err != nil {
				b.logger.Warn("failed to notify admin", zap.Int64("chat_id", id), zap.Error(err))
				if firstErr == nil {
					firstErr = err
				}
				break
			}
		}
	}
	return firstErr
}

func (b *Bot) NotifyReview(ctx context.Context, review *domain.ManualReview) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.broadcast(FormatReviewNotification(review))
}

func (b *Bot) NotifyCircuit(ctx context.Context, dependency string, from, to circuit.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// half-open - промежуточное состояние, операторам не интересно
	if to == circuit.StateHalfOpen {
		return nil
	}
	return b.broadcast(FormatCircuitNotification(dependency, from, to))
}

func (b *Bot) allow(chatID int64) bool {
	return b.rateLimiter.Allow(strconv.FormatInt(chatID, 10))
}
