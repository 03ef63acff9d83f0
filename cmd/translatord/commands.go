package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kitbuilder587/translation-pipeline/internal/config"
	"github.com/kitbuilder587/translation-pipeline/internal/domain"
)

var errMissingText = errors.New("flag --text is required")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "translatord",
		Short: "Устойчивый конвейер перевода",
		Long: `translatord переводит текст через цепочку LLM-провайдеров с повторами,
брейкерами, каскадом запасных стратегий и ручной проверкой.

Без подкоманды запускается демон (то же, что serve).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(newServeCmd(), newTranslateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить демон: метрики, здоровье и Telegram-бот",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newTranslateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Перевести текст один раз и вывести результат в JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, _ := cmd.Flags().GetString("text")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			profileName, _ := cmd.Flags().GetString("profile")

			if text == "" {
				return errMissingText
			}
			prof, err := domain.ProfileByName(profileName)
			if err != nil {
				return err
			}

			req := domain.Request{Text: text, SourceLang: from, TargetLang: to, Profile: prof}
			return run(cmd.Context(), func(ctx context.Context, a *app) error {
				return a.translateOnce(ctx, req, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().String("text", "", "текст для перевода")
	cmd.Flags().String("from", "", "язык источника (пусто - автоопределение)")
	cmd.Flags().String("to", "ru", "целевой язык")
	cmd.Flags().String("profile", string(domain.ProfileStandard), "профиль проверки: quick, standard, thorough")
	return cmd
}

func runServe(ctx context.Context) error {
	return run(ctx, func(ctx context.Context, a *app) error {
		return a.serve(ctx)
	})
}

// run поднимает приложение на время одного действия
func run(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a)
}
