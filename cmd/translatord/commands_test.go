package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitbuilder587/translation-pipeline/internal/domain"
)

func mockEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "mock")
	t.Setenv("LLM_FALLBACK_PROVIDERS", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_ADMIN_CHAT_IDS", "")
	t.Setenv("QUALITY_CRITIC", "false")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FILE", "")
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "translate")
}

func TestTranslateCmd_Flags(t *testing.T) {
	cmd := newTranslateCmd()

	to, err := cmd.Flags().GetString("to")
	require.NoError(t, err)
	assert.Equal(t, "ru", to)

	profile, err := cmd.Flags().GetString("profile")
	require.NoError(t, err)
	assert.Equal(t, string(domain.ProfileStandard), profile)
}

func TestTranslateCmd_MissingText(t *testing.T) {
	_, err := executeRoot(t, "translate", "--to", "en")
	require.Error(t, err)
	assert.ErrorIs(t, err, errMissingText)
	assert.Contains(t, err.Error(), "required")
}

func TestTranslateCmd_UnknownProfile(t *testing.T) {
	_, err := executeRoot(t, "translate", "--text", "Hello", "--profile", "paranoid")
	assert.ErrorIs(t, err, domain.ErrInvalidProfileType)
}

func TestTranslateCmd_UnexpectedArgs(t *testing.T) {
	_, err := executeRoot(t, "translate", "stray", "--text", "Hello")
	assert.Error(t, err)
}

func TestTranslateCmd_MockProvider(t *testing.T) {
	mockEnv(t)

	out, err := executeRoot(t, "translate", "--text", "Hello world.", "--from", "en", "--to", "ru", "--profile", "quick")
	require.NoError(t, err)

	var res domain.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res.RequestID)
	assert.NotEmpty(t, res.Status)
}

// свой регистр на каждое приложение: повторный запуск в том же процессе не паникует
func TestTranslateCmd_RunsTwice(t *testing.T) {
	mockEnv(t)

	for i := 0; i < 2; i++ {
		_, err := executeRoot(t, "translate", "--text", "Hello.", "--profile", "quick")
		require.NoError(t, err)
	}
}
