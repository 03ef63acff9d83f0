package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitbuilder587/translation-pipeline/internal/failure"
	"github.com/kitbuilder587/translation-pipeline/internal/llm"
	llmMock "github.com/kitbuilder587/translation-pipeline/internal/llm/mock"
)

func TestProviders_Resolve(t *testing.T) {
	p := NewProviders(nil)
	primary := llmMock.New().WithName("openrouter")
	require.NoError(t, p.Register("openrouter", primary))
	require.NoError(t, p.Register("gigachat", llmMock.New().WithName("gigachat")))

	assert.Equal(t, "openrouter", p.Primary())
	assert.Equal(t, []string{"openrouter", "gigachat"}, p.Names())

	t.Run("default is primary", func(t *testing.T) {
		r, err := p.Resolve("", "")
		require.NoError(t, err)
		assert.Equal(t, "openrouter", r.Provider)
		assert.Equal(t, "openrouter", r.Dependency)
	})

	t.Run("explicit model has own dependency", func(t *testing.T) {
		r, err := p.Resolve("openrouter", "qwen/qwen-2.5-72b-instruct")
		require.NoError(t, err)
		assert.Equal(t, "openrouter/qwen/qwen-2.5-72b-instruct", r.Dependency)
		assert.Equal(t, "qwen/qwen-2.5-72b-instruct", r.Model)
		assert.NotNil(t, primary.Model("qwen/qwen-2.5-72b-instruct"))
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := p.Resolve("deepl", "")
		require.ErrorIs(t, err, ErrUnknownProvider)
		kind, ok := failure.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, failure.KindConfigurationInvalid, kind)
	})
}

func TestProviders_Register(t *testing.T) {
	p := NewProviders(nil)
	require.NoError(t, p.Register("a", llmMock.New()))

	err := p.Register("a", llmMock.New())
	assert.True(t, errors.Is(err, ErrDuplicateProvider))

	assert.Error(t, p.Register("", llmMock.New()))
	assert.Error(t, p.Register("b", nil))
}

func TestProviders_Empty(t *testing.T) {
	p := NewProviders(nil)
	assert.Equal(t, "", p.Primary())
	_, err := p.Resolve("", "")
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestProviders_ModelWithoutSwitcher(t *testing.T) {
	p := NewProviders(nil)
	var c llm.Client = clientFunc(nil)
	require.NoError(t, p.Register("fixed", c))

	_, err := p.Resolve("fixed", "some-model")
	kind, _ := failure.KindOf(err)
	assert.Equal(t, failure.KindConfigurationInvalid, kind)
}
