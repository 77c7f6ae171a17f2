package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullVars(t *testing.T, b *Builder, id string) map[string]string {
	t.Helper()
	vars := make(map[string]string)
	for _, name := range b.required[id] {
		vars[name] = "<" + name + ">"
	}
	return vars
}

func TestEveryTemplateRendersWithDeclaredVars(t *testing.T) {
	b, err := NewBuilder(0)
	require.NoError(t, err)

	assert.Equal(t, []string{AutoTurn, InitialGreeting, Interactive, StageTurn}, b.Templates())
	for _, id := range b.Templates() {
		out, err := b.Render(id, fullVars(t, b, id))
		require.NoError(t, err, id)
		for _, name := range b.required[id] {
			assert.Contains(t, out, "<"+name+">", "%s should use %s", id, name)
		}
		assert.NotContains(t, out, "{{", id)
	}
}

func TestRenderMissingVariable(t *testing.T) {
	b, err := NewBuilder(0)
	require.NoError(t, err)

	vars := fullVars(t, b, StageTurn)
	delete(vars, "history")

	_, err = b.Render(StageTurn, vars)
	var missing *MissingVariableError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, StageTurn, missing.Template)
	assert.Equal(t, "history", missing.Variable)
}

func TestRenderAllowsEmptyValues(t *testing.T) {
	b, err := NewBuilder(0)
	require.NoError(t, err)

	vars := fullVars(t, b, InitialGreeting)
	vars["dialogue"] = ""
	out, err := b.Render(InitialGreeting, vars)
	require.NoError(t, err)
	assert.Contains(t, out, "<name>")
}

func TestRenderUnknownTemplate(t *testing.T) {
	b, err := NewBuilder(0)
	require.NoError(t, err)

	_, err = b.Render("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestTemplatesRequestBrevity(t *testing.T) {
	b, err := NewBuilder(0)
	require.NoError(t, err)
	for _, id := range b.Templates() {
		out, err := b.Render(id, fullVars(t, b, id))
		require.NoError(t, err)
		assert.Contains(t, strings.ToLower(out), "single", id)
	}
}

func TestFormatExamples(t *testing.T) {
	b, err := NewBuilder(4)
	require.NoError(t, err)

	block := b.FormatExamples("greetings", "Bob", []string{"Who is this?", " Hello? "})
	assert.Equal(t, "Examples of Bob (greetings):\n- Who is this?\n- Hello?\n", block)
	assert.Equal(t, 1, b.examples.Len())

	again := b.FormatExamples("greetings", "Bob", []string{"Who is this?", " Hello? "})
	assert.Equal(t, block, again)
	assert.Equal(t, 1, b.examples.Len())

	empty := b.FormatExamples("closing", "Bob", nil)
	assert.Contains(t, empty, "no examples available")
}
