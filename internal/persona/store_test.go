package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadJSON(t *testing.T) {
	personas := writeFile(t, "personas.json", `{"Bob": "A stubborn office worker.", "Alice": "A retired nurse."}`)
	dialogues := writeFile(t, "dialogues.json", `{"Bob": ["Operator: Hello Bob", "Bob: Who is this?"]}`)

	s, err := Load(personas, dialogues)
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob"}, s.IDs())
	assert.Equal(t, "A stubborn office worker.", s.Persona("BOB"))
	assert.Equal(t, "Operator: Hello Bob\nBob: Who is this?", s.ExampleDialogue("bob"))
	assert.Equal(t, "Bob", s.DisplayName("bob"))
	assert.Equal(t, "", s.ExampleDialogue("alice"))
}

func TestLoadYAML(t *testing.T) {
	personas := writeFile(t, "personas.yaml", "carol:\n  age: 70\n  mobility: wheelchair\n")

	s, err := Load(personas, "")
	require.NoError(t, err)

	p, ok := s.Get("Carol")
	require.True(t, ok)
	assert.Contains(t, p.Description, "mobility: wheelchair")
}

func TestMissingIsEmpty(t *testing.T) {
	s := NewStore(nil, nil)
	_, ok := s.Get("nobody")
	assert.False(t, ok)
	assert.Equal(t, "", s.Persona("nobody"))
	assert.Equal(t, "nobody", s.DisplayName(" nobody "))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"), "")
	assert.Error(t, err)

	bad := writeFile(t, "bad.json", `["not", "a", "map"]`)
	_, err = Load(bad, "")
	assert.Error(t, err)
}
