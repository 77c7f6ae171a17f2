// Package persona loads character personas and example dialogues.
package persona

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona is a character's background text and example dialogue.
type Persona struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"persona"`
	Dialogue    string `json:"dialogue"`
}

// Store is a read-only index of personas keyed by lowercase id.
type Store struct {
	byID map[string]Persona
}

// NewStore builds a store from name to persona text and name to dialogue maps.
func NewStore(personas, dialogues map[string]string) *Store {
	s := &Store{byID: make(map[string]Persona, len(personas))}
	for name, desc := range personas {
		id := normalize(name)
		s.byID[id] = Persona{ID: id, Name: strings.TrimSpace(name), Description: desc}
	}
	for name, dialogue := range dialogues {
		id := normalize(name)
		p, ok := s.byID[id]
		if !ok {
			p = Persona{ID: id, Name: strings.TrimSpace(name)}
		}
		p.Dialogue = dialogue
		s.byID[id] = p
	}
	return s
}

// Load reads persona and dialogue files. Both are maps keyed by character
// name, in JSON or YAML. Values may be strings, lists of lines or nested
// documents. An empty dialoguePath is allowed.
func Load(personaPath, dialoguePath string) (*Store, error) {
	personas, err := readTextMap(personaPath)
	if err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}
	dialogues := map[string]string{}
	if dialoguePath != "" {
		dialogues, err = readTextMap(dialoguePath)
		if err != nil {
			return nil, fmt.Errorf("load dialogues: %w", err)
		}
	}
	return NewStore(personas, dialogues), nil
}

func readTextMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for name, v := range raw {
		text, err := toText(v)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %q: %w", path, name, err)
		}
		out[name] = text
	}
	return out, nil
}

func toText(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case []any:
		lines := make([]string, 0, len(val))
		for _, item := range val {
			line, err := toText(item)
			if err != nil {
				return "", err
			}
			lines = append(lines, line)
		}
		return strings.Join(lines, "\n"), nil
	default:
		out, err := yaml.Marshal(val)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(out)), nil
	}
}

// Get returns the persona for id, case-insensitively.
func (s *Store) Get(id string) (Persona, bool) {
	p, ok := s.byID[normalize(id)]
	return p, ok
}

// Persona returns the background text for id, or "" when unknown.
func (s *Store) Persona(id string) string {
	p, _ := s.Get(id)
	return p.Description
}

// ExampleDialogue returns the example dialogue for id, or "" when unknown.
func (s *Store) ExampleDialogue(id string) string {
	p, _ := s.Get(id)
	return p.Dialogue
}

// DisplayName returns the persona's name as written in the source file,
// falling back to id.
func (s *Store) DisplayName(id string) string {
	if p, ok := s.Get(id); ok && p.Name != "" {
		return p.Name
	}
	return strings.TrimSpace(id)
}

// IDs returns the known ids, sorted.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
