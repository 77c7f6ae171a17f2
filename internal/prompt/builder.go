// Package prompt renders generation prompts from named templates.
package prompt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of memoised example blocks.
const DefaultCacheSize = 256

// ErrUnknownTemplate is returned for template ids that are not registered.
var ErrUnknownTemplate = errors.New("unknown prompt template")

// MissingVariableError reports a placeholder with no supplied value.
type MissingVariableError struct {
	Template string
	Variable string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("prompt %s: missing variable %q", e.Template, e.Variable)
}

// Builder renders the registered templates. It is safe for concurrent use.
type Builder struct {
	templates map[string]*template.Template
	required  map[string][]string
	examples  *lru.Cache[string, string]
}

// NewBuilder parses the built-in templates.
func NewBuilder(cacheSize int) (*Builder, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create example cache: %w", err)
	}

	b := &Builder{
		templates: make(map[string]*template.Template, len(definitions)),
		required:  make(map[string][]string, len(definitions)),
		examples:  cache,
	}
	for id, def := range definitions {
		tmpl, err := template.New(id).Option("missingkey=error").Parse(def.text)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", id, err)
		}
		b.templates[id] = tmpl
		b.required[id] = def.vars
	}
	return b, nil
}

// Templates returns the registered template ids, sorted.
func (b *Builder) Templates() []string {
	ids := make([]string, 0, len(b.templates))
	for id := range b.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render interpolates vars into the template. Every placeholder must have a
// value; empty strings are allowed.
func (b *Builder) Render(templateID string, vars map[string]string) (string, error) {
	tmpl, ok := b.templates[templateID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
	}
	for _, name := range b.required[templateID] {
		if _, ok := vars[name]; !ok {
			return "", &MissingVariableError{Template: templateID, Variable: name}
		}
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		return "", fmt.Errorf("render %s: %w", templateID, err)
	}
	return sb.String(), nil
}

// FormatExamples renders the bulleted example block headed by category and speaker.
func (b *Builder) FormatExamples(category, speaker string, examples []string) string {
	key := category + "\x00" + speaker + "\x00" + strings.Join(examples, "\x1f")
	if block, ok := b.examples.Get(key); ok {
		return block
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Examples of %s (%s):\n", speaker, category)
	if len(examples) == 0 {
		sb.WriteString("- (no examples available)\n")
	}
	for _, ex := range examples {
		sb.WriteString("- ")
		sb.WriteString(strings.TrimSpace(ex))
		sb.WriteString("\n")
	}

	block := sb.String()
	b.examples.Add(key, block)
	return block
}
