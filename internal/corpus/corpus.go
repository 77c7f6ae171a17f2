// Package corpus loads and indexes example utterances per character and category.
package corpus

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// OperatorID is the reserved character id holding fire department examples.
const OperatorID = "operator"

// DefaultOperatorResponse is returned when the operator corpus has nothing to offer.
const DefaultOperatorResponse = "I understand. Please proceed with evacuation for your safety."

// Base categories present on every loaded character.
const (
	CategoryGreetings                   = "greetings"
	CategoryResponseToOperatorGreetings = "response_to_operator_greetings"
	CategoryProgression                 = "progression"
	CategoryObservations                = "observations"
	CategoryGeneral                     = "general"
	CategoryClosing                     = "closing"
)

// BaseCategories lists the categories every character entry carries.
var BaseCategories = []string{
	CategoryGreetings,
	CategoryResponseToOperatorGreetings,
	CategoryProgression,
	CategoryObservations,
	CategoryGeneral,
	CategoryClosing,
}

var (
	// ErrCorpusLoad wraps failures to read the corpus source.
	ErrCorpusLoad = errors.New("corpus load failed")
	// ErrLineTooLong marks a corpus line longer than the line size limit.
	ErrLineTooLong = errors.New("line exceeds size limit")
	// ErrNotFound is returned when a random pick has nothing to pick from.
	ErrNotFound = errors.New("not found")
)

const maxLineSize = 1 << 20

// MalformedLineWarning records a corpus line that was skipped.
type MalformedLineWarning struct {
	Line int
	Err  error
}

func (w MalformedLineWarning) Error() string {
	return fmt.Sprintf("line %d: %v", w.Line, w.Err)
}

func (w MalformedLineWarning) Unwrap() error { return w.Err }

// Corpus is an immutable index of example utterances.
type Corpus struct {
	characters map[string]map[string][]string
	operator   map[string][]string
	warnings   []MalformedLineWarning

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Corpus.
type Option func(*Corpus)

// WithRand sets the random source used by GetResponse and OperatorResponse.
func WithRand(r *rand.Rand) Option {
	return func(c *Corpus) { c.rng = r }
}

func newCorpus(opts ...Option) *Corpus {
	c := &Corpus{
		characters: make(map[string]map[string][]string),
		operator:   make(map[string][]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		seed := uint64(time.Now().UnixNano())
		c.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return c
}

// Empty returns a corpus with no characters. The operator fallback still works.
func Empty(opts ...Option) *Corpus {
	return newCorpus(opts...)
}

// Load reads a JSON-Lines corpus from path.
func Load(path string, opts ...Option) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrCorpusLoad, path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("failed to close corpus file", "path", path, "error", closeErr)
		}
	}()

	return LoadReader(f, opts...)
}

// LoadReader reads a JSON-Lines corpus. Lines that fail to parse, or exceed
// the line size limit, are skipped and reported through Warnings. Only a read
// error fails the load.
func LoadReader(r io.Reader, opts ...Option) (*Corpus, error) {
	c := newCorpus(opts...)
	br := bufio.NewReaderSize(r, 64*1024)

	lineNo := 0
	for {
		raw, tooLong, err := readLine(br, maxLineSize)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: read: %w", ErrCorpusLoad, err)
		}
		atEOF := err != nil
		if atEOF && len(raw) == 0 && !tooLong {
			break
		}
		lineNo++

		lineErr := ErrLineTooLong
		if !tooLong {
			line := strings.TrimSpace(string(raw))
			lineErr = nil
			if line != "" {
				lineErr = c.addLine(line)
			}
		}
		if lineErr != nil {
			c.warnings = append(c.warnings, MalformedLineWarning{Line: lineNo, Err: lineErr})
			slog.Warn("Skipping malformed corpus line", "line", lineNo, "error", lineErr)
		}
		if atEOF {
			break
		}
	}
	return c, nil
}

// readLine returns the next line without its size bound being exceeded. An
// oversized line is consumed in full and reported with tooLong set.
func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, readErr := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(readErr, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLong, readErr
	}
}

func (c *Corpus) addLine(line string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	rawID, ok := fields["character"]
	if !ok {
		return errors.New(`missing "character" field`)
	}
	var id string
	if err := json.Unmarshal(rawID, &id); err != nil {
		return fmt.Errorf(`"character" is not a string: %w`, err)
	}
	id = normalize(id)
	if id == "" {
		return errors.New(`empty "character" field`)
	}

	categories := make(map[string][]string, len(fields)-1)
	for name, raw := range fields {
		if name == "character" {
			continue
		}
		var examples []string
		if err := json.Unmarshal(raw, &examples); err != nil {
			return fmt.Errorf("category %q is not a list of strings: %w", name, err)
		}
		categories[name] = examples
	}

	target := c.operator
	if id != OperatorID {
		target = c.characters[id]
		if target == nil {
			target = make(map[string][]string, len(BaseCategories))
			for _, cat := range BaseCategories {
				target[cat] = []string{}
			}
			c.characters[id] = target
		}
	}
	for name, examples := range categories {
		target[name] = append(target[name], examples...)
	}
	return nil
}

// Warnings returns the lines skipped during load.
func (c *Corpus) Warnings() []MalformedLineWarning {
	return slices.Clone(c.warnings)
}

// Characters returns the loaded character ids, sorted. The operator is excluded.
func (c *Corpus) Characters() []string {
	ids := make([]string, 0, len(c.characters))
	for id := range c.characters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasCharacter reports whether a character entry was loaded.
func (c *Corpus) HasCharacter(character string) bool {
	_, ok := c.characters[normalize(character)]
	return ok
}

// Categories returns the category names known for a character, sorted.
func (c *Corpus) Categories(character string) []string {
	entry := c.lookup(character)
	names := make([]string, 0, len(entry))
	for name := range entry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the examples for a character and category. Unknown characters
// and categories yield an empty slice.
func (c *Corpus) Get(character, category string) []string {
	examples := c.lookup(character)[category]
	if len(examples) == 0 {
		return []string{}
	}
	return slices.Clone(examples)
}

// GetResponse picks a random example. It fails with ErrNotFound when the
// character is unknown or the category is empty.
func (c *Corpus) GetResponse(character, category string) (string, error) {
	entry := c.lookup(character)
	if entry == nil {
		return "", fmt.Errorf("%w: character %q", ErrNotFound, character)
	}
	examples := entry[category]
	if len(examples) == 0 {
		return "", fmt.Errorf("%w: no %q examples for %q", ErrNotFound, category, character)
	}
	return c.pick(examples), nil
}

// OperatorResponse picks an operator example for category, falling back to
// the general category and then to DefaultOperatorResponse.
func (c *Corpus) OperatorResponse(category string) string {
	if examples := c.operator[category]; len(examples) > 0 {
		return c.pick(examples)
	}
	if examples := c.operator[CategoryGeneral]; len(examples) > 0 {
		return c.pick(examples)
	}
	return DefaultOperatorResponse
}

func (c *Corpus) lookup(character string) map[string][]string {
	id := normalize(character)
	if id == OperatorID {
		return c.operator
	}
	return c.characters[id]
}

func (c *Corpus) pick(examples []string) string {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return examples[c.rng.IntN(len(examples))]
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
