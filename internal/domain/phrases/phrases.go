// Package phrases loads the typing corpus and samples challenges from it.
package phrases

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/okian/typerace/pkg/logger"
)

// Provider hands out phrases for a new game.
type Provider interface {
	// GetPhrases returns count phrases drawn uniformly with replacement.
	// It returns an empty slice when the corpus is empty.
	GetPhrases(count int) []string
}

// Corpus is an immutable phrase list. It is safe for concurrent use.
type Corpus struct {
	phrases []string

	mu  sync.Mutex
	rng *rand.Rand // nil means the global source
}

// Option configures a Corpus.
type Option func(*Corpus)

// WithRand makes sampling deterministic. Intended for tests.
func WithRand(r *rand.Rand) Option {
	return func(c *Corpus) { c.rng = r }
}

// New builds a corpus from in-memory phrases. Blank entries are skipped and
// the rest are trimmed.
func New(phrases []string, opts ...Option) *Corpus {
	c := &Corpus{}
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			c.phrases = append(c.phrases, p)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads every *.txt file in dir, one phrase per non-blank line. A
// missing directory yields an empty corpus and a warning, not an error.
func Load(ctx context.Context, dir string, log logger.Logger, opts ...Option) (*Corpus, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("phrases: glob %s: %w", dir, err)
	}
	if len(files) == 0 {
		if _, statErr := os.Stat(dir); errors.Is(statErr, fs.ErrNotExist) {
			log.Warn(ctx, "phrase directory not found; corpus is empty", logger.String("dir", dir))
		}
		return New(nil, opts...), nil
	}
	sort.Strings(files)

	var lines []string
	for _, path := range files {
		got, err := readLines(path)
		if err != nil {
			return nil, err
		}
		lines = append(lines, got...)
	}

	c := New(lines, opts...)
	log.Info(ctx, "phrase corpus loaded",
		logger.String("dir", dir),
		logger.Int("files", len(files)),
		logger.Int("phrases", c.Len()))
	return c, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("phrases: open %s: %w", path, err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("phrases: read %s: %w", path, err)
	}
	return out, nil
}

// Len is the corpus size.
func (c *Corpus) Len() int { return len(c.phrases) }

// GetPhrases implements Provider.
func (c *Corpus) GetPhrases(count int) []string {
	if len(c.phrases) == 0 || count <= 0 {
		return []string{}
	}
	out := make([]string, count)
	for i := range out {
		out[i] = c.phrases[c.intN(len(c.phrases))]
	}
	return out
}

func (c *Corpus) intN(n int) int {
	if c.rng == nil {
		return rand.IntN(n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.IntN(n)
}
