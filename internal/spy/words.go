package spy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

//go:embed words.ar.yaml
var defaultWordsYAML []byte

var ErrEmptyWordList = errors.New("word list is empty")

// WordList is the fixed set of candidate secret words.
type WordList struct {
	words []string
}

type wordsFile struct {
	Words []string `yaml:"words"`
}

// NewWordList trims and de-duplicates words, keeping first-seen order.
func NewWordList(words []string) (*WordList, error) {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil, ErrEmptyWordList
	}
	return &WordList{words: out}, nil
}

// DefaultWords returns the built-in Arabic word list.
func DefaultWords() *WordList {
	wl, err := parseWords(defaultWordsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded words: %v", err))
	}
	return wl
}

// LoadWords reads a YAML file of the form `words: [...]`.
func LoadWords(path string) (*WordList, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read words: %w", err)
	}
	wl, err := parseWords(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wl, nil
}

func parseWords(raw []byte) (*WordList, error) {
	var f wordsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return NewWordList(f.Words)
}

func (w *WordList) Len() int { return len(w.words) }

// Pick returns a uniformly chosen word.
func (w *WordList) Pick(p Picker) string {
	return w.words[p.IntN(len(w.words))]
}
