// Package search provides a small, deterministic, in-memory keyword index
// over meetup posts. An index is built per query from the candidate posts and
// is read-only afterwards, so it is safe for concurrent use.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options for stop words and the document cap
//   - Unicode-aware tokenization (Hangul and Latin alike)
//   - Deterministic ordering: ties keep the input order
//
// A document's score is the share of query tokens it contains,
// |Q ∩ D| / |Q|, so a short query is not penalized for matching a long post.
package search

import (
	"regexp"
	"sort"
	"strings"
)

// Document is one searchable item: an id plus the text fields to match.
type Document struct {
	ID     string
	Fields []string
}

// Result is a ranked document id with its score in (0, 1].
type Result struct {
	ID    string
	Score float64
}

// Index ranks documents against a free-text query.
type Index interface {
	TopK(query string, k int) []Result
}

// Option configures an index.
type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	maxDocs   int
}

func defaultConfig() config {
	return config{}
}

// WithStopwords drops the given words from both documents and queries.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxDocs indexes at most n documents; n <= 0 means no cap.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

type doc struct {
	id     string
	tokens map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndex builds an index over docs. Documents without any token are skipped.
func NewIndex(docs []Document, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	out := make([]doc, 0, len(docs))
	for _, d := range docs {
		toks := tokenize(strings.Join(d.Fields, " "), cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		out = append(out, doc{id: d.ID, tokens: toks})
		if cfg.maxDocs > 0 && len(out) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: out}
}

// TopK returns up to k matching documents, best first. k <= 0 returns all
// matches.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := float64(len(qTokens))

	out := make([]Result, 0, len(i.docs))
	for _, d := range i.docs {
		if over := overlap(qTokens, d.tokens); over > 0 {
			out = append(out, Result{ID: d.id, Score: float64(over) / qLen})
		}
	}
	if len(out) == 0 {
		return nil
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })

	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
