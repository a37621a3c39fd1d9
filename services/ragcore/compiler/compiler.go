// Package compiler merges heterogeneous RetrievalResults into a single
// ranked, attributed CompiledContext. The compiler is pure: no I/O, no
// time dependence, safe to call repeatedly with the same inputs.
package compiler

import (
	"sort"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
)

const (
	defaultMaxContextItems = 12
	defaultMaxContextChars = 8000
)

// Config bounds the Context Compiler's budgeting step.
type Config struct {
	MaxContextItems int
	MaxContextChars int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{MaxContextItems: defaultMaxContextItems, MaxContextChars: defaultMaxContextChars}
}

// Compiler merges RetrievalResults into a CompiledContext.
type Compiler struct {
	config Config
}

func New(config Config) *Compiler {
	if config.MaxContextItems <= 0 {
		config.MaxContextItems = defaultMaxContextItems
	}
	if config.MaxContextChars <= 0 {
		config.MaxContextChars = defaultMaxContextChars
	}
	return &Compiler{config: config}
}

type ranked struct {
	item           datatypes.ContextItem
	sourceKind     datatypes.SourceKind
	insertionOrder int
}

// Compile deduplicates, ranks, and budgets the items across all supplied
// RetrievalResults. Empty input yields a CompiledContext with
// ordered_items = []; downstream nodes must treat that as a valid state.
func (c *Compiler) Compile(results ...datatypes.RetrievalResult) *datatypes.CompiledContext {
	best := make(map[datatypes.DedupKey]*ranked)
	order := 0

	for _, result := range results {
		for _, item := range result.Items {
			key := datatypes.DedupKey{SourceKind: result.SourceKind, SourceID: item.SourceID}
			candidate := &ranked{item: item, sourceKind: result.SourceKind, insertionOrder: order}
			order++

			existing, ok := best[key]
			if !ok || candidate.item.Score > existing.item.Score {
				best[key] = candidate
			}
		}
	}

	entries := make([]*ranked, 0, len(best))
	for _, r := range best {
		entries = append(entries, r)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.item.Score != b.item.Score {
			return a.item.Score > b.item.Score
		}
		if a.sourceKind.Priority() != b.sourceKind.Priority() {
			return a.sourceKind.Priority() < b.sourceKind.Priority()
		}
		return a.insertionOrder < b.insertionOrder
	})

	cc := datatypes.NewCompiledContext()
	charBudget := c.config.MaxContextChars

	for i, r := range entries {
		if i >= c.config.MaxContextItems {
			break
		}
		if charBudget <= 0 {
			break
		}

		item := r.item
		if len(item.Text) > charBudget {
			item.Text = truncateToBudget(item.Text, charBudget)
			if item.Text == "" {
				break
			}
		}

		charBudget -= len(item.Text)
		cc.OrderedItems = append(cc.OrderedItems, item)
		cc.SourceMix[r.sourceKind]++
	}

	return cc
}

// truncateToBudget cuts text to fit within budget at a clean boundary
// using the recursive-character splitter, so a truncated ContextItem never
// ends mid-word when it can be avoided.
func truncateToBudget(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(budget),
		textsplitter.WithChunkOverlap(0),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		if len(text) <= budget {
			return text
		}
		return text[:budget]
	}
	first := chunks[0]
	if len(first) > budget {
		return first[:budget]
	}
	return first
}
