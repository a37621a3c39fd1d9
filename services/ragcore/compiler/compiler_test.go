package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
)

func TestCompile_EmptyInputYieldsValidEmptyContext(t *testing.T) {
	cc := New(DefaultConfig()).Compile()
	require.NotNil(t, cc)
	assert.Empty(t, cc.OrderedItems)
}

func TestCompile_DeduplicationKeepsHigherScore(t *testing.T) {
	results := []datatypes.RetrievalResult{
		{
			SourceKind: datatypes.SourceKnowledgeStore,
			Items: []datatypes.ContextItem{
				{SourceID: "doc-1", Text: "low score version", Score: 0.3},
			},
		},
		{
			SourceKind: datatypes.SourceKnowledgeStore,
			Items: []datatypes.ContextItem{
				{SourceID: "doc-1", Text: "high score version", Score: 0.9},
			},
		},
	}

	cc := New(DefaultConfig()).Compile(results...)
	require.Len(t, cc.OrderedItems, 1)
	assert.Equal(t, "high score version", cc.OrderedItems[0].Text)
}

func TestCompile_DeduplicationLaw_NoTwoItemsShareKey(t *testing.T) {
	results := []datatypes.RetrievalResult{
		{
			SourceKind: datatypes.SourceKnowledgeStore,
			Items: []datatypes.ContextItem{
				{SourceID: "a", Score: 0.5}, {SourceID: "a", Score: 0.6}, {SourceID: "b", Score: 0.1},
			},
		},
	}

	cc := New(DefaultConfig()).Compile(results...)
	seen := map[datatypes.DedupKey]bool{}
	for _, item := range cc.OrderedItems {
		key := datatypes.DedupKey{SourceKind: datatypes.SourceKnowledgeStore, SourceID: item.SourceID}
		assert.False(t, seen[key], "duplicate key %+v", key)
		seen[key] = true
	}
}

func TestCompile_RankingBySourceKindPriorityOnTiedScore(t *testing.T) {
	results := []datatypes.RetrievalResult{
		{SourceKind: datatypes.SourceWeb, Items: []datatypes.ContextItem{{SourceID: "w1", Score: 0.5}}},
		{SourceKind: datatypes.SourceKnowledgeStore, Items: []datatypes.ContextItem{{SourceID: "k1", Score: 0.5}}},
		{SourceKind: datatypes.SourceToolAPI, Items: []datatypes.ContextItem{{SourceID: "t1", Score: 0.5}}},
	}

	cc := New(DefaultConfig()).Compile(results...)
	require.Len(t, cc.OrderedItems, 3)
	assert.Equal(t, "k1", cc.OrderedItems[0].SourceID)
	assert.Equal(t, "t1", cc.OrderedItems[1].SourceID)
	assert.Equal(t, "w1", cc.OrderedItems[2].SourceID)
}

func TestCompile_RankingStability_InsertionOrderBreaksFinalTies(t *testing.T) {
	results := []datatypes.RetrievalResult{
		{SourceKind: datatypes.SourceWeb, Items: []datatypes.ContextItem{
			{SourceID: "first", Score: 0.4},
			{SourceID: "second", Score: 0.4},
			{SourceID: "third", Score: 0.4},
		}},
	}

	cc := New(DefaultConfig()).Compile(results...)
	require.Len(t, cc.OrderedItems, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{
		cc.OrderedItems[0].SourceID, cc.OrderedItems[1].SourceID, cc.OrderedItems[2].SourceID,
	})
}

func TestCompile_BudgetsByMaxItems(t *testing.T) {
	items := make([]datatypes.ContextItem, 0, 20)
	for i := 0; i < 20; i++ {
		items = append(items, datatypes.ContextItem{SourceID: string(rune('a' + i)), Score: float64(20 - i)})
	}
	results := []datatypes.RetrievalResult{{SourceKind: datatypes.SourceKnowledgeStore, Items: items}}

	cc := New(Config{MaxContextItems: 5, MaxContextChars: 100000}).Compile(results...)
	assert.Len(t, cc.OrderedItems, 5)
}

func TestCompile_BudgetsByMaxChars_TruncatesCleanly(t *testing.T) {
	longText := "word "
	for i := 0; i < 50; i++ {
		longText += "lorem ipsum dolor sit amet "
	}
	results := []datatypes.RetrievalResult{{
		SourceKind: datatypes.SourceKnowledgeStore,
		Items:      []datatypes.ContextItem{{SourceID: "big", Text: longText, Score: 1.0}},
	}}

	cc := New(Config{MaxContextItems: 12, MaxContextChars: 50}).Compile(results...)
	require.Len(t, cc.OrderedItems, 1)
	assert.LessOrEqual(t, len(cc.OrderedItems[0].Text), 50)
}

func TestCompile_AttributionPreserved_SourceIDIntact(t *testing.T) {
	results := []datatypes.RetrievalResult{{
		SourceKind: datatypes.SourceKnowledgeStore,
		Items:      []datatypes.ContextItem{{SourceID: "doc-42", Text: "short", Score: 1.0}},
	}}

	cc := New(DefaultConfig()).Compile(results...)
	require.Len(t, cc.OrderedItems, 1)
	assert.Equal(t, "doc-42", cc.OrderedItems[0].SourceID)
}
