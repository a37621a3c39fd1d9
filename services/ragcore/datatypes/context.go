package datatypes

// CompiledContext is the Context Compiler's output: a ranked, deduplicated
// bundle of evidence ready for the answer-generation prompt.
type CompiledContext struct {
	OrderedItems  []ContextItem          `json:"ordered_items"`
	DedupKeyIndex map[DedupKey]int       `json:"-"`
	SourceMix     map[SourceKind]int     `json:"source_mix"`
}

// NewCompiledContext returns an empty, valid CompiledContext. Downstream
// nodes must treat this as valid input: answer generation is still
// attempted, the grader will typically reject on poor context_quality.
func NewCompiledContext() *CompiledContext {
	return &CompiledContext{
		OrderedItems:  []ContextItem{},
		DedupKeyIndex: make(map[DedupKey]int),
		SourceMix:     make(map[SourceKind]int),
	}
}

// SourceIDs returns the distinct source_ids cited across ordered items, in
// first-seen order.
func (c *CompiledContext) SourceIDs() []string {
	seen := make(map[string]struct{}, len(c.OrderedItems))
	ids := make([]string, 0, len(c.OrderedItems))
	for _, item := range c.OrderedItems {
		if _, ok := seen[item.SourceID]; ok {
			continue
		}
		seen[item.SourceID] = struct{}{}
		ids = append(ids, item.SourceID)
	}
	return ids
}
