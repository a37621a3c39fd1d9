// Package datatypes holds the data model shared by every ragcore
// component: the query under refinement, workflow state and its history,
// retrieval and context types, the grading rubric, and the final response.
//
// Types here carry no behavior beyond small invariant-preserving helpers;
// the components in sibling packages (oracle, retrieval, compiler, grading,
// workflow, session) own the logic that mutates them.
package datatypes

// Query is the user's immutable original text plus an evolving rewritten
// form. Only the Workflow Engine's rewrite node (N2) may mutate CurrentText,
// and only its loopback node (N12) may append to EnhancementHints.
type Query struct {
	OriginalText     string   `json:"original_text"`
	CurrentText      string   `json:"current_text"`
	EnhancementHints []string `json:"enhancement_hints"`
}

// NewQuery creates a Query with CurrentText seeded from the original text.
func NewQuery(originalText string) *Query {
	return &Query{
		OriginalText: originalText,
		CurrentText:  originalText,
	}
}

// AppendHint records a loopback enhancement hint, preserving insertion order.
func (q *Query) AppendHint(hint string) {
	q.EnhancementHints = append(q.EnhancementHints, hint)
}
