package datatypes

// ResponseMetadata carries observability fields attached to a FinalResponse,
// separate from the grading rubric itself.
type ResponseMetadata struct {
	RetrievalMethod          SourceKind `json:"retrieval_method,omitempty"`
	QueryRewrites            int        `json:"query_rewrites"`
	WorkflowCompletedAtNode  int        `json:"workflow_completed_at_node"`
	Degraded                 bool       `json:"degraded,omitempty"`
	DegradationReason        string     `json:"degradation_reason,omitempty"`
}

// FinalResponse is the terminal output of a workflow run.
type FinalResponse struct {
	Answer        string           `json:"answer"`
	Confidence    float64          `json:"confidence"`
	Sources       []string         `json:"sources"`
	Metadata      ResponseMetadata `json:"metadata"`
	GradingScores GradingResult    `json:"grading_scores"`
}
