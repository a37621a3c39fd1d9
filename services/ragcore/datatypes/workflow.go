package datatypes

import "time"

// Node identifies one of the twelve workflow states. Values match the
// node numbers used throughout the design (N1..N12).
type Node int

const (
	NodeStart                 Node = 1
	NodeRewriteQuery          Node = 2
	NodePublishQueryN3        Node = 3
	NodeDecideNeedInfo        Node = 4
	NodeChooseSource          Node = 5
	NodeRetrieve              Node = 6
	NodePublishContext        Node = 7
	NodePublishQueryN8        Node = 8
	NodeGenerateAnswer        Node = 9
	NodeDecideAnswerRelevant  Node = 10
	NodeTerminalAccept        Node = 11
	NodeLoopbackOrTerminate   Node = 12
)

// Decision labels the branch taken at a decision node, recorded on the
// NodeTransition so history stays self-describing.
type Decision string

const (
	DecisionYes         Decision = "YES"
	DecisionNo          Decision = "NO"
	DecisionLoopback     Decision = "loopback"
	DecisionFallback     Decision = "fallback"
	DecisionCancelled    Decision = "cancelled"
)

// NodeTransition records one edge traversal for replay and observability.
type NodeTransition struct {
	FromNode  Node      `json:"from_node"`
	ToNode    Node      `json:"to_node"`
	Decision  Decision  `json:"decision,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RunStatus is the lifecycle phase of a WorkflowState, used by the Session
// State Store to distinguish in-flight, accepted, and cancelled snapshots.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusAccepted  RunStatus = "accepted"
	StatusFallback  RunStatus = "fallback"
	StatusCancelled RunStatus = "cancelled"
)

// WorkflowState is the mutable record of a single in-flight request. It is
// created at N1, mutated only by the Workflow Engine, and frozen once the
// engine reaches N11 or exhausts retries at N12.
type WorkflowState struct {
	QueryID              string           `json:"query_id"`
	CurrentNode          Node             `json:"current_node"`
	RetryCount           int              `json:"retry_count"`
	MaxRetries           int              `json:"max_retries"`
	AcceptanceThreshold  float64          `json:"acceptance_threshold"`
	StartedAt            time.Time        `json:"started_at"`
	History              []NodeTransition `json:"history"`
	Status               RunStatus        `json:"status"`
	Query                *Query           `json:"query"`
	LastRetrievalSource  SourceKind       `json:"last_retrieval_source,omitempty"`
	BestCandidate        *FinalResponse   `json:"best_candidate,omitempty"`
	FinalResponse        *FinalResponse   `json:"final_response,omitempty"`
}

// NewWorkflowState creates the initial state for a new run, positioned at N1.
func NewWorkflowState(queryID string, query *Query, maxRetries int, acceptanceThreshold float64, startedAt time.Time) *WorkflowState {
	return &WorkflowState{
		QueryID:             queryID,
		CurrentNode:         NodeStart,
		RetryCount:          0,
		MaxRetries:          maxRetries,
		AcceptanceThreshold: acceptanceThreshold,
		StartedAt:           startedAt,
		History:             []NodeTransition{},
		Status:              StatusRunning,
		Query:               query,
	}
}

// Transition appends a NodeTransition and advances CurrentNode. The caller
// is responsible for ensuring (from, to) is a legal edge; WorkflowState
// itself enforces no graph constraints beyond recording what happened.
func (s *WorkflowState) Transition(from, to Node, decision Decision, at time.Time) {
	s.History = append(s.History, NodeTransition{
		FromNode:  from,
		ToNode:    to,
		Decision:  decision,
		Timestamp: at,
	})
	s.CurrentNode = to
}

// ConsiderCandidate updates BestCandidate if response grades higher than
// the best seen so far, implementing the §4.5 fallback contract: N12's
// eventual fallback must reflect the highest-overall-graded answer
// observed across all iterations, not necessarily the last.
func (s *WorkflowState) ConsiderCandidate(response *FinalResponse) {
	if response == nil {
		return
	}
	if s.BestCandidate == nil || response.GradingScores.Overall > s.BestCandidate.GradingScores.Overall {
		s.BestCandidate = response
	}
}

// Snapshot returns a value copy of the state's history slice so published
// snapshots cannot be mutated by the writer after publication.
func (s *WorkflowState) Snapshot() WorkflowState {
	cp := *s
	cp.History = make([]NodeTransition, len(s.History))
	copy(cp.History, s.History)
	return cp
}
