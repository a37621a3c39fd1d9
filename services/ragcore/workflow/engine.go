// Package workflow implements the Workflow Engine (C5): the twelve-node
// state machine that drives query refinement, retrieval, generation, and
// self-evaluation to a terminal FinalResponse.
package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/ragflow/services/ragcore/compiler"
	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
	"github.com/AleutianAI/ragflow/services/ragcore/grading"
	"github.com/AleutianAI/ragflow/services/ragcore/oracle"
	"github.com/AleutianAI/ragflow/services/ragcore/retrieval"
	"github.com/AleutianAI/ragflow/services/ragcore/session"
)

const (
	defaultMaxRetries          = 2
	defaultAcceptanceThreshold = 0.7
	defaultWallClockTimeout    = 300 * time.Second
)

// errCancelled signals that a node observed a cancelled or expired context
// at one of its suspension points. It never escapes the workflow package.
var errCancelled = errors.New("workflow: suspension point observed a cancelled context")

// Config bounds one Engine's retry and timing behavior. Zero values take
// the documented defaults.
type Config struct {
	MaxRetries          int
	AcceptanceThreshold float64
	WallClockTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.AcceptanceThreshold <= 0 {
		c.AcceptanceThreshold = defaultAcceptanceThreshold
	}
	if c.WallClockTimeout <= 0 {
		c.WallClockTimeout = defaultWallClockTimeout
	}
	return c
}

// Engine drives the state machine. Dependencies are injected at
// construction; the engine itself holds no module-level state (SPEC_FULL
// §9's guidance against global mutable agent state).
type Engine struct {
	oracle   oracle.Oracle
	backends *retrieval.Facade
	compiler *compiler.Compiler
	grader   *grading.Grader
	store    *session.Store
	config   Config
	metrics  *engineMetrics
	idGen    func() string
}

// NewEngine wires the six components into a ready-to-run Engine. registerer
// may be nil to use the default Prometheus registry.
func NewEngine(o oracle.Oracle, backends *retrieval.Facade, comp *compiler.Compiler, grader *grading.Grader, store *session.Store, config Config, registerer prometheus.Registerer) *Engine {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Engine{
		oracle:   o,
		backends: backends,
		compiler: comp,
		grader:   grader,
		store:    store,
		config:   config.withDefaults(),
		metrics:  newEngineMetrics(registerer),
		idGen:    uuid.NewString,
	}
}

// Run executes one workflow from a fresh query to a terminal FinalResponse,
// returning *WorkflowExhausted or *WorkflowCancelled on the error paths
// documented in spec.md §7.
func (e *Engine) Run(ctx context.Context, originalText string) (*datatypes.FinalResponse, error) {
	queryID := e.idGen()
	ctx, span := workflowTracer.Start(ctx, "ragcore.workflow.run")
	defer span.End()
	span.SetAttributes(attribute.String("query.id", queryID))

	runCtx, cancel := context.WithTimeout(ctx, e.config.WallClockTimeout)
	defer cancel()

	query := datatypes.NewQuery(originalText)
	state := datatypes.NewWorkflowState(queryID, query, e.config.MaxRetries, e.config.AcceptanceThreshold, time.Now())
	e.transition(state, datatypes.NodeStart, datatypes.NodeRewriteQuery, "")

	for {
		resp, done, err := e.runIteration(runCtx, state)
		if err != nil {
			return e.handleCancellation(runCtx, state)
		}
		if done {
			if resp == nil {
				e.metrics.runsTotal.WithLabelValues("exhausted").Inc()
				return nil, &WorkflowExhausted{
					QueryID:   state.QueryID,
					LastCause: "every iteration produced an empty or ungradable answer",
				}
			}
			e.metrics.runsTotal.WithLabelValues(string(state.Status)).Inc()
			return resp, nil
		}
		// The N12->N2 loopback is a legal edge (spec.md §4.5) but is never
		// recorded as a NodeTransition: counting it would blow the bounded-work
		// formula len(history) <= 9*(max_retries+1)+1, which only accounts for
		// the 9 edges each iteration records between N2 and N10/N11/N12. The
		// reset is still observable: it publishes its own bare snapshot.
		state.CurrentNode = datatypes.NodeRewriteQuery
		e.publish(state)
	}
}

// runIteration executes one pass of N2..N10, continuing on to N11 or N12.
// It assumes state.CurrentNode is already NodeRewriteQuery on entry.
//
// Return value done=true means the run has reached a terminal state: resp
// is the FinalResponse (nil only when retries are exhausted with no
// best-candidate ever graded above zero). done=false means the caller should loop
// back into another pass starting at N2; state.RetryCount and
// Query.EnhancementHints have already been updated for that pass.
//
// The retry-exhaustion decision is made here, before the N12 transition is
// recorded, so that transition's single publish already carries the
// complete terminal snapshot — no node visit is ever published twice.
func (e *Engine) runIteration(ctx context.Context, state *datatypes.WorkflowState) (*datatypes.FinalResponse, bool, error) {
	if err := e.nodeRewriteQuery(ctx, state); err != nil {
		return nil, false, err
	}
	e.transition(state, datatypes.NodeRewriteQuery, datatypes.NodePublishQueryN3, "")
	e.transition(state, datatypes.NodePublishQueryN3, datatypes.NodeDecideNeedInfo, "")

	needInfo, err := e.nodeDecideNeedInfo(ctx, state)
	if err != nil {
		return nil, false, err
	}
	if needInfo == datatypes.DecisionNo {
		resp, exhausted := e.loopbackOrTerminate(state, datatypes.NodeDecideNeedInfo, datatypes.DecisionNo, needNoLoopbackHint)
		return resp, exhausted, nil
	}
	e.transition(state, datatypes.NodeDecideNeedInfo, datatypes.NodeChooseSource, datatypes.DecisionYes)

	source, err := e.nodeChooseSource(ctx, state)
	if err != nil {
		return nil, false, err
	}
	e.transition(state, datatypes.NodeChooseSource, datatypes.NodeRetrieve, "")

	result, err := e.nodeRetrieve(ctx, state, source)
	if err != nil {
		return nil, false, err
	}
	e.transition(state, datatypes.NodeRetrieve, datatypes.NodePublishContext, "")

	cc := e.compiler.Compile(result)
	e.transition(state, datatypes.NodePublishContext, datatypes.NodePublishQueryN8, "")
	e.transition(state, datatypes.NodePublishQueryN8, datatypes.NodeGenerateAnswer, "")

	answerText, degraded, err := e.nodeGenerateAnswer(ctx, state, cc)
	if err != nil {
		return nil, false, err
	}
	e.transition(state, datatypes.NodeGenerateAnswer, datatypes.NodeDecideAnswerRelevant, "")

	grade, decision, err := e.nodeDecideAnswerRelevant(ctx, state, cc, answerText)
	if err != nil {
		return nil, false, err
	}

	candidate := e.buildCandidate(state, cc, answerText, grade, degraded)
	state.ConsiderCandidate(candidate)

	if decision == datatypes.DecisionYes {
		resp := e.finalizeAccepted(candidate)
		state.Status = datatypes.StatusAccepted
		state.FinalResponse = resp
		e.transition(state, datatypes.NodeDecideAnswerRelevant, datatypes.NodeTerminalAccept, datatypes.DecisionYes)
		return resp, true, nil
	}

	_, exhausted := e.loopbackOrTerminate(state, datatypes.NodeDecideAnswerRelevant, datatypes.DecisionNo, grade.ImprovementReason)
	return state.FinalResponse, exhausted, nil
}

// loopbackOrTerminate decides, before the N12 transition is recorded,
// whether the run continues (retries remain) or ends at N12 (exhausted).
// It always reports done=true when it lands on N12's terminal
// fallback-or-exhausted branch, and done=false when retries remain.
func (e *Engine) loopbackOrTerminate(state *datatypes.WorkflowState, from datatypes.Node, decision datatypes.Decision, hint string) (resp *datatypes.FinalResponse, done bool) {
	if state.RetryCount < state.MaxRetries {
		state.RetryCount++
		state.Query.AppendHint(hint)
		e.transition(state, from, datatypes.NodeLoopbackOrTerminate, decision)
		return nil, false
	}

	resp = e.finalizeFallback(state, "retries exhausted; returning the highest-graded candidate observed")
	state.Status = datatypes.StatusFallback
	state.FinalResponse = resp
	e.transition(state, from, datatypes.NodeLoopbackOrTerminate, decision)
	return resp, true
}

func (e *Engine) buildCandidate(state *datatypes.WorkflowState, cc *datatypes.CompiledContext, answerText string, grade datatypes.GradingResult, degraded bool) *datatypes.FinalResponse {
	resp := &datatypes.FinalResponse{
		Answer:        answerText,
		Confidence:    grade.Overall,
		Sources:       cc.SourceIDs(),
		GradingScores: grade,
		Metadata: datatypes.ResponseMetadata{
			RetrievalMethod: state.LastRetrievalSource,
			QueryRewrites:   state.RetryCount + 1,
			Degraded:        degraded,
		},
	}
	if degraded {
		resp.Metadata.DegradationReason = "answer generation failed; candidate graded on an empty answer"
	}
	return resp
}

// finalizeAccepted stamps an accepted candidate with its terminal node. It
// is pure: callers attach the result to state and record the N10->N11
// transition themselves, so that transition's single publish already
// carries the finished snapshot.
func (e *Engine) finalizeAccepted(candidate *datatypes.FinalResponse) *datatypes.FinalResponse {
	resp := *candidate
	resp.Metadata.WorkflowCompletedAtNode = int(datatypes.NodeTerminalAccept)
	return &resp
}

// finalizeFallback stamps state.BestCandidate as a degraded fallback
// response, or returns nil if no candidate was ever graded above zero. Pure
// for the same reason as finalizeAccepted.
func (e *Engine) finalizeFallback(state *datatypes.WorkflowState, reason string) *datatypes.FinalResponse {
	if state.BestCandidate == nil || state.BestCandidate.GradingScores.Overall <= 0 {
		return nil
	}
	resp := *state.BestCandidate
	resp.Metadata.WorkflowCompletedAtNode = int(datatypes.NodeLoopbackOrTerminate)
	resp.Metadata.Degraded = true
	resp.Metadata.DegradationReason = reason
	return &resp
}

// handleCancellation distinguishes the wall-clock-timeout carve-out (yields
// a fallback response when a candidate exists) from ordinary cooperative
// cancellation (never produces a FinalResponse), per spec.md §5.
func (e *Engine) handleCancellation(runCtx context.Context, state *datatypes.WorkflowState) (*datatypes.FinalResponse, error) {
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)

	if timedOut && state.BestCandidate != nil {
		resp := *state.BestCandidate
		resp.Metadata.WorkflowCompletedAtNode = int(datatypes.NodeLoopbackOrTerminate)
		resp.Metadata.Degraded = true
		resp.Metadata.DegradationReason = "wall-clock timeout exceeded; returning best candidate seen"
		state.Status = datatypes.StatusFallback
		state.FinalResponse = &resp
		e.publish(state)
		e.metrics.runsTotal.WithLabelValues(string(datatypes.StatusFallback)).Inc()
		return &resp, nil
	}

	state.Status = datatypes.StatusCancelled
	e.publish(state)
	e.metrics.runsTotal.WithLabelValues(string(datatypes.StatusCancelled)).Inc()

	reason := "context cancelled"
	if timedOut {
		reason = "wall-clock timeout exceeded"
	}
	return nil, &WorkflowCancelled{QueryID: state.QueryID, Reason: reason}
}

// transition appends a NodeTransition, advances CurrentNode, records the
// transition metric, and publishes the resulting snapshot — an edge is
// never recorded without its snapshot being observable.
func (e *Engine) transition(state *datatypes.WorkflowState, from, to datatypes.Node, decision datatypes.Decision) {
	state.Transition(from, to, decision, time.Now())
	e.metrics.transitionsTotal.WithLabelValues(nodeLabel(from), nodeLabel(to)).Inc()
	e.publish(state)
}

func (e *Engine) publish(state *datatypes.WorkflowState) {
	e.store.Put(state.Snapshot())
}

func (e *Engine) observeLatency(node string, start time.Time) {
	e.metrics.nodeLatency.WithLabelValues(node).Observe(time.Since(start).Seconds())
}
