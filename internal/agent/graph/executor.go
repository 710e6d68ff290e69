package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/handbook-assistant/server/internal/agent/graph/nodes"
	"github.com/handbook-assistant/server/internal/agent/model"
	errx "github.com/handbook-assistant/server/internal/core/error"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

// ErrCycle is returned when a turn revisits a node or runs more steps than there are nodes.
var ErrCycle = errors.New("graph: node revisited within a turn")

// Step records one node execution within a turn.
type Step struct {
	Node     string        `json:"node"`
	Update   model.Update  `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Trace is the full record of a turn.
type Trace struct {
	ThreadID string            `json:"thread_id"`
	Question string            `json:"question"`
	Steps    []Step            `json:"steps"`
	Result   *model.TurnResult `json:"result"`
}

// Path returns the node names in execution order.
func (t *Trace) Path() []string {
	path := make([]string, 0, len(t.Steps))
	for _, s := range t.Steps {
		path = append(path, s.Node)
	}
	return path
}

// Step returns the recorded step for node, if it ran.
func (t *Trace) Step(node string) (Step, bool) {
	for _, s := range t.Steps {
		if s.Node == node {
			return s, true
		}
	}
	return Step{}, false
}

// Executor walks a Topology for one turn at a time per thread.
type Executor struct {
	topology *Topology
	store    model.ConversationStore
	locks    *threadLocks
}

// NewExecutor validates the topology and binds it to a store.
func NewExecutor(t *Topology, store model.ConversationStore) (*Executor, error) {
	if store == nil {
		return nil, fmt.Errorf("conversation store is nil")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Executor{topology: t, store: store, locks: newThreadLocks()}, nil
}

// Run executes one turn. Node updates are applied to a working copy and the
// composed update is committed with a single merge once END is reached; a
// failing turn leaves the stored thread untouched.
func (e *Executor) Run(ctx context.Context, in model.QueryInput) (*Trace, error) {
	threadID := strings.TrimSpace(in.ThreadID)
	if threadID == "" {
		threadID = model.DefaultThreadID
	}
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, errx.ErrEmptyQuestion
	}

	unlock, err := e.locks.lock(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	started := time.Now()
	state, err := e.store.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}

	turn := model.BeginTurn(question)
	working := state.Clone()
	working.Apply(turn)
	composed := turn

	trace := &Trace{ThreadID: threadID, Question: question}
	visited := make(map[string]bool, len(e.topology.Handlers))
	current := e.topology.Entry

	for current != nodes.NodeEnd {
		if visited[current] || len(trace.Steps) >= e.topology.maxSteps() {
			logx.Error().Str("thread_id", threadID).Str("node", current).Strs("path", trace.Path()).Msg("cycle detected")
			return nil, fmt.Errorf("%w: %s after %v", ErrCycle, current, trace.Path())
		}
		visited[current] = true

		handler, ok := e.topology.Handlers[current]
		if !ok {
			return nil, fmt.Errorf("graph: no handler for node %q", current)
		}

		stepStart := time.Now()
		update, err := handler(ctx, working)
		if err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Str("node", current).Msg("node failed, turn discarded")
			return nil, fmt.Errorf("node %s: %w", current, err)
		}
		working.Apply(update)
		composed = composed.Then(update)
		trace.Steps = append(trace.Steps, Step{Node: current, Update: update, Duration: time.Since(stepStart)})

		next, err := e.next(ctx, current, working)
		if err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Str("node", current).Msg("routing failed, turn discarded")
			return nil, fmt.Errorf("route from %s: %w", current, err)
		}
		current = next
	}

	final, err := e.store.Merge(ctx, threadID, composed)
	if err != nil {
		return nil, err
	}

	trace.Result = resultFrom(final, question, trace.Path())
	logx.Info().
		Str("thread_id", threadID).
		Str("intent", final.Intent.String()).
		Str("source", final.Source.String()).
		Strs("path", trace.Result.Path).
		Dur("elapsed", time.Since(started)).
		Msg("turn completed")
	return trace, nil
}

// RunNode executes a single handler against a copy of state without
// touching the store.
func (e *Executor) RunNode(ctx context.Context, node string, state *model.ConversationState) (model.Update, error) {
	handler, ok := e.topology.Handlers[node]
	if !ok {
		return model.Update{}, fmt.Errorf("graph: unknown node %q", node)
	}
	return handler(ctx, state.Clone())
}

func (e *Executor) next(ctx context.Context, current string, s *model.ConversationState) (string, error) {
	if to, ok := e.topology.Edges[current]; ok {
		return to, nil
	}
	b := e.topology.Branches[current]
	to, err := b.Decide(ctx, s)
	if err != nil {
		return "", err
	}
	if !slices.Contains(b.Targets, to) {
		return "", fmt.Errorf("branch on %s chose undeclared target %q", current, to)
	}
	return to, nil
}

func resultFrom(s *model.ConversationState, question string, path []string) *model.TurnResult {
	r := &model.TurnResult{
		ThreadID: s.ThreadID,
		Question: question,
		Answer:   s.Answer,
		Source:   s.Source,
		Intent:   s.Intent,
		Path:     path,
	}
	if v, ok := s.Relevant.Get(); ok {
		r.Relevant = &v
	}
	return r
}

// threadLocks serialises turns per thread id. Entries are reference counted
// and dropped once no turn holds or waits for them.
type threadLocks struct {
	mu sync.Mutex
	m  map[string]*threadLock
}

type threadLock struct {
	sem  chan struct{}
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{m: map[string]*threadLock{}}
}

// lock blocks until the thread is free or ctx is done.
func (l *threadLocks) lock(ctx context.Context, threadID string) (func(), error) {
	l.mu.Lock()
	tl := l.m[threadID]
	if tl == nil {
		tl = &threadLock{sem: make(chan struct{}, 1)}
		l.m[threadID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	select {
	case tl.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-tl.sem
				l.release(threadID, tl)
			})
		}, nil
	case <-ctx.Done():
		l.release(threadID, tl)
		return nil, ctx.Err()
	}
}

func (l *threadLocks) release(threadID string, tl *threadLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl.refs--
	if tl.refs == 0 {
		delete(l.m, threadID)
	}
}

func (l *threadLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
