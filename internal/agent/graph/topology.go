package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/handbook-assistant/server/internal/agent/graph/nodes"
	"github.com/handbook-assistant/server/internal/agent/model"
)

// Handler computes a node's partial update from the turn's working state.
type Handler func(ctx context.Context, s *model.ConversationState) (model.Update, error)

// Condition picks the next node after a branching node.
type Condition func(ctx context.Context, s *model.ConversationState) (string, error)

// Branch is a conditional outgoing rule. Decide must return one of Targets.
type Branch struct {
	Targets []string
	Decide  Condition
}

// Topology is the explicit transition table of the conversation graph.
// Every handler node has exactly one outgoing rule: a direct edge or a branch.
type Topology struct {
	Entry    string
	Handlers map[string]Handler
	Edges    map[string]string
	Branches map[string]Branch
	// MaxDepth bounds the handler nodes on any path from Entry. Zero means
	// the handler count.
	MaxDepth int
}

var ErrInvalidTopology = errors.New("invalid topology")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTopology, fmt.Sprintf(format, args...))
}

// Validate checks the table is a DAG from Entry to END.
func (t *Topology) Validate() error {
	if t == nil || len(t.Handlers) == 0 {
		return invalid("no handlers")
	}
	if _, ok := t.Handlers[t.Entry]; !ok {
		return invalid("entry %q has no handler", t.Entry)
	}

	for name, h := range t.Handlers {
		if name == nodes.NodeStart || name == nodes.NodeEnd {
			return invalid("%q is reserved", name)
		}
		if h == nil {
			return invalid("node %q has a nil handler", name)
		}
		_, hasEdge := t.Edges[name]
		_, hasBranch := t.Branches[name]
		if hasEdge == hasBranch {
			return invalid("node %q must have exactly one outgoing rule", name)
		}
	}
	for from, to := range t.Edges {
		if _, ok := t.Handlers[from]; !ok {
			return invalid("edge from unknown node %q", from)
		}
		if !t.exists(to) {
			return invalid("edge %s -> %s targets an unknown node", from, to)
		}
	}
	for from, b := range t.Branches {
		if _, ok := t.Handlers[from]; !ok {
			return invalid("branch from unknown node %q", from)
		}
		if b.Decide == nil || len(b.Targets) == 0 {
			return invalid("branch on %q has no condition or targets", from)
		}
		for _, to := range b.Targets {
			if !t.exists(to) {
				return invalid("branch %s -> %s targets an unknown node", from, to)
			}
		}
	}

	depth, err := t.LongestPath()
	if err != nil {
		return err
	}
	if limit := t.maxSteps(); depth > limit {
		return invalid("longest path %d exceeds depth limit %d", depth, limit)
	}

	reached := map[string]bool{}
	t.walk(t.Entry, reached)
	for name := range t.Handlers {
		if !reached[name] {
			return invalid("node %q is unreachable from %q", name, t.Entry)
		}
	}
	if !reached[nodes.NodeEnd] {
		return invalid("END is unreachable")
	}
	return nil
}

func (t *Topology) exists(name string) bool {
	if name == nodes.NodeEnd {
		return true
	}
	_, ok := t.Handlers[name]
	return ok
}

// successors lists the nodes a node can hand over to.
func (t *Topology) successors(name string) []string {
	if to, ok := t.Edges[name]; ok {
		return []string{to}
	}
	if b, ok := t.Branches[name]; ok {
		return b.Targets
	}
	return nil
}

func (t *Topology) walk(name string, seen map[string]bool) {
	if seen[name] {
		return
	}
	seen[name] = true
	for _, next := range t.successors(name) {
		t.walk(next, seen)
	}
}

func (t *Topology) maxSteps() int {
	if t.MaxDepth > 0 {
		return t.MaxDepth
	}
	return len(t.Handlers)
}

// LongestPath returns the number of handler nodes on the longest path from
// Entry to END, failing on cycles.
func (t *Topology) LongestPath() (int, error) {
	const (
		visiting = 1
		done     = 2
	)
	color := map[string]int{}
	memo := map[string]int{}

	var visit func(string) (int, error)
	visit = func(name string) (int, error) {
		if name == nodes.NodeEnd {
			return 0, nil
		}
		switch color[name] {
		case visiting:
			return 0, invalid("cycle through %q", name)
		case done:
			return memo[name], nil
		}
		color[name] = visiting
		longest := 0
		for _, next := range t.successors(name) {
			d, err := visit(next)
			if err != nil {
				return 0, err
			}
			longest = max(longest, d)
		}
		color[name] = done
		memo[name] = longest + 1
		return memo[name], nil
	}
	return visit(t.Entry)
}

// Edge is a directed connection between two nodes.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

func (e Edge) String() string { return e.From + "→" + e.To }

// Shape is the static description of a topology used by structural checks.
type Shape struct {
	Nodes            []string            `json:"nodes"`
	ToolNodes        int                 `json:"tool_nodes"`
	DirectEdges      []Edge              `json:"direct_edges"`
	ConditionalEdges map[string][]string `json:"conditional_edges"`
}

// Shape lists handler nodes, the START edge, direct edges and branch targets.
func (t *Topology) Shape() Shape {
	s := Shape{
		Nodes:            make([]string, 0, len(t.Handlers)),
		DirectEdges:      []Edge{{From: nodes.NodeStart, To: t.Entry}},
		ConditionalEdges: make(map[string][]string, len(t.Branches)),
	}
	for name := range t.Handlers {
		s.Nodes = append(s.Nodes, name)
	}
	sort.Strings(s.Nodes)

	for from, to := range t.Edges {
		s.DirectEdges = append(s.DirectEdges, Edge{From: from, To: to})
	}
	sort.Slice(s.DirectEdges[1:], func(i, j int) bool {
		a, b := s.DirectEdges[1+i], s.DirectEdges[1+j]
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})

	for from, b := range t.Branches {
		s.ConditionalEdges[from] = append([]string(nil), b.Targets...)
	}
	return s
}
