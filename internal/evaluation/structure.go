package evaluation

import (
	"sort"

	"github.com/handbook-assistant/server/internal/agent/graph"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

// StructureReport compares a graph shape with the expected one.
type StructureReport struct {
	NodeCount               int             `json:"n_nodes"`
	ExpectedNodeCount       int             `json:"expected_n_nodes"`
	NodeCountOK             bool            `json:"node_count_ok"`
	NodesOK                 bool            `json:"nodes_ok"`
	MissingNodes            []string        `json:"missing_nodes"`
	ExtraNodes              []string        `json:"extra_nodes"`
	ToolNodes               int             `json:"n_tool_nodes"`
	ToolNodesOK             bool            `json:"tool_nodes_ok"`
	EdgeCount               int             `json:"n_edges"`
	DirectEdges             map[string]bool `json:"direct_edges"`
	MissingDirectEdges      []string        `json:"missing_direct_edges"`
	DirectEdgesOK           bool            `json:"direct_edges_ok"`
	ConditionalEdges        map[string]bool `json:"conditional_edges"`
	MissingConditionalEdges []string        `json:"missing_conditional_edges"`
	ConditionalEdgesOK      bool            `json:"conditional_edges_ok"`
	AllOK                   bool            `json:"all_ok"`
}

// StructureEvaluator checks a topology against a StructureSpec.
type StructureEvaluator struct {
	expected *StructureSpec
}

func NewStructureEvaluator(expected *StructureSpec) *StructureEvaluator {
	return &StructureEvaluator{expected: expected}
}

// Evaluate reports node, tool-node and edge agreement. Extra nodes are
// reported but only missing ones fail the node check. Direct and conditional
// edges are matched against their own kind only.
func (e *StructureEvaluator) Evaluate(shape graph.Shape) StructureReport {
	actualNodes := toSet(shape.Nodes)
	expectedNodes := toSet(e.expected.Nodes.Expected)

	direct := map[graph.Edge]bool{}
	for _, edge := range shape.DirectEdges {
		direct[edge] = true
	}
	conditional := map[graph.Edge]bool{}
	for from, targets := range shape.ConditionalEdges {
		for _, to := range targets {
			conditional[graph.Edge{From: from, To: to}] = true
		}
	}

	r := StructureReport{
		NodeCount:         len(actualNodes),
		ExpectedNodeCount: e.expected.Nodes.Count,
		MissingNodes:      difference(expectedNodes, actualNodes),
		ExtraNodes:        difference(actualNodes, expectedNodes),
		ToolNodes:         shape.ToolNodes,
		EdgeCount:         len(direct) + len(conditional),
		DirectEdges:       map[string]bool{},
		ConditionalEdges:  map[string]bool{},
	}
	r.NodeCountOK = r.NodeCount == r.ExpectedNodeCount
	r.NodesOK = len(r.MissingNodes) == 0
	r.ToolNodesOK = r.ToolNodes == e.expected.ToolNodes.Count

	for _, pair := range e.expected.DirectEdges {
		edge := graph.Edge{From: pair[0], To: pair[1]}
		ok := direct[edge]
		r.DirectEdges[edge.String()] = ok
		if !ok {
			r.MissingDirectEdges = append(r.MissingDirectEdges, edge.String())
		}
	}
	for from, targets := range e.expected.ConditionalEdges {
		for _, to := range targets {
			edge := graph.Edge{From: from, To: to}
			ok := conditional[edge]
			r.ConditionalEdges[edge.String()] = ok
			if !ok {
				r.MissingConditionalEdges = append(r.MissingConditionalEdges, edge.String())
			}
		}
	}
	sort.Strings(r.MissingDirectEdges)
	sort.Strings(r.MissingConditionalEdges)
	r.DirectEdgesOK = len(r.MissingDirectEdges) == 0
	r.ConditionalEdgesOK = len(r.MissingConditionalEdges) == 0
	r.AllOK = r.NodeCountOK && r.NodesOK && r.ToolNodesOK && r.DirectEdgesOK && r.ConditionalEdgesOK

	logx.Info().
		Bool("all_ok", r.AllOK).
		Int("n_nodes", r.NodeCount).
		Strs("missing_nodes", r.MissingNodes).
		Strs("extra_nodes", r.ExtraNodes).
		Strs("missing_direct_edges", r.MissingDirectEdges).
		Strs("missing_conditional_edges", r.MissingConditionalEdges).
		Msg("structure evaluated")
	return r
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}

// difference returns the sorted elements of a not in b.
func difference(a, b map[string]bool) []string {
	out := []string{}
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
