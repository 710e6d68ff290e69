// Package evaluation measures the conversation graph: its static shape,
// per-node accuracy, and end-to-end answer quality (LASH).
package evaluation

import (
	"bytes"
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var defaultData embed.FS

const (
	structureFile = "graph_structure.yaml"
	nodesFile     = "nodes.yaml"
	lashFile      = "lash_suites.yaml"
)

// StructureSpec is the expected topology.
type StructureSpec struct {
	Nodes struct {
		Expected []string `yaml:"expected"`
		Count    int      `yaml:"count"`
	} `yaml:"nodes"`
	ToolNodes struct {
		Count int `yaml:"count"`
	} `yaml:"tool_nodes"`
	DirectEdges      [][]string          `yaml:"direct_edges"`
	ConditionalEdges map[string][]string `yaml:"conditional_edges"`
}

type ClassifyCase struct {
	Input          string `yaml:"input"`
	ExpectedIntent string `yaml:"expected_intent"`
}

type RetrieveCase struct {
	Input            string   `yaml:"input"`
	RelevantKeywords []string `yaml:"relevant_keywords"`
}

type GradeCase struct {
	Input            string   `yaml:"input"`
	Documents        []string `yaml:"documents"`
	ExpectedRelevant bool     `yaml:"expected_relevant"`
}

type RoutingCase struct {
	Input        string   `yaml:"input"`
	Description  string   `yaml:"description"`
	ExpectedPath []string `yaml:"expected_path"`
}

// NodeCases groups the node-level suites.
type NodeCases struct {
	Classify []ClassifyCase `yaml:"classify"`
	Retrieve []RetrieveCase `yaml:"retrieve"`
	Grade    []GradeCase    `yaml:"grade"`
	Routing  []RoutingCase  `yaml:"routing"`
}

// LashCase is one end-to-end question; Category is the YAML section it came from.
type LashCase struct {
	Input    string `yaml:"input"`
	Expected string `yaml:"expected"`
	Category string `yaml:"-"`
}

// readData returns the file at path, or the embedded default when path is empty.
func readData(path, name string) ([]byte, error) {
	if path == "" {
		return defaultData.ReadFile("data/" + name)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

func decodeStrict(b []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// LoadStructure reads the expected graph shape.
func LoadStructure(path string) (*StructureSpec, error) {
	b, err := readData(path, structureFile)
	if err != nil {
		return nil, err
	}
	var want StructureSpec
	if err := decodeStrict(b, &want); err != nil {
		return nil, fmt.Errorf("decode structure: %w", err)
	}
	for i, e := range want.DirectEdges {
		if len(e) != 2 {
			return nil, fmt.Errorf("direct_edges[%d]: want [from, to], got %v", i, e)
		}
	}
	return &want, nil
}

// LoadNodeCases reads the classify, retrieve, grade and routing suites.
func LoadNodeCases(path string) (*NodeCases, error) {
	b, err := readData(path, nodesFile)
	if err != nil {
		return nil, err
	}
	var cases NodeCases
	if err := decodeStrict(b, &cases); err != nil {
		return nil, fmt.Errorf("decode node cases: %w", err)
	}
	return &cases, nil
}

// LoadLashCases flattens category -> cases into one list, keeping file order.
func LoadLashCases(path string) ([]LashCase, error) {
	b, err := readData(path, lashFile)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode lash suites: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("lash suites: want a mapping of category to cases")
	}

	var out []LashCase
	for i := 0; i+1 < len(root.Content); i += 2 {
		category := root.Content[i].Value
		var cases []LashCase
		if err := root.Content[i+1].Decode(&cases); err != nil {
			return nil, fmt.Errorf("lash suites %q: %w", category, err)
		}
		for _, c := range cases {
			c.Category = category
			out = append(out, c)
		}
	}
	return out, nil
}
