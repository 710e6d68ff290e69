package evaluation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"github.com/handbook-assistant/server/internal/agent/graph"
	"github.com/handbook-assistant/server/internal/agent/graph/nodes"
	"github.com/handbook-assistant/server/internal/agent/model"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

const missing = "MISSING"

// CaseRow is the outcome of one node-level case.
type CaseRow struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Detail   string `json:"detail,omitempty"`
	Pass     bool   `json:"pass"`
	Error    string `json:"error,omitempty"`
}

// SuiteReport aggregates the cases of one suite. An empty suite scores 0.
type SuiteReport struct {
	Name     string    `json:"name"`
	Accuracy float64   `json:"accuracy"`
	Passed   int       `json:"passed"`
	Total    int       `json:"total"`
	Rows     []CaseRow `json:"rows"`
}

func newSuiteReport(name string, rows []CaseRow) SuiteReport {
	r := SuiteReport{Name: name, Rows: rows, Total: len(rows)}
	for _, row := range rows {
		if row.Pass {
			r.Passed++
		}
	}
	if r.Total > 0 {
		r.Accuracy = float64(r.Passed) / float64(r.Total)
	}
	return r
}

// GraphReport is the node-level evaluation with the structural check folded in.
type GraphReport struct {
	Structure      StructureReport `json:"structure"`
	Classify       SuiteReport     `json:"classify"`
	Retrieve       SuiteReport     `json:"retrieve"`
	Grade          SuiteReport     `json:"grade"`
	Routing        SuiteReport     `json:"routing"`
	StructureScore float64         `json:"structure_score"`
	GraphScore     float64         `json:"graph_score"`
}

// NamedScore is one line of the summary table.
type NamedScore struct {
	Name  string
	Score float64
}

// Scores lists the five components of the graph score in display order.
func (r *GraphReport) Scores() []NamedScore {
	return []NamedScore{
		{Name: "classify", Score: r.Classify.Accuracy},
		{Name: "retrieve", Score: r.Retrieve.Accuracy},
		{Name: "grade", Score: r.Grade.Accuracy},
		{Name: "routing", Score: r.Routing.Accuracy},
		{Name: "structure", Score: r.StructureScore},
	}
}

// NodeEvaluator replays the node suites through a Runner.
type NodeEvaluator struct {
	runner    graph.Runner
	cases     *NodeCases
	structure *StructureEvaluator
	reset     func(ctx context.Context, threadID string) error
}

type NodeEvaluatorOption func(*NodeEvaluator)

// WithThreadReset deletes each evaluation thread before its case runs so
// repeated runs start from an empty history.
func WithThreadReset(store model.ConversationStore) NodeEvaluatorOption {
	return func(e *NodeEvaluator) { e.reset = store.Delete }
}

func NewNodeEvaluator(runner graph.Runner, cases *NodeCases, structure *StructureEvaluator, opts ...NodeEvaluatorOption) *NodeEvaluator {
	e := &NodeEvaluator{runner: runner, cases: cases, structure: structure}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates every suite concurrently. Case failures are recorded in the
// report; only cancellation aborts the run.
func (e *NodeEvaluator) Run(ctx context.Context) (*GraphReport, error) {
	report := &GraphReport{Structure: e.structure.Evaluate(e.runner.Shape())}
	if report.Structure.AllOK {
		report.StructureScore = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		report.Classify, err = e.classify(gctx)
		return err
	})
	g.Go(func() (err error) {
		report.Retrieve, err = e.retrieve(gctx)
		return err
	})
	g.Go(func() (err error) {
		report.Grade, err = e.grade(gctx)
		return err
	})
	g.Go(func() (err error) {
		report.Routing, err = e.routing(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var sum float64
	for _, s := range report.Scores() {
		sum += s.Score
	}
	report.GraphScore = sum / 5

	logx.Info().
		Float64("classify", report.Classify.Accuracy).
		Float64("retrieve", report.Retrieve.Accuracy).
		Float64("grade", report.Grade.Accuracy).
		Float64("routing", report.Routing.Accuracy).
		Float64("structure", report.StructureScore).
		Float64("graph_score", report.GraphScore).
		Msg("node evaluation completed")
	return report, nil
}

// trace runs one question on a fresh evaluation thread.
func (e *NodeEvaluator) trace(ctx context.Context, threadID, question string) (*graph.Trace, error) {
	if e.reset != nil {
		if err := e.reset(ctx, threadID); err != nil {
			return nil, fmt.Errorf("reset %s: %w", threadID, err)
		}
	}
	return e.runner.Trace(ctx, model.QueryInput{ThreadID: threadID, Question: question})
}

// caseError records a failed case, or aborts when the run itself was cancelled.
func caseError(ctx context.Context, row *CaseRow, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	row.Error = err.Error()
	row.Actual = missing
	return nil
}

func (e *NodeEvaluator) classify(ctx context.Context) (SuiteReport, error) {
	rows := make([]CaseRow, 0, len(e.cases.Classify))
	for i, tc := range e.cases.Classify {
		row := CaseRow{Input: tc.Input, Expected: tc.ExpectedIntent}
		trace, err := e.trace(ctx, fmt.Sprintf("eval-cls-%d", i), tc.Input)
		if err != nil {
			if aerr := caseError(ctx, &row, err); aerr != nil {
				return SuiteReport{}, aerr
			}
		} else {
			row.Actual = missing
			if step, ok := trace.Step(nodes.NodeClassify); ok {
				if intent, ok := step.Update.Intent.Get(); ok {
					row.Actual = intent.String()
				}
			}
			row.Pass = row.Actual == tc.ExpectedIntent
		}
		rows = append(rows, row)
	}
	return newSuiteReport("classify", rows), nil
}

func (e *NodeEvaluator) retrieve(ctx context.Context) (SuiteReport, error) {
	rows := make([]CaseRow, 0, len(e.cases.Retrieve))
	for i, tc := range e.cases.Retrieve {
		row := CaseRow{Input: tc.Input, Expected: strings.Join(tc.RelevantKeywords, ", ")}
		trace, err := e.trace(ctx, fmt.Sprintf("eval-ret-%d", i), tc.Input)
		if err != nil {
			if aerr := caseError(ctx, &row, err); aerr != nil {
				return SuiteReport{}, aerr
			}
		} else {
			var docs []*schema.Document
			if step, ok := trace.Step(nodes.NodeRetrieve); ok {
				docs, _ = step.Update.Documents.Get()
			}
			found := matchKeywords(docs, tc.RelevantKeywords)
			row.Actual = strings.Join(found, ", ")
			row.Detail = fmt.Sprintf("%d docs", len(docs))
			row.Pass = len(found) > 0
		}
		rows = append(rows, row)
	}
	return newSuiteReport("retrieve", rows), nil
}

// matchKeywords returns the keywords present in any passage, case-insensitively.
func matchKeywords(docs []*schema.Document, keywords []string) []string {
	var b strings.Builder
	for _, d := range docs {
		if d == nil {
			continue
		}
		b.WriteString(strings.ToLower(d.Content))
		b.WriteByte(' ')
	}
	all := b.String()
	found := []string{}
	for _, kw := range keywords {
		if strings.Contains(all, strings.ToLower(kw)) {
			found = append(found, kw)
		}
	}
	return found
}

func (e *NodeEvaluator) grade(ctx context.Context) (SuiteReport, error) {
	rows := make([]CaseRow, 0, len(e.cases.Grade))
	for i, tc := range e.cases.Grade {
		row := CaseRow{Input: tc.Input, Expected: fmt.Sprint(tc.ExpectedRelevant)}
		if len(tc.Documents) > 0 {
			row.Detail = preview(tc.Documents[0], 80)
		}

		state := model.NewConversationState(fmt.Sprintf("eval-grade-%d", i))
		state.Messages = []*schema.Message{schema.UserMessage(tc.Input)}
		state.Documents = make([]*schema.Document, 0, len(tc.Documents))
		for _, d := range tc.Documents {
			state.Documents = append(state.Documents, &schema.Document{Content: d})
		}

		update, err := e.runner.RunNode(ctx, nodes.NodeGrade, state)
		if err != nil {
			if aerr := caseError(ctx, &row, err); aerr != nil {
				return SuiteReport{}, aerr
			}
		} else if relevant, ok := update.Relevant.Get(); ok {
			row.Actual = fmt.Sprint(relevant)
			row.Pass = relevant == tc.ExpectedRelevant
		} else {
			row.Actual = missing
		}
		rows = append(rows, row)
	}
	return newSuiteReport("grade", rows), nil
}

func (e *NodeEvaluator) routing(ctx context.Context) (SuiteReport, error) {
	rows := make([]CaseRow, 0, len(e.cases.Routing))
	for i, tc := range e.cases.Routing {
		row := CaseRow{Input: tc.Input, Expected: joinPath(tc.ExpectedPath), Detail: tc.Description}
		trace, err := e.trace(ctx, fmt.Sprintf("eval-route-%d", i), tc.Input)
		if err != nil {
			if aerr := caseError(ctx, &row, err); aerr != nil {
				return SuiteReport{}, aerr
			}
		} else {
			path := trace.Path()
			row.Actual = joinPath(path)
			row.Pass = slices.Equal(path, tc.ExpectedPath)
		}
		rows = append(rows, row)
	}
	return newSuiteReport("routing", rows), nil
}

func joinPath(path []string) string {
	return strings.Join(path, " → ")
}

func preview(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
