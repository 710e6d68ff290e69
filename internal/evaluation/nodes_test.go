package evaluation

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCases() *NodeCases {
	return &NodeCases{
		Classify: []ClassifyCase{
			{Input: "Hello there", ExpectedIntent: "conversational"},
			{Input: "How many vacation days do I get?", ExpectedIntent: "handbook"},
			{Input: "How do I configure Docker?", ExpectedIntent: "off_topic"},
			{Input: "Can you write a poem?", ExpectedIntent: "off_topic"},
		},
		Retrieve: []RetrieveCase{
			{Input: "How many vacation days do I get?", RelevantKeywords: []string{"Vacation", "holiday"}},
			{Input: "What is the parking policy?", RelevantKeywords: []string{"parking"}},
		},
		Grade: []GradeCase{
			{Input: "How many vacation days do I get?", Documents: []string{"Employees get 25 vacation days."}, ExpectedRelevant: true},
			{Input: "How many vacation days do I get?", Documents: []string{"The coffee machine is cleaned every week."}, ExpectedRelevant: false},
			{Input: "What is the parking policy?", Documents: nil, ExpectedRelevant: false},
		},
		Routing: []RoutingCase{
			{Input: "Hello there", Description: "greeting", ExpectedPath: []string{"classify", "conversational"}},
			{Input: "How many vacation days do I get?", Description: "covered", ExpectedPath: []string{"classify", "retrieve", "grade", "generate"}},
			{Input: "What is the parking policy?", Description: "uncovered", ExpectedPath: []string{"classify", "retrieve", "grade", "generate"}},
		},
	}
}

func TestNodeEvaluator_Run(t *testing.T) {
	runner, store := newRunner(t)
	want, err := LoadStructure("")
	require.NoError(t, err)

	eval := NewNodeEvaluator(runner, testCases(), NewStructureEvaluator(want), WithThreadReset(store))
	report, err := eval.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Classify.Passed)
	assert.InDelta(t, 0.75, report.Classify.Accuracy, 1e-9)
	assert.Equal(t, "handbook", report.Classify.Rows[3].Actual)
	assert.False(t, report.Classify.Rows[3].Pass)

	assert.InDelta(t, 0.5, report.Retrieve.Accuracy, 1e-9)
	assert.Equal(t, "Vacation", report.Retrieve.Rows[0].Actual)
	assert.Equal(t, "0 docs", report.Retrieve.Rows[1].Detail)

	assert.InDelta(t, 1.0, report.Grade.Accuracy, 1e-9)

	assert.Equal(t, 2, report.Routing.Passed)
	assert.Equal(t, "classify → retrieve → grade → not_found", report.Routing.Rows[2].Actual)

	assert.Equal(t, 1.0, report.StructureScore)
	assert.InDelta(t, (0.75+0.5+1+2.0/3+1)/5, report.GraphScore, 1e-9)

	var buf bytes.Buffer
	require.NoError(t, report.WriteSummary(&buf))
	assert.Contains(t, buf.String(), "GRAPH GLOBAL")
	assert.Contains(t, buf.String(), "75.0%")
}

func TestNodeEvaluator_ResetGivesFreshThreads(t *testing.T) {
	runner, store := newRunner(t)
	want, err := LoadStructure("")
	require.NoError(t, err)
	cases := &NodeCases{Classify: []ClassifyCase{{Input: "Hello there", ExpectedIntent: "conversational"}}}
	eval := NewNodeEvaluator(runner, cases, NewStructureEvaluator(want), WithThreadReset(store))

	for i := 0; i < 2; i++ {
		_, err := eval.Run(context.Background())
		require.NoError(t, err)
	}
	s, err := store.Get(context.Background(), "eval-cls-0")
	require.NoError(t, err)
	assert.Len(t, s.Messages, 2)
}

func TestNodeEvaluator_CancelledRunAborts(t *testing.T) {
	runner, _ := newRunner(t)
	want, err := LoadStructure("")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewNodeEvaluator(runner, testCases(), NewStructureEvaluator(want)).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchKeywords(t *testing.T) {
	docs := corpus()
	assert.Equal(t, []string{"VACATION", "three days"}, matchKeywords(docs, []string{"VACATION", "parking", "three days"}))
	assert.Empty(t, matchKeywords(nil, []string{"x"}))
}
