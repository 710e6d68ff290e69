package capabilities

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handbook-assistant/server/internal/agent/model"
	errx "github.com/handbook-assistant/server/internal/core/error"
)

var (
	fastPolicy = WithPolicy(Policy{Timeout: time.Second, Retries: 2, Backoff: time.Millisecond})
	agileLab   = model.PromptConfig{CompanyName: "Agile Lab"}
)

func TestClassifier_ParsesLabel(t *testing.T) {
	ctx := context.Background()
	cm := &scriptedModel{replies: []string{`{"intent": "handbook"}`}}
	c, err := NewClassifier(ctx, cm, agileLab, fastPolicy)
	require.NoError(t, err)

	window := []*schema.Message{schema.UserMessage("How many vacation days do employees get?")}
	intent, err := c.Classify(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, model.IntentHandbook, intent)

	in := cm.lastInput()
	require.Len(t, in, 2)
	assert.Equal(t, schema.System, in[0].Role)
	assert.Equal(t, "How many vacation days do employees get?", in[1].Content)
}

func TestClassifier_RetriesInvalidLabel(t *testing.T) {
	ctx := context.Background()
	cm := &scriptedModel{replies: []string{"weather", `{"intent": "off_topic"}`}}
	c, err := NewClassifier(ctx, cm, agileLab, fastPolicy)
	require.NoError(t, err)

	intent, err := c.Classify(ctx, []*schema.Message{schema.UserMessage("What is Docker?")})
	require.NoError(t, err)
	assert.Equal(t, model.IntentOffTopic, intent)
	assert.Equal(t, 2, cm.callCount())
}

func TestClassifier_FailsAfterRetries(t *testing.T) {
	ctx := context.Background()
	cm := &scriptedModel{replies: []string{"weather"}}
	c, err := NewClassifier(ctx, cm, agileLab, fastPolicy)
	require.NoError(t, err)

	_, err = c.Classify(ctx, []*schema.Message{schema.UserMessage("Hi")})
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrClassification)
	assert.ErrorIs(t, err, model.ErrInvalidIntent)
	assert.Equal(t, 3, cm.callCount(), "one attempt plus two retries")
	assert.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
}

func TestGrader_EmptyPassagesSkipModel(t *testing.T) {
	ctx := context.Background()
	cm := &scriptedModel{replies: []string{`{"relevant": true}`}}
	g, err := NewGrader(ctx, cm, fastPolicy)
	require.NoError(t, err)

	relevant, err := g.Grade(ctx, "vacation?", nil)
	require.NoError(t, err)
	assert.False(t, relevant)
	assert.Zero(t, cm.callCount())
}

func TestGrader_NumbersPassages(t *testing.T) {
	ctx := context.Background()
	cm := &scriptedModel{replies: []string{`{"relevant": true}`}}
	g, err := NewGrader(ctx, cm, fastPolicy)
	require.NoError(t, err)

	docs := []*schema.Document{{Content: "Employees get 25 vacation days."}, {Content: "The office has a ping-pong table."}}
	relevant, err := g.Grade(ctx, "How many vacation days?", docs)
	require.NoError(t, err)
	assert.True(t, relevant)

	in := cm.lastInput()
	require.Len(t, in, 2)
	assert.Contains(t, in[1].Content, "1. Employees get 25 vacation days.\n\n2. The office has a ping-pong table.")
}

func TestGrader_ErrorPropagates(t *testing.T) {
	ctx := context.Background()
	cm := &scriptedModel{err: errors.New("unavailable")}
	g, err := NewGrader(ctx, cm, fastPolicy)
	require.NoError(t, err)

	_, err = g.Grade(ctx, "q", []*schema.Document{{Content: "x"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
	assert.Equal(t, 3, cm.callCount())
}

func TestGenerator_SystemThenHistory(t *testing.T) {
	ctx := context.Background()
	cm := &scriptedModel{replies: []string{"Employees get 25 days."}}
	g, err := NewGenerator(ctx, cm, fastPolicy)
	require.NoError(t, err)

	history := []*schema.Message{schema.UserMessage("Hi"), schema.AssistantMessage("Hello!", nil), schema.UserMessage("Vacation?")}
	answer, err := g.Generate(ctx, "Context: [Source: Holidays]", history)
	require.NoError(t, err)
	assert.Equal(t, "Employees get 25 days.", answer)

	in := cm.lastInput()
	require.Len(t, in, 4)
	assert.Equal(t, "Context: [Source: Holidays]", in[0].Content)
	assert.Equal(t, "Vacation?", in[3].Content)
}

func TestTranslator_EnglishIsIdentity(t *testing.T) {
	ctx := context.Background()
	cm := &scriptedModel{replies: []string{"Bonjour"}}
	tr, err := NewTranslator(ctx, cm, fastPolicy)
	require.NoError(t, err)

	out, err := tr.Translate(ctx, "Hello", "en")
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
	assert.Zero(t, cm.callCount())

	out, err = tr.Translate(ctx, "Hello", "fr")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", out)
	assert.Contains(t, cm.lastInput()[0].Content, "French")
}

func TestPolicy_TimeoutIsNotRetried(t *testing.T) {
	ctx := context.Background()
	cm := &scriptedModel{block: true}
	g, err := NewGenerator(ctx, cm, WithPolicy(Policy{Timeout: 20 * time.Millisecond, Retries: 3, Backoff: time.Millisecond}))
	require.NoError(t, err)

	_, err = g.Generate(ctx, "system", []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, errx.StatusOf(err))
	assert.Equal(t, 1, cm.callCount())
}

func TestPolicy_CallerCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Policy{Retries: 5, Backoff: time.Millisecond}.Do(ctx, "test", func(ctx context.Context) error {
		calls++
		return ctx.Err()
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestDetector(t *testing.T) {
	d := NewDetector()

	lang, err := d.Detect("Bonjour, combien de jours de congés payés avons-nous chaque année dans l'entreprise ?")
	require.NoError(t, err)
	assert.Equal(t, "fr", lang)

	_, err = d.Detect("   ")
	assert.ErrorIs(t, err, ErrNoText)
}

func TestJudge_Verdicts(t *testing.T) {
	ctx := context.Background()
	cm := &scriptedModel{replies: []string{
		`{"verdict": "yes", "rationale": "matches the expected answer"}`,
		"no",
	}}
	j, err := NewJudge(ctx, cm, agileLab, fastPolicy)
	require.NoError(t, err)

	in := JudgeInput{Question: "How many vacation days?", Expected: "25 days", Answer: "You get 25 days."}
	v, err := j.Judge(ctx, "correctness", in)
	require.NoError(t, err)
	assert.True(t, v.Pass)
	assert.Equal(t, "matches the expected answer", v.Rationale)

	prompt := cm.lastInput()
	require.Len(t, prompt, 2)
	assert.Contains(t, prompt[0].Content, "Agile Lab")
	assert.Contains(t, prompt[1].Content, "Expected response: 25 days")
	assert.Contains(t, prompt[1].Content, "Assistant answer: You get 25 days.")

	v, err = j.Judge(ctx, "safety", in)
	require.NoError(t, err)
	assert.False(t, v.Pass)

	_, err = j.Judge(ctx, "latency", in)
	assert.Error(t, err)
}

func TestJudge_MalformedIsRetriedThenFails(t *testing.T) {
	ctx := context.Background()
	cm := &scriptedModel{replies: []string{"maybe"}}
	j, err := NewJudge(ctx, cm, agileLab, fastPolicy)
	require.NoError(t, err)

	_, err = j.Judge(ctx, "helpfulness", JudgeInput{Question: "q", Answer: "a"})
	require.Error(t, err)
	assert.Equal(t, 3, cm.callCount())
	assert.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
}
