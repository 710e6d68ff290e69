package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/handbook-assistant/server/internal/agent/graph/capabilities"
	"github.com/handbook-assistant/server/internal/agent/graph/conversations"
	"github.com/handbook-assistant/server/internal/agent/graph/prompts"
	"github.com/handbook-assistant/server/internal/agent/model"
	errx "github.com/handbook-assistant/server/internal/core/error"
	"github.com/handbook-assistant/server/internal/retrieval"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

// NewClassifyNode creates the classify node. It sees a bounded window of the history.
func NewClassifyNode(cls model.Classifier, mm *conversations.MessagesManager) func(context.Context, *model.ConversationState) (model.Update, error) {
	return func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
		window := mm.ClassifierWindow(s.Messages)
		intent, err := cls.Classify(ctx, window)
		if err != nil {
			logx.Error().Err(err).Str("thread_id", s.ThreadID).Str("node", NodeClassify).Msg("Error classifying message")
			return model.Update{}, err
		}
		if intent == model.IntentUnset {
			return model.Update{}, fmt.Errorf("%w: classifier returned no intent", errx.ErrClassification)
		}
		logx.Debug().Str("thread_id", s.ThreadID).Str("intent", intent.String()).Int("window", len(window)).Msg("Message classified")
		return model.Update{Intent: model.Some(intent)}, nil
	}
}

// RetrieveConfig sizes the passage set requested from the retriever.
type RetrieveConfig struct {
	K         int
	FetchK    int
	Policy    capabilities.Policy
	Callbacks []callbacks.Handler
}

// NewRetrieveNode creates the retrieve node. The retriever runs inside an eino
// chain so retriever callbacks fire.
func NewRetrieveNode(ctx context.Context, r retriever.Retriever, cfg RetrieveConfig) (func(context.Context, *model.ConversationState) (model.Update, error), error) {
	if r == nil {
		return nil, fmt.Errorf("retriever is nil")
	}
	chain := compose.NewChain[string, []*schema.Document]()
	chain.AppendRetriever(r, compose.WithNodeName("handbook_retriever"))
	runnable, err := chain.Compile(ctx, compose.WithGraphName("retriever"))
	if err != nil {
		return nil, fmt.Errorf("compile retriever chain: %w", err)
	}

	invokeOpts := []compose.Option{
		compose.WithRetrieverOption(retriever.WithTopK(cfg.K), retrieval.WithFetchK(cfg.FetchK)),
	}
	if len(cfg.Callbacks) > 0 {
		invokeOpts = append(invokeOpts, compose.WithCallbacks(cfg.Callbacks...))
	}

	return func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
		query, ok := s.LastUserMessage()
		if !ok {
			return model.Update{}, fmt.Errorf("retrieve: no user message in thread %q", s.ThreadID)
		}
		var docs []*schema.Document
		err := cfg.Policy.Do(ctx, "retriever", func(ctx context.Context) error {
			out, err := runnable.Invoke(ctx, query, invokeOpts...)
			if err != nil {
				return err
			}
			docs = out
			return nil
		})
		if err != nil {
			logx.Error().Err(err).Str("thread_id", s.ThreadID).Str("node", NodeRetrieve).Msg("Error retrieving passages")
			return model.Update{}, err
		}
		if docs == nil {
			docs = []*schema.Document{}
		}
		logx.Debug().Str("thread_id", s.ThreadID).Int("documents", len(docs)).Msg("Passages retrieved")
		return model.Update{Documents: model.Some(docs)}, nil
	}, nil
}

// NewGradeNode creates the grade node. Terse follow-ups inside an ongoing
// exchange skip grading, and an empty passage set is never relevant.
func NewGradeNode(g model.Grader, mm *conversations.MessagesManager) func(context.Context, *model.ConversationState) (model.Update, error) {
	return func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
		question, _ := s.LastUserMessage()

		if mm.IsShortFollowUp(question, len(s.Messages)) {
			logx.Debug().Str("thread_id", s.ThreadID).Str("question", preview(question, 40)).Msg("Short follow-up, skipping grader")
			return model.Update{Relevant: model.Some(true)}, nil
		}
		if len(s.Documents) == 0 {
			logx.Debug().Str("thread_id", s.ThreadID).Msg("No passages retrieved, not relevant")
			return model.Update{Relevant: model.Some(false)}, nil
		}

		relevant, err := g.Grade(ctx, question, s.Documents)
		if err != nil {
			logx.Error().Err(err).Str("thread_id", s.ThreadID).Str("node", NodeGrade).Msg("Error grading passages")
			return model.Update{}, err
		}
		logx.Debug().Str("thread_id", s.ThreadID).Bool("relevant", relevant).Int("documents", len(s.Documents)).Msg("Passages graded")
		return model.Update{Relevant: model.Some(relevant)}, nil
	}
}

// NewGenerateNode creates the grounded answer node. It sees the full history.
func NewGenerateNode(gen model.Generator, mm *conversations.MessagesManager, cfg model.PromptConfig) func(context.Context, *model.ConversationState) (model.Update, error) {
	return func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
		system, err := prompts.RenderGenerateSystem(ctx, cfg, conversations.BuildContext(s.Documents))
		if err != nil {
			return model.Update{}, fmt.Errorf("render generate prompt: %w", err)
		}
		answer, err := gen.Generate(ctx, system, mm.GeneratorHistory(s.Messages))
		if err != nil {
			logx.Error().Err(err).Str("thread_id", s.ThreadID).Str("node", NodeGenerate).Msg("Error generating answer")
			return model.Update{}, err
		}
		return model.Update{
			Messages: assistantTurn(answer),
			Answer:   model.Some(answer),
			Source:   model.Some(model.SourceHandbook),
		}, nil
	}
}

// NewConversationalNode creates the small-talk node. It sees only the last few messages.
func NewConversationalNode(gen model.Generator, mm *conversations.MessagesManager, cfg model.PromptConfig) func(context.Context, *model.ConversationState) (model.Update, error) {
	return func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
		system, err := prompts.RenderConversationalSystem(ctx, cfg)
		if err != nil {
			return model.Update{}, fmt.Errorf("render conversational prompt: %w", err)
		}
		answer, err := gen.Generate(ctx, system, mm.SmallTalkWindow(s.Messages))
		if err != nil {
			logx.Error().Err(err).Str("thread_id", s.ThreadID).Str("node", NodeConversational).Msg("Error generating reply")
			return model.Update{}, err
		}
		return model.Update{
			Messages: assistantTurn(answer),
			Answer:   model.Some(answer),
			Source:   model.Some(model.SourceConversational),
		}, nil
	}
}

// NewOffTopicNode creates the off-topic deflection node.
func NewOffTopicNode(t *Templater, cfg model.PromptConfig) func(context.Context, *model.ConversationState) (model.Update, error) {
	return newReplyNode(t, prompts.OffTopicReply(cfg), model.IntentOffTopic, model.SourceOffTopic)
}

// NewNotFoundNode creates the deflection for handbook questions without relevant passages.
// It keeps the handbook source; relevant=false tells it apart from a grounded answer.
func NewNotFoundNode(t *Templater, cfg model.PromptConfig) func(context.Context, *model.ConversationState) (model.Update, error) {
	return newReplyNode(t, prompts.NotFoundReply(cfg), model.IntentHandbook, model.SourceHandbook)
}

func newReplyNode(t *Templater, template string, intent model.Intent, source model.Source) func(context.Context, *model.ConversationState) (model.Update, error) {
	return func(ctx context.Context, s *model.ConversationState) (model.Update, error) {
		question, _ := s.LastUserMessage()
		text := t.Reply(ctx, template, question)
		return model.Update{
			Messages: assistantTurn(text),
			Answer:   model.Some(text),
			Intent:   model.Some(intent),
			Source:   model.Some(source),
		}, nil
	}
}
