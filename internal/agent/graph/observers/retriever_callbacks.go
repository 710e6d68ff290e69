package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/retriever"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	"github.com/handbook-assistant/server/internal/agent/graph/conversations"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

// newRetrieverHandler logs the query and the titles of the passages it returned.
func newRetrieverHandler() *callbackHelper.RetrieverCallbackHandler {
	return &callbackHelper.RetrieverCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *retriever.CallbackInput) context.Context {
			if input != nil {
				logx.Debug().Str("name", info.Name).Str("query", preview(input.Query)).Int("top_k", input.TopK).Msg("retrieval started")
			}
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *retriever.CallbackOutput) context.Context {
			if output == nil {
				return ctx
			}
			titles := make([]string, 0, len(output.Docs))
			for _, d := range output.Docs {
				titles = append(titles, conversations.SourceTitle(d))
			}
			logx.Debug().Str("name", info.Name).Int("documents", len(output.Docs)).Strs("titles", titles).Msg("retrieval finished")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Err(err).Str("name", info.Name).Msg("retrieval failed")
			return ctx
		},
	}
}
