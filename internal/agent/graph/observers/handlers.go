package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
)

type options struct {
	meter *UsageMeter
}

type Option func(*options)

// WithUsageMeter records the token usage of every model call into m.
func WithUsageMeter(m *UsageMeter) Option {
	return func(o *options) { o.meter = m }
}

// NewAllCallbacks aggregates the model, prompt and retriever observers into one callbacks.Handler.
func NewAllCallbacks(opts ...Option) einocb.Handler {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return callbackHelper.NewHandlerHelper().
		ChatModel(newModelHandler(o.meter)).
		Prompt(newPromptHandler()).
		Retriever(newRetrieverHandler()).
		Handler()
}
