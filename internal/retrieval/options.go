package retrieval

import "github.com/cloudwego/eino/components/retriever"

type implOptions struct {
	FetchK int
	Lambda *float64
}

// WithFetchK sets the size of the candidate pool the final top-k set is re-ranked from.
func WithFetchK(n int) retriever.Option {
	return retriever.WrapImplSpecificOptFn(func(o *implOptions) {
		o.FetchK = n
	})
}

// WithLambda overrides the relevance/diversity trade-off for one call.
func WithLambda(lambda float64) retriever.Option {
	return retriever.WrapImplSpecificOptFn(func(o *implOptions) {
		o.Lambda = &lambda
	})
}
