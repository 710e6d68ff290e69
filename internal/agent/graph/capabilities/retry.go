package capabilities

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"github.com/sethvargo/go-retry"

	"github.com/handbook-assistant/server/internal/agent/model"
	errx "github.com/handbook-assistant/server/internal/core/error"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

const defaultBackoff = 200 * time.Millisecond

// Policy bounds one capability call: each attempt gets Timeout, failed
// attempts are retried up to Retries times with exponential backoff.
type Policy struct {
	Timeout time.Duration
	Retries uint64
	Backoff time.Duration
}

// PolicyFromConfig maps the env config onto a Policy.
func PolicyFromConfig(cfg model.CapabilityConfig) Policy {
	return Policy{Timeout: cfg.Timeout, Retries: cfg.Retries, Backoff: cfg.Backoff}
}

// Do runs fn under the policy and tags the final error with the capability name.
// Cancellation and deadlines are never retried.
func (p Policy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	base := p.Backoff
	if base <= 0 {
		base = defaultBackoff
	}
	backoff := retry.WithMaxRetries(p.Retries, retry.NewExponential(base))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		callCtx, cancel := p.attemptContext(ctx)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		logx.Warn().
			Err(err).
			Str("capability", name).
			Int("attempt", attempt).
			Msg("capability call failed")
		return retry.RetryableError(err)
	})
	if err != nil {
		logx.Error().Err(err).Str("capability", name).Int("attempts", attempt).Msg("capability exhausted")
		return errx.WrapCapability(name, err)
	}
	return nil
}

func (p Policy) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}

// Option configures a capability.
type Option func(*options)

type options struct {
	policy   Policy
	handlers []callbacks.Handler
}

// WithPolicy sets the timeout and retry policy.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithCallbacks attaches eino callback handlers to every invocation.
func WithCallbacks(handlers ...callbacks.Handler) Option {
	return func(o *options) { o.handlers = append(o.handlers, handlers...) }
}

func newOptions(opts []Option) *options {
	o := &options{policy: Policy{Timeout: 30 * time.Second, Retries: 2, Backoff: defaultBackoff}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) invokeOptions() []compose.Option {
	if len(o.handlers) == 0 {
		return nil
	}
	return []compose.Option{compose.WithCallbacks(o.handlers...)}
}
