package errx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis failures onto AppError. A missing search index is a
// 503 so an unprovisioned handbook is told apart from an outage.
func WrapRedis(err error) error {
	var appErr *AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, redis.Nil):
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	case errors.Is(err, context.DeadlineExceeded):
		return New(err, http.StatusGatewayTimeout, RedisTimeoutMessage)
	case isMissingIndex(err):
		return New(err, http.StatusServiceUnavailable, IndexUnavailableMessage)
	default:
		return New(err, http.StatusBadGateway, RedisErrorMessage)
	}
}

func isMissingIndex(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such index") || strings.Contains(msg, "unknown index name")
}
