package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const (
	runnerNameKey contextKey = "runner_name"
	keyPrefixKey  contextKey = "key_prefix"
	adminKey      contextKey = "admin"
)

func SetRunnerName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, runnerNameKey, name)
}

// GetRunnerName returns the authenticated runner identity set by Authenticate.
func GetRunnerName(r *http.Request) (string, bool) {
	name, ok := r.Context().Value(runnerNameKey).(string)
	return name, ok
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

func setAdmin(ctx context.Context, admin bool) context.Context {
	return context.WithValue(ctx, adminKey, admin)
}

func isAdmin(r *http.Request) bool {
	admin, _ := r.Context().Value(adminKey).(bool)
	return admin
}
