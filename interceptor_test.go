package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		lines = append(lines, m)
	}
	return lines
}

func TestLogging(t *testing.T) {
	ctx := context.Background()

	t.Run("logs start and completion", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		cfg := static("/a", "ok", WithInterceptors(Logging(logger)))
		inv := NewInvocation("", cfg, nil, nil)

		result, err := inv.Dispatch(ctx)

		require.NoError(t, err)
		assert.Equal(t, "ok", result)

		lines := logLines(t, &buf)
		require.Len(t, lines, 2)
		assert.Equal(t, "invocation started", lines[0]["msg"])
		assert.Equal(t, "DEBUG", lines[0]["level"])
		assert.Equal(t, "/a", lines[0]["path"])
		assert.Equal(t, inv.ID(), lines[0]["invocation"])
		assert.Equal(t, "invocation completed", lines[1]["msg"])
		assert.Equal(t, true, lines[1]["executed"])
	})

	t.Run("logs failure", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		cfg := MustHandlerConfig("/fail", MustMethod((*helloHandler).Fail), WithInterceptors(Logging(logger)))
		inv := NewInvocation("", cfg, &helloHandler{}, nil)

		_, err := inv.Dispatch(ctx)

		assert.Same(t, errBoom, err)
		lines := logLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "invocation failed", lines[0]["msg"])
		assert.Equal(t, "boom", lines[0]["error"])
	})

	t.Run("includes the previous invocation", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		first := NewInvocation("", static("/a", "chain:/b"), nil, nil)
		second := NewInvocation("", static("/b", "ok", WithInterceptors(Logging(logger))), nil, nil,
			WithPrevious(first))

		_, err := second.Dispatch(ctx)

		require.NoError(t, err)
		lines := logLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, first.ID(), lines[0]["previous"])
	})

	t.Run("nil logger uses default", func(t *testing.T) {
		inv := NewInvocation("", static("/a", "ok", WithInterceptors(Logging(nil))), nil, nil)

		result, err := inv.Dispatch(ctx)

		require.NoError(t, err)
		assert.Equal(t, "ok", result)
	})
}

func TestGuard(t *testing.T) {
	allowed := func(_ context.Context, inv *Invocation) bool {
		return inv.Request() != nil && inv.Request().Header["Authorization"] != ""
	}

	tests := []struct {
		name     string
		req      *Request
		want     any
		executed bool
	}{
		{"no request", nil, "denied", false},
		{"missing header", &Request{}, "denied", false},
		{"authorized", &Request{Header: map[string]string{"Authorization": "x"}}, "ok", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := NewInvocation("", static("/a", "ok", WithInterceptors(Guard(allowed, "denied"))), nil, nil,
				WithRequest(tt.req))

			result, err := inv.Dispatch(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
			assert.Equal(t, tt.executed, inv.Executed())
		})
	}
}
