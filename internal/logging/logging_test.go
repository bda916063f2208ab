package logging

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	t.Run("json output", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, slog.LevelInfo, "json")
		logger.Info("hello", slog.String("k", "v"))

		assert.Contains(t, buf.String(), `"msg":"hello"`)
		assert.Contains(t, buf.String(), `"k":"v"`)
	})

	t.Run("text output", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, slog.LevelInfo, "TEXT")
		logger.Info("hello")

		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("level filters debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, slog.LevelWarn, "json")
		logger.Info("dropped")

		assert.Empty(t, buf.String())
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestLogHelpers(t *testing.T) {
	t.Run("LogError", func(t *testing.T) {
		var buf bytes.Buffer
		LogError(New(&buf, slog.LevelInfo, "json"), "upstream failed", assert.AnError, slog.String("component", "bkk"))

		out := buf.String()
		assert.Contains(t, out, `"level":"ERROR"`)
		assert.Contains(t, out, `"msg":"upstream failed"`)
		assert.Contains(t, out, `"component":"bkk"`)
	})

	t.Run("LogOperation drops zero duration", func(t *testing.T) {
		var buf bytes.Buffer
		LogOperation(New(&buf, slog.LevelInfo, "json"), "cache_cleared", slog.Duration("duration", 0), slog.Int("entries", 3))

		out := buf.String()
		assert.Contains(t, out, `"entries":3`)
		assert.NotContains(t, out, `"duration"`)
	})

	t.Run("LogHTTPRequest escalates server errors", func(t *testing.T) {
		var buf bytes.Buffer
		LogHTTPRequest(New(&buf, slog.LevelInfo, "json"), "GET", "/api/places", 503, 15*time.Millisecond)

		out := buf.String()
		assert.Contains(t, out, `"level":"ERROR"`)
		assert.Contains(t, out, `"status":503`)
		assert.Contains(t, out, `"duration_ms":15`)
	})

	t.Run("nil logger is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogError(nil, "x", assert.AnError)
			LogOperation(nil, "x")
			LogHTTPRequest(nil, "GET", "/", 200, 0)
		})
	})
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, "json")

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

type failingCloser struct{ err error }

func (c *failingCloser) Close() error { return c.err }

type fakeTx struct{ err error }

func (tx *fakeTx) Rollback() error { return tx.err }

func TestSafeCleanup(t *testing.T) {
	t.Run("close failure is logged", func(t *testing.T) {
		var buf bytes.Buffer
		SafeCloseWithLogging(&failingCloser{err: assert.AnError}, New(&buf, slog.LevelInfo, "json"), "close_db")

		assert.Contains(t, buf.String(), `"operation":"close_db"`)
	})

	t.Run("rollback after commit is silent", func(t *testing.T) {
		var buf bytes.Buffer
		SafeRollbackWithLogging(&fakeTx{err: sql.ErrTxDone}, New(&buf, slog.LevelInfo, "json"), "create_place")

		assert.Empty(t, buf.String())
	})

	t.Run("rollback failure is logged", func(t *testing.T) {
		var buf bytes.Buffer
		SafeRollbackWithLogging(&fakeTx{err: assert.AnError}, New(&buf, slog.LevelInfo, "json"), "create_place")

		assert.Contains(t, buf.String(), `"msg":"failed to rollback transaction"`)
	})
}
