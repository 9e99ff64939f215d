package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologAdapterFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapterWithWriter(&buf)

	logger.Info("chunk fetched",
		String("path", "/data/a.jsonl"),
		Int("index", 3),
		Duration("took", 2*time.Millisecond),
		Err(errors.New("boom")),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "chunk fetched", entry["message"])
	assert.Equal(t, "/data/a.jsonl", entry["path"])
	assert.EqualValues(t, 3, entry["index"])
	assert.Equal(t, "boom", entry["error"])
}

func TestWith(t *testing.T) {
	t.Run("zerolog child logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := With(NewZerologAdapterWithWriter(&buf), String("component", "relay"))

		logger.Warn("closed")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "relay", entry["component"])
	})

	t.Run("wraps custom logger", func(t *testing.T) {
		rec := &recordingLogger{}
		logger := With(With(rec, String("a", "1")), String("b", "2"))

		logger.Error("x", Int("c", 3))

		require.Len(t, rec.fields, 3)
		assert.Equal(t, "a", rec.fields[0].Key)
		assert.Equal(t, "b", rec.fields[1].Key)
		assert.Equal(t, "c", rec.fields[2].Key)
	})

	t.Run("nil logger", func(t *testing.T) {
		assert.NotPanics(t, func() { With(nil).Info("ignored") })
	})
}

type recordingLogger struct {
	NoopLogger
	fields []Field
}

func (r *recordingLogger) Error(msg string, fields ...Field) { r.fields = fields }
