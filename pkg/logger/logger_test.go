package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captured(t *testing.T, opts Options) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	opts.ServiceName = "carrental-test"
	opts.Output = buf
	return New(opts), buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestErrorEntryCarriesScopedFields(t *testing.T) {
	log, buf := captured(t, Options{Level: zerolog.DebugLevel})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithReservationID(ctx, "res-1")
	ctx = log.WithPaymentID(ctx, "pay-9")
	log.Error(ctx, "reconcile failed", errors.New("stripe timeout"))

	entry := lastEntry(t, buf)
	assert.Equal(t, "carrental-test", entry["service"])
	assert.Equal(t, "req-123", entry[FieldRequestID])
	assert.Equal(t, "res-1", entry[FieldReservationID])
	assert.Equal(t, "pay-9", entry[FieldPaymentID])
	assert.Equal(t, "stripe timeout", entry["error"])
	assert.NotEmpty(t, entry["stack"])
}

func TestWarnStackIsOptIn(t *testing.T) {
	for _, withStack := range []bool{false, true} {
		log, buf := captured(t, Options{WarnStack: withStack})
		log.Warn(context.Background(), "pending charge is stale")

		_, hasStack := lastEntry(t, buf)["stack"]
		assert.Equal(t, withStack, hasStack)
	}
}

func TestDefaultLevelDropsDebug(t *testing.T) {
	log, buf := captured(t, Options{})
	log.Debug(context.Background(), "quiet")
	assert.Zero(t, buf.Len())

	log.Info(context.Background(), "root logger used without scoped fields")
	assert.Equal(t, "info", lastEntry(t, buf)["level"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"invalid": zerolog.InfoLevel,
		" WARN ":  zerolog.WarnLevel,
		"debug":   zerolog.DebugLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}
