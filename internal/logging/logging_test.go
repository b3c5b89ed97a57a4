package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"despensa/internal/config"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/appendblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAppender struct {
	mu        sync.Mutex
	createErr error
	creates   int
	blocks    []string
}

func (f *fakeAppender) Create(ctx context.Context, o *appendblob.CreateOptions) (appendblob.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	return appendblob.CreateResponse{}, f.createErr
}

func (f *fakeAppender) AppendBlock(ctx context.Context, body io.ReadSeekCloser, o *appendblob.AppendBlockOptions) (appendblob.AppendBlockResponse, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return appendblob.AppendBlockResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = append(f.blocks, string(b))
	return appendblob.AppendBlockResponse{}, nil
}

func (f *fakeAppender) joined() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.blocks, "")
}

func TestBlobSinkFlushesOnClose(t *testing.T) {
	ab := &fakeAppender{}
	sink, err := newBlobSink(t.Context(), ab, BlobSinkConfig{FlushEvery: time.Hour, Level: slog.LevelInfo})
	require.NoError(t, err)

	logger := slog.New(sink).With("component", "cart")
	logger.Info("added recipe to cart", "recipe", "r1")
	logger.Debug("not written")
	require.NoError(t, sink.Close())

	lines := strings.Split(strings.TrimSpace(ab.joined()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "added recipe to cart", rec["msg"])
	assert.Equal(t, "cart", rec["component"])
	assert.Equal(t, "r1", rec["recipe"])

	logger.Info("after close")
	assert.NotContains(t, ab.joined(), "after close")
	assert.NoError(t, sink.Close(), "close twice")
}

func TestBlobSinkFlushesPeriodically(t *testing.T) {
	ab := &fakeAppender{}
	sink, err := newBlobSink(t.Context(), ab, BlobSinkConfig{FlushEvery: 5 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	slog.New(sink).Warn("low stock", "item", "Tomate")
	assert.Eventually(t, func() bool {
		return strings.Contains(ab.joined(), "low stock")
	}, time.Second, 5*time.Millisecond)
}

func TestBlobSinkExistingBlob(t *testing.T) {
	exists := &azcore.ResponseError{ErrorCode: "BlobAlreadyExists", StatusCode: 409}
	sink, err := newBlobSink(t.Context(), &fakeAppender{createErr: exists}, BlobSinkConfig{})
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	_, err = newBlobSink(t.Context(), &fakeAppender{createErr: errors.New("forbidden")}, BlobSinkConfig{})
	assert.Error(t, err)
}

func TestNewBlobSinkRequiresAccount(t *testing.T) {
	_, err := NewBlobSink(t.Context(), BlobSinkConfig{Container: "logs"})
	assert.Error(t, err)
}

type recordingHandler struct {
	level   slog.Level
	records *[]string
	attrs   []slog.Attr
}

func (h recordingHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }

func (h recordingHandler) Handle(_ context.Context, r slog.Record) error {
	var b bytes.Buffer
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		b.WriteString(" " + a.String())
	}
	*h.records = append(*h.records, b.String())
	return nil
}

func (h recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return h
}

func (h recordingHandler) WithGroup(string) slog.Handler { return h }

func TestFanoutRespectsEachLevel(t *testing.T) {
	var debug, warn []string
	logger := slog.New(fanout{
		recordingHandler{level: slog.LevelDebug, records: &debug},
		recordingHandler{level: slog.LevelWarn, records: &warn},
	}).With("store", "selection")

	logger.Debug("loaded")
	logger.Warn("corrupt document")

	assert.Equal(t, []string{"loaded store=selection", "corrupt document store=selection"}, debug)
	assert.Equal(t, []string{"corrupt document store=selection"}, warn)
}

func TestSetupDefaults(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var out bytes.Buffer
	shutdown, err := setup(t.Context(), &config.Config{Telemetry: config.TelemetryConfig{Level: "warn"}}, &out)
	require.NoError(t, err)
	defer func() { assert.NoError(t, shutdown(t.Context())) }()

	slog.Info("hidden")
	slog.Warn("shown", "cart", 2)
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "msg=shown cart=2")
}

func TestSetupRejectsBadLevel(t *testing.T) {
	shutdown, err := setup(t.Context(), &config.Config{Telemetry: config.TelemetryConfig{Level: "loud"}}, io.Discard)
	assert.Error(t, err)
	assert.NoError(t, shutdown(t.Context()))
}
