package logging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/appendblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// DateFolderFormat lays log blobs out as logs/YYYY/MM/DD/.
const DateFolderFormat = "logs/%d/%02d/%02d"

// flushAt stays well below the 4 MiB append block limit.
const flushAt = 1 << 20

type BlobSinkConfig struct {
	AccountName string
	AccountKey  string
	Container   string
	// BlobName defaults to the hostname under today's date folder.
	BlobName   string
	FlushEvery time.Duration
	Level      slog.Leveler
}

type appender interface {
	Create(ctx context.Context, o *appendblob.CreateOptions) (appendblob.CreateResponse, error)
	AppendBlock(ctx context.Context, body io.ReadSeekCloser, o *appendblob.AppendBlockOptions) (appendblob.AppendBlockResponse, error)
}

// BlobSink writes JSON log lines into an append blob, batched every
// FlushEvery.
type BlobSink struct {
	slog.Handler
	w *blobWriter
}

func NewBlobSink(ctx context.Context, cfg BlobSinkConfig) (*BlobSink, error) {
	if cfg.AccountName == "" || cfg.AccountKey == "" || cfg.Container == "" {
		return nil, errors.New("account name, account key and container are required")
	}
	if cfg.BlobName == "" {
		host, _ := os.Hostname()
		now := time.Now().UTC()
		cfg.BlobName = fmt.Sprintf(DateFolderFormat, now.Year(), int(now.Month()), now.Day()) + "/" + host + ".jsonl"
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, err
	}
	// BlobName may contain slashes and is not escaped.
	blobURL := "https://" + cfg.AccountName + ".blob.core.windows.net/" + url.PathEscape(cfg.Container) + "/" + cfg.BlobName
	ab, err := appendblob.NewClientWithSharedKeyCredential(blobURL, cred, nil)
	if err != nil {
		return nil, err
	}
	return newBlobSink(ctx, ab, cfg)
}

func newBlobSink(ctx context.Context, ab appender, cfg BlobSinkConfig) (*BlobSink, error) {
	_, err := ab.Create(ctx, &appendblob.CreateOptions{
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: to.Ptr(azcore.ETagAny)},
		},
	})
	if err != nil && !bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
		return nil, fmt.Errorf("create log blob: %w", err)
	}

	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 2 * time.Second
	}
	w := newBlobWriter(ab, cfg.FlushEvery)
	return &BlobSink{
		Handler: slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.Level}),
		w:       w,
	}, nil
}

// Close flushes pending lines. Records handled after Close are dropped.
func (s *BlobSink) Close() error {
	s.w.Close()
	return nil
}

type blobWriter struct {
	ab         appender
	flushEvery time.Duration

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool

	kick      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newBlobWriter(ab appender, flushEvery time.Duration) *blobWriter {
	w := &blobWriter{
		ab:         ab,
		flushEvery: flushEvery,
		kick:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *blobWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return len(p), nil
	}
	w.buf.Write(p)
	full := w.buf.Len() >= flushAt
	w.mu.Unlock()

	if full {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

func (w *blobWriter) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.flush()
		case <-w.kick:
			w.flush()
		case <-w.done:
			w.flush()
			return
		}
	}
}

func (w *blobWriter) flush() {
	w.mu.Lock()
	if w.buf.Len() == 0 {
		w.mu.Unlock()
		return
	}
	data := bytes.Clone(w.buf.Bytes())
	w.buf.Reset()
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := w.ab.AppendBlock(ctx, streaming.NopCloser(bytes.NewReader(data)), nil); err != nil {
		// slog would feed back into this writer
		fmt.Fprintf(os.Stderr, "failed to append %d bytes of logs: %v\n", len(data), err)
	}
}

func (w *blobWriter) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
	})
}
