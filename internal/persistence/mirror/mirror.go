// Package mirror copies finished archive files from the data directory to an
// S3-compatible bucket in the background.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Stats is a point-in-time view of the upload pipeline.
type Stats struct {
	Pending    int
	Capacity   int
	Accepted   uint64
	Saturated  uint64
	Dropped    uint64
	Skipped    uint64
	Uploaded   uint64
	Failed     uint64
	Retries    uint64
	LastUpload time.Time
}

type Options struct {
	Bucket  string
	DataDir string
	Prefix  string
	Workers int
	// QueueCapacity bounds the number of archives waiting for a worker.
	QueueCapacity int
	// EnqueueWait is how long Enqueue blocks on a full queue before dropping.
	EnqueueWait time.Duration
	MaxAttempts int
	PutTimeout  time.Duration
	// Backoff returns the pause after failed attempt n; defaults to n²×200ms.
	Backoff func(attempt int) time.Duration
	Logger  *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 2048
	}
	if o.EnqueueWait <= 0 {
		o.EnqueueWait = 25 * time.Millisecond
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 4
	}
	if o.PutTimeout <= 0 {
		o.PutTimeout = 2 * time.Minute
	}
	if o.Backoff == nil {
		o.Backoff = func(n int) time.Duration { return time.Duration(n*n) * 200 * time.Millisecond }
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	o.Prefix = strings.Trim(filepath.ToSlash(o.Prefix), "/")
}

type upload struct {
	local string
	key   string
}

// Mirror uploads archive files handed to Enqueue. A nil *Mirror accepts every
// call and does nothing, so callers need no enabled check.
type Mirror struct {
	client S3Client
	opts   Options
	log    *zap.Logger

	queue     chan upload
	wg        sync.WaitGroup
	closeOnce sync.Once

	accepted, saturated, dropped atomic.Uint64
	skipped, uploaded, failed    atomic.Uint64
	retries                      atomic.Uint64
	lastUpload                   atomic.Int64
}

func New(client S3Client, opts Options) *Mirror {
	opts.applyDefaults()
	m := &Mirror{
		client: client,
		opts:   opts,
		log:    opts.Logger.Named("mirror"),
		queue:  make(chan upload, opts.QueueCapacity),
	}
	m.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go m.worker()
	}
	return m
}

func (m *Mirror) worker() {
	defer m.wg.Done()
	for u := range m.queue {
		m.push(u)
	}
}

// Enqueue schedules a finished archive for upload. Files outside the data
// directory are skipped. When the queue stays full for EnqueueWait the file
// is dropped; it remains on local disk.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil || m.client == nil {
		return
	}
	key, err := m.objectKey(localPath)
	if err != nil {
		m.skipped.Add(1)
		m.log.Warn("skip archive", zap.String("local", localPath), zap.Error(err))
		return
	}
	u := upload{local: localPath, key: key}
	m.accepted.Add(1)

	select {
	case m.queue <- u:
		return
	default:
		m.saturated.Add(1)
	}
	t := time.NewTimer(m.opts.EnqueueWait)
	defer t.Stop()
	select {
	case m.queue <- u:
	case <-t.C:
		m.dropped.Add(1)
		m.log.Warn("mirror queue saturated, archive not uploaded",
			zap.String("local", localPath), zap.Duration("waited", m.opts.EnqueueWait))
	}
}

// Close stops accepting work and waits for queued uploads to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.closeOnce.Do(func() {
		close(m.queue)
		m.wg.Wait()
	})
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	st := Stats{
		Pending:   len(m.queue),
		Capacity:  cap(m.queue),
		Accepted:  m.accepted.Load(),
		Saturated: m.saturated.Load(),
		Dropped:   m.dropped.Load(),
		Skipped:   m.skipped.Load(),
		Uploaded:  m.uploaded.Load(),
		Failed:    m.failed.Load(),
		Retries:   m.retries.Load(),
	}
	if ns := m.lastUpload.Load(); ns != 0 {
		st.LastUpload = time.Unix(0, ns).UTC()
	}
	return st
}

func (m *Mirror) push(u upload) {
	var err error
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.PutTimeout)
		err = putFile(ctx, m.client, m.opts.Bucket, u.key, u.local)
		cancel()
		if err == nil || permanent(err) || attempt >= m.opts.MaxAttempts {
			break
		}
		m.retries.Add(1)
		time.Sleep(m.opts.Backoff(attempt))
	}
	if err != nil {
		m.failed.Add(1)
		m.log.Error("archive upload failed", zap.String("key", u.key), zap.Error(err))
		return
	}
	m.uploaded.Add(1)
	m.lastUpload.Store(time.Now().UnixNano())
	m.log.Debug("archive uploaded", zap.String("key", u.key))
}

// objectKey keeps the archive's path relative to the data directory, so
// activity/activity-2026-01-01-00.jsonl.zst lands under <prefix>/activity/.
func (m *Mirror) objectKey(localPath string) (string, error) {
	if localPath == "" {
		return "", errors.New("empty archive path")
	}
	base, err := filepath.Abs(m.opts.DataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("archive %s is outside data dir %s", abs, base)
	}
	return path.Join(m.opts.Prefix, rel), nil
}
