package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"clawverse.ai/internal/sim/world"
	"clawverse.ai/internal/wiki"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time
	onClose func(path string)

	mu      sync.Mutex
	curHour string
	curPath string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

type WriterOption func(*JSONLZstdWriter)

func WithClock(now func() time.Time) WriterOption {
	return func(w *JSONLZstdWriter) { w.now = now }
}

// WithOnClose registers a callback that receives each finished file path after
// rotation or Close.
func WithOnClose(fn func(path string)) WriterOption {
	return func(w *JSONLZstdWriter) { w.onClose = fn }
}

func NewJSONLZstdWriter(baseDir, prefix string, opts ...WriterOption) *JSONLZstdWriter {
	w := &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	path, err := w.closeLocked()
	w.mu.Unlock()
	w.finished(path)
	return err
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	var closed string
	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		closed, err = w.rotateLocked(hour)
		if err != nil {
			w.mu.Unlock()
			w.finished(closed)
			return err
		}
	}
	if _, err = w.w.Write(b); err == nil {
		if err = w.w.WriteByte('\n'); err == nil {
			err = w.w.Flush()
		}
	}
	w.mu.Unlock()
	w.finished(closed)
	return err
}

func (w *JSONLZstdWriter) rotateLocked(hour string) (string, error) {
	closed, err := w.closeLocked()
	if err != nil {
		return closed, err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return closed, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return closed, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return closed, err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	w.curPath = path
	return closed, nil
}

func (w *JSONLZstdWriter) closeLocked() (string, error) {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	path := w.curPath
	w.curPath = ""
	w.curHour = ""
	return path, err1
}

func (w *JSONLZstdWriter) finished(path string) {
	if path != "" && w.onClose != nil {
		w.onClose(path)
	}
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// ActivityLogger archives every wiki activity event, beyond the bounded feed.
type ActivityLogger struct{ w *JSONLZstdWriter }

func NewActivityLogger(dataDir string, opts ...WriterOption) *ActivityLogger {
	return &ActivityLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "activity"), "activity", opts...)}
}

func (l *ActivityLogger) WriteActivity(ev wiki.ActivityEvent) error { return l.w.Write(ev) }
func (l *ActivityLogger) Close() error                              { return l.w.Close() }

// DecisionLogger writes one entry per applied agent decision.
type DecisionLogger struct{ w *JSONLZstdWriter }

func NewDecisionLogger(dataDir string, opts ...WriterOption) *DecisionLogger {
	return &DecisionLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "decisions"), "decisions", opts...)}
}

func (l *DecisionLogger) WriteDecision(v world.DecisionLogEntry) error { return l.w.Write(v) }
func (l *DecisionLogger) Close() error                                 { return l.w.Close() }
