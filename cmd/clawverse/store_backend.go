package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"clawverse.ai/internal/persistence/wikidb"
	"clawverse.ai/internal/persistence/wikikv"
	"clawverse.ai/internal/wiki"
)

// openWikiStore picks the backend from CV_STORE_BACKEND. sink may be nil.
func openWikiStore(dataDir string, sink wiki.ActivitySink, logger *zap.Logger) (wiki.Store, string, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("CV_STORE_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "memory":
		opts := []wiki.MemoryOption{wiki.WithLogger(logger.Named("wiki"))}
		if sink != nil {
			opts = append(opts, wiki.WithActivitySink(sink))
		}
		return wiki.NewMemoryStore(opts...), backend, nil
	case "sqlite":
		opts := []wikidb.Option{wikidb.WithLogger(logger)}
		if sink != nil {
			opts = append(opts, wikidb.WithActivitySink(sink))
		}
		s, err := wikidb.Open(filepath.Join(dataDir, "wiki", "wiki.sqlite"), opts...)
		return s, backend, err
	case "badger":
		s, err := wikikv.Open(wikikv.Options{
			Dir:    filepath.Join(dataDir, "wiki", "badger"),
			Logger: logger,
			Sink:   sink,
		})
		return s, backend, err
	default:
		return nil, backend, fmt.Errorf("unsupported CV_STORE_BACKEND: %s", backend)
	}
}
