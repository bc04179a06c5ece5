package client

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rzbill/flare/pkg/lifecycle"
	logpkg "github.com/rzbill/flare/pkg/log"
	"github.com/rzbill/flare/pkg/logger"
	"github.com/rzbill/flare/pkg/storage"
	pebblestore "github.com/rzbill/flare/pkg/storage/pebble"
	"github.com/rzbill/flare/pkg/transport"
)

// pipelineOptions carries the flags shared by commands that deliver events.
type pipelineOptions struct {
	endpoint string
	sdkKey   string
	dataDir  string
	flushMs  int64
	maxBuf   int
	headless bool
}

// openPipeline builds an EventLogger backed by an HTTP transport. When a data
// dir is given the spool persists to Pebble there, so a later run replays
// what this one could not deliver. The returned close func shuts the pipeline
// down and releases the store.
func openPipeline(po pipelineOptions, lg logpkg.Logger, lc lifecycle.Source) (*logger.EventLogger, func(context.Context) error, error) {
	tr := transport.NewHTTP(transport.HTTPOptions{Endpoint: po.endpoint, SDKKey: po.sdkKey})

	var store storage.Store
	var closeDB func() error
	if po.dataDir != "" {
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir: filepath.Join(po.dataDir, "store"),
			Fsync:   pebblestore.FsyncModeAlways,
		})
		if err != nil {
			return nil, nil, err
		}
		store = pebblestore.NewKV(db)
		closeDB = db.Close
	}

	l, err := logger.New(logger.Options{
		Transport:     tr,
		Store:         store,
		Lifecycle:     lc,
		Logger:        lg,
		Headless:      po.headless,
		MaxBufferSize: po.maxBuf,
		FlushInterval: time.Duration(po.flushMs) * time.Millisecond,
	})
	if err != nil {
		if closeDB != nil {
			_ = closeDB()
		}
		return nil, nil, err
	}
	l.Start()

	closeFn := func(ctx context.Context) error {
		err := l.Shutdown(ctx)
		if closeDB != nil {
			if cerr := closeDB(); err == nil {
				err = cerr
			}
		}
		return err
	}
	return l, closeFn, nil
}
