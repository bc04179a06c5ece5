package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/flare/internal/archive"
	cfgpkg "github.com/rzbill/flare/internal/config"
	"github.com/rzbill/flare/pkg/id"
	"github.com/rzbill/flare/pkg/log"
	"github.com/rzbill/flare/pkg/metrics"
	pebblestore "github.com/rzbill/flare/pkg/storage/pebble"
)

// ErrBadPayload marks payloads the collector refuses: not JSON, wrong shape,
// or an empty batch.
var ErrBadPayload = errors.New("collector: bad payload")

// MaxPayloadBytes bounds a single ingested batch.
const MaxPayloadBytes = 5 << 20

// Options for building the Collector.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        log.Logger
	Metrics       *metrics.Metrics
}

// Collector owns the ingest path for a single-node instance.
type Collector struct {
	db      *pebblestore.DB
	archive *archive.Archive
	config  cfgpkg.Config
	logger  log.Logger
	metrics *metrics.Metrics
}

// Open initializes the underlying storage and archive and starts the
// retention sweeper when the archive is enabled.
func Open(opts Options) (*Collector, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	c := &Collector{
		db:      db,
		archive: archive.Open(db, logger, opts.Metrics),
		config:  opts.Config,
		logger:  logger.WithComponent("collector"),
		metrics: opts.Metrics,
	}

	ac := opts.Config.Archive
	if ac.Enabled {
		c.archive.StartSweeper(
			time.Duration(ac.SweepIntervalMs)*time.Millisecond,
			time.Duration(ac.MaxAgeMs)*time.Millisecond,
			ac.MaxBytes,
		)
	}
	return c, nil
}

// Close stops the sweeper and closes underlying resources.
func (c *Collector) Close() error {
	if c.db == nil {
		return nil
	}
	c.archive.StopSweeper()
	return c.db.Close()
}

// CheckHealth performs a simple storage probe.
func (c *Collector) CheckHealth(ctx context.Context) error {
	if c.db == nil {
		return errors.New("db not open")
	}
	it, err := c.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// batchShape is the minimal structure an ingested payload must have. Events
// are kept raw: the collector archives what it received, it does not
// re-serialize.
type batchShape struct {
	Events []json.RawMessage `json:"events"`
}

// Ingest validates and archives one batch payload. receivedAt stamps the
// archive entry. Returns the assigned archive ID and the event count.
func (c *Collector) Ingest(ctx context.Context, payload []byte, receivedAt int64) (id.ID, int, error) {
	if len(payload) == 0 || len(payload) > MaxPayloadBytes {
		return id.ID{}, 0, fmt.Errorf("%w: %d bytes", ErrBadPayload, len(payload))
	}
	var shape batchShape
	if err := json.Unmarshal(payload, &shape); err != nil {
		return id.ID{}, 0, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if len(shape.Events) == 0 {
		return id.ID{}, 0, fmt.Errorf("%w: empty batch", ErrBadPayload)
	}

	var rid id.ID
	if c.config.Archive.Enabled {
		ids, err := c.archive.Append(ctx, []archive.Record{{
			ReceivedAt: receivedAt,
			Events:     len(shape.Events),
			Payload:    payload,
		}})
		if err != nil {
			return id.ID{}, 0, err
		}
		rid = ids[0]
	}

	c.metrics.AddIngested(1, len(shape.Events))
	c.logger.Debug("batch ingested",
		log.Str("id", rid.String()), log.Int("events", len(shape.Events)), log.Int("bytes", len(payload)))
	return rid, len(shape.Events), nil
}

// Archive exposes the ingest archive for tailing and stats.
func (c *Collector) Archive() *archive.Archive { return c.archive }

// DB exposes the underlying DB for advanced operations (internal use only).
func (c *Collector) DB() *pebblestore.DB { return c.db }

// Config returns the collector configuration.
func (c *Collector) Config() cfgpkg.Config { return c.config }
