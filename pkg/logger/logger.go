// Package logger implements the outbound event pipeline: an in-memory queue
// with size- and time-triggered flush, exposure dedup, best-effort delivery
// with retry and a beacon fallback at teardown, and a bounded spool for
// failed batches persisted across restarts and replayed once.
package logger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rzbill/flare/pkg/dedup"
	"github.com/rzbill/flare/pkg/event"
	"github.com/rzbill/flare/pkg/id"
	"github.com/rzbill/flare/pkg/lifecycle"
	"github.com/rzbill/flare/pkg/log"
	"github.com/rzbill/flare/pkg/metadata"
	"github.com/rzbill/flare/pkg/metrics"
	"github.com/rzbill/flare/pkg/storage"
	"github.com/rzbill/flare/pkg/storage/memory"
	"github.com/rzbill/flare/pkg/transport"
)

// Defaults. All overridable through Options.
const (
	DefaultMaxBufferSize  = 50
	DefaultFlushInterval  = 10 * time.Second
	DefaultSpoolBatches   = 100
	DefaultSpoolEvents    = 1000
	DefaultSpoolAge       = 5 * 24 * time.Hour
	DefaultPersistCeiling = 1 << 20
	DefaultReplayForget   = 1 << 20
	DefaultShutdownGrace  = time.Second

	// SpoolKey is the fixed substrate key the spool persists under.
	SpoolKey = "flare/spool/v1"
)

// defaultWarmups are the post-start one-shot flush delays.
var defaultWarmups = []time.Duration{200 * time.Millisecond, time.Second}

var errNoTransport = errors.New("logger: Options.Transport is required")

// Options configures an EventLogger.
type Options struct {
	// Transport delivers batches. Required.
	Transport transport.Transport
	// Store is the durable substrate for the spool and stable ID. Nil means
	// an in-memory store: the pipeline works, persistence does not survive
	// the process.
	Store storage.Store
	// Lifecycle supplies flush-forcing application signals. Optional.
	Lifecycle lifecycle.Source
	// Metadata stamps every outgoing batch. Nil builds a provider over Store.
	Metadata *metadata.Provider
	// Logger receives pipeline diagnostics. Nil discards them.
	Logger log.Logger
	// Metrics counts pipeline activity. Nil disables counting.
	Metrics *metrics.Metrics

	// PageContext optionally supplies the current page/location, attached to
	// events at enqueue. Absence (ok=false) is a normal case, never an error.
	PageContext func() (string, bool)

	// Headless disables the flush ticker and warm-up flushes for
	// environments where timed flushes would never be observed. Size, manual
	// and lifecycle-signal flushes still work.
	Headless bool

	MaxBufferSize int
	FlushInterval time.Duration
	// WarmupDelays overrides the two post-start one-shot flushes.
	WarmupDelays []time.Duration
	// DedupWindow is the exposure suppression window.
	DedupWindow time.Duration
	// RetryPolicy bounds normal-path delivery. Zero means the default three
	// fixed-backoff attempts; FLARE_BACKOFF_* environment overrides apply.
	RetryPolicy transport.RetryPolicy

	SpoolMaxBatches int
	SpoolMaxEvents  int
	// SpoolMaxAge is the retry-eligibility window for failed batches.
	SpoolMaxAge time.Duration
	// PersistCeilingBytes bounds the serialized spool; above it everything
	// is dropped and nothing is written.
	PersistCeilingBytes int
	// ReplayForgetBytes degrades startup replay to fire-and-forget above
	// this persisted payload size. Independent of PersistCeilingBytes even
	// though the defaults match.
	ReplayForgetBytes int
	// ShutdownGrace bounds the wait for in-flight deliveries at shutdown.
	ShutdownGrace time.Duration
}

func (o *Options) normalize() error {
	if o.Transport == nil {
		return errNoTransport
	}
	if o.Store == nil {
		o.Store = memory.New()
	}
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
	if o.Metadata == nil {
		o.Metadata = metadata.NewProvider(metadata.Options{Store: o.Store})
	}
	if o.MaxBufferSize <= 0 {
		o.MaxBufferSize = DefaultMaxBufferSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.WarmupDelays == nil {
		o.WarmupDelays = defaultWarmups
	}
	if o.RetryPolicy == (transport.RetryPolicy{}) {
		o.RetryPolicy = transport.DefaultRetryPolicy()
	}
	o.RetryPolicy = o.RetryPolicy.WithEnvOverrides()
	if o.SpoolMaxBatches <= 0 {
		o.SpoolMaxBatches = DefaultSpoolBatches
	}
	if o.SpoolMaxEvents <= 0 {
		o.SpoolMaxEvents = DefaultSpoolEvents
	}
	if o.SpoolMaxAge <= 0 {
		o.SpoolMaxAge = DefaultSpoolAge
	}
	if o.PersistCeilingBytes <= 0 {
		o.PersistCeilingBytes = DefaultPersistCeiling
	}
	if o.ReplayForgetBytes <= 0 {
		o.ReplayForgetBytes = DefaultReplayForget
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = DefaultShutdownGrace
	}
	return nil
}

// EventLogger is the pipeline entry point. All exported methods are safe for
// concurrent use and never return delivery errors to the caller: logging must
// never interrupt host application control flow.
type EventLogger struct {
	opts    Options
	logger  log.Logger
	metrics *metrics.Metrics
	dedup   *dedup.Filter
	spool   *spool
	sched   *scheduler
	ids     *id.Generator
	nowMs   func() int64

	mu       sync.Mutex
	queue    []event.Event
	started  bool
	stopping bool
	shut     bool
	reported map[string]bool

	inflight        sync.WaitGroup
	cancelLifecycle func()
}

// New creates a stopped pipeline. Call Start to begin replay and timers.
func New(opts Options) (*EventLogger, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	logger := opts.Logger.WithComponent("logger")
	l := &EventLogger{
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
		dedup:   dedup.New(opts.DedupWindow),
		sched:   newScheduler(opts.FlushInterval, opts.WarmupDelays),
		ids:     id.NewGenerator(),
		nowMs:   func() int64 { return time.Now().UnixMilli() },
		spool: newSpool(opts.Store, SpoolKey, opts.SpoolMaxBatches, opts.SpoolMaxEvents,
			opts.SpoolMaxAge, opts.PersistCeilingBytes, logger, opts.Metrics),
	}
	l.spool.nowMs = func() int64 { return l.nowMs() }
	return l, nil
}

// Start replays the persisted spool once, subscribes to lifecycle signals
// and starts the flush timers. Idempotent.
func (l *EventLogger) Start() {
	l.mu.Lock()
	if l.started || l.stopping {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	if batches, rawLen := l.spool.TakePersisted(); len(batches) > 0 {
		l.inflight.Add(1)
		go func() {
			defer l.inflight.Done()
			l.replay(batches, rawLen)
		}()
	}

	if !l.opts.Headless {
		l.sched.start(l.Flush)
	}
	if l.opts.Lifecycle != nil {
		l.cancelLifecycle = l.opts.Lifecycle.Subscribe(l.onSignal)
	} else {
		l.sched.armWarmups()
	}
}

// Log appends an event to the outbound queue. Crossing the buffer threshold
// triggers an immediate flush.
func (l *EventLogger) Log(ev event.Event) {
	if l.opts.PageContext != nil {
		if loc, ok := l.opts.PageContext(); ok {
			if ev.Extra == nil {
				ev.Extra = make(map[string]interface{}, 1)
			}
			ev.Extra["currentPage"] = loc
		}
	}

	l.mu.Lock()
	if l.shut {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, ev)
	n := len(l.queue)
	l.mu.Unlock()

	l.metrics.AddEventsLogged(1)
	if n >= l.opts.MaxBufferSize {
		l.Flush()
	}
}

// LogGateExposure logs a feature-gate decision, suppressed inside the dedup
// window.
func (l *EventLogger) LogGateExposure(user *event.User, gate string, value bool, ruleID string, secondary []map[string]string, details event.EvalDetails, manual bool) {
	ev, key := event.NewGateExposure(user, gate, value, ruleID, secondary, details, manual)
	l.logExposure(ev, key)
}

// LogConfigExposure logs a dynamic-config decision, suppressed inside the
// dedup window.
func (l *EventLogger) LogConfigExposure(user *event.User, config, ruleID string, secondary []map[string]string, details event.EvalDetails, manual bool) {
	ev, key := event.NewConfigExposure(user, config, ruleID, secondary, details, manual)
	l.logExposure(ev, key)
}

// LogLayerExposure logs a layer-parameter read, suppressed inside the dedup
// window.
func (l *EventLogger) LogLayerExposure(user *event.User, layer, ruleID, allocatedExperiment, parameter string, isExplicit bool, secondary []map[string]string, details event.EvalDetails, manual bool) {
	ev, key := event.NewLayerExposure(user, layer, ruleID, allocatedExperiment, parameter, isExplicit, secondary, details, manual)
	l.logExposure(ev, key)
}

// LogDefaultValueFallback records that the application fell back to a default
// value. Not deduplicated.
func (l *EventLogger) LogDefaultValueFallback(user *event.User, message string, md map[string]interface{}) {
	l.Log(event.NewDefaultValueFallback(user, message, md))
}

func (l *EventLogger) logExposure(ev event.Event, key string) {
	if !l.dedup.ShouldLog(key) {
		l.metrics.IncEventsDeduped()
		return
	}
	l.Log(ev)
}

// ResetDedupKeys clears exposure dedup state. Call when the evaluated
// identity changes.
func (l *EventLogger) ResetDedupKeys() {
	l.dedup.Reset()
}

// Flush drains the queue and delivers the batch asynchronously. No-op on an
// empty queue and once shutdown has begun, when the terminating path owns
// the queue.
func (l *EventLogger) Flush() {
	l.mu.Lock()
	if l.stopping || len(l.queue) == 0 {
		l.mu.Unlock()
		return
	}
	events := l.queue
	l.queue = nil
	l.inflight.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.inflight.Done()
		l.deliver(Batch{Events: events, Metadata: l.opts.Metadata.Snapshot(), Time: l.nowMs()})
	}()
}

// takeBatch atomically swaps the queue for an empty one. No event can ever
// appear in two batches.
func (l *EventLogger) takeBatch() (Batch, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return Batch{}, false
	}
	events := l.queue
	l.queue = nil
	return Batch{Events: events, Metadata: l.opts.Metadata.Snapshot(), Time: l.nowMs()}, true
}

// deliver runs the normal path: bounded retry, then diagnostics and spool on
// exhaustion.
func (l *EventLogger) deliver(b Batch) {
	payload, err := json.Marshal(b)
	if err != nil {
		l.metrics.AddEventsDropped("marshal", len(b.Events))
		l.reportFailureOnce("marshal_error", err.Error())
		return
	}

	batchID := l.ids.Next().String()
	start := time.Now()
	res, err := l.opts.Transport.Post(context.Background(), payload, transport.PostOptions{Policy: l.opts.RetryPolicy})
	l.metrics.ObserveDelivery(time.Since(start))

	if err == nil && res.OK {
		l.metrics.IncBatchDelivered()
		l.logger.Debug("batch delivered",
			log.Str("batch_id", batchID), log.Int("events", len(b.Events)), log.Int("status", res.Status))
		return
	}

	reason := transport.FailureKey(res, err)
	l.metrics.IncBatchFailed(reason)
	detail := ""
	if res.HasBody {
		detail = res.Body
	} else if err != nil {
		detail = err.Error()
	}
	l.reportFailureOnce(reason, detail)

	b.Time = l.nowMs()
	l.spool.Add(b)
}

// deliverTerminating runs the teardown path synchronously: a keepalive POST
// when the transport supports one, the beacon primitive otherwise, and the
// spool when both are out.
func (l *EventLogger) deliverTerminating(b Batch) {
	payload, err := json.Marshal(b)
	if err != nil {
		l.metrics.AddEventsDropped("marshal", len(b.Events))
		return
	}

	if l.opts.Transport.SupportsKeepalive() {
		res, err := l.opts.Transport.Post(context.Background(), payload,
			transport.PostOptions{Policy: transport.OncePolicy(), Keepalive: true})
		if err == nil && res.OK {
			l.metrics.IncBatchDelivered()
			return
		}
	} else if l.opts.Transport.SendBeacon(payload) {
		l.metrics.IncBatchDelivered()
		return
	}

	b.Time = l.nowMs()
	l.spool.Add(b)
}

// replay re-submits persisted batches exactly once each. Above the forget
// threshold failures are dropped outright; below it they re-enter the spool
// under its normal bounds. The persisted key was already cleared at read
// time.
func (l *EventLogger) replay(batches []Batch, rawLen int) {
	forget := rawLen > l.opts.ReplayForgetBytes
	l.logger.Info("replaying persisted spool",
		log.Int("batches", len(batches)), log.Int("bytes", rawLen), log.Bool("fire_and_forget", forget))

	for _, b := range batches {
		if len(b.Events) == 0 {
			continue
		}
		payload, err := json.Marshal(b)
		if err != nil {
			continue
		}
		res, err := l.opts.Transport.Post(context.Background(), payload,
			transport.PostOptions{Policy: transport.OncePolicy()})
		if err == nil && res.OK {
			l.metrics.IncBatchDelivered()
			continue
		}
		if forget {
			l.metrics.AddEventsDropped("replay", len(b.Events))
			continue
		}
		l.spool.Add(b)
	}
}

// reportFailureOnce emits the delivery-failure diagnostic at most once per
// distinct reason per process lifetime, to avoid feedback loops.
func (l *EventLogger) reportFailureOnce(reason, detail string) {
	l.mu.Lock()
	if l.reported == nil {
		l.reported = make(map[string]bool)
	}
	if l.reported[reason] {
		l.mu.Unlock()
		return
	}
	l.reported[reason] = true
	l.mu.Unlock()

	l.logger.Warn("batch delivery failed", log.Str("reason", reason), log.Str("detail", detail))
	md := map[string]interface{}{"reason": reason}
	if detail != "" {
		md["detail"] = detail
	}
	l.Log(event.New(event.DeliveryFailureName, nil, nil, md))
}

// onSignal reacts to application lifecycle transitions.
func (l *EventLogger) onSignal(sig lifecycle.Signal) {
	if !sig.Terminal() {
		l.sched.armWarmups()
		return
	}
	// Terminal signals: flush synchronously while there is still a chance,
	// sweep anything left, and persist the spool.
	if batch, ok := l.takeBatch(); ok {
		l.deliverTerminating(batch)
	}
	l.spool.Persist()
}

// Shutdown stops the timers, performs a final terminating flush, sweeps any
// residual events into the spool and persists it. The context bounds the
// wait for in-flight deliveries; the substrate write itself always runs.
func (l *EventLogger) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.stopping {
		l.mu.Unlock()
		return nil
	}
	l.stopping = true
	l.mu.Unlock()

	l.sched.stopAll()
	if l.cancelLifecycle != nil {
		l.cancelLifecycle()
		l.cancelLifecycle = nil
	}

	if batch, ok := l.takeBatch(); ok {
		l.deliverTerminating(batch)
	}

	// Give in-flight normal-path deliveries a bounded chance to finish so
	// their failures reach the spool before the final persist.
	done := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-time.After(l.opts.ShutdownGrace):
	case <-ctx.Done():
		err = ctx.Err()
	}

	// Sweep the termination race: enqueues that slipped in after the
	// terminating flush drained the queue. From here Log drops.
	l.mu.Lock()
	l.shut = true
	residual := l.queue
	l.queue = nil
	l.mu.Unlock()
	if len(residual) > 0 {
		l.spool.Add(Batch{Events: residual, Metadata: l.opts.Metadata.Snapshot(), Time: l.nowMs()})
	}

	l.spool.Persist()
	return err
}

// SpoolStats reports the spool's current batch and event counts.
func (l *EventLogger) SpoolStats() (batches, events int) {
	return l.spool.Stats()
}
