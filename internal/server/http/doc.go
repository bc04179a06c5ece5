// Package httpserver provides the collector's HTTP surface: batch ingest,
// the teardown beacon, an SSE tail of the archive, health, and metrics.
//
// Example:
//
//	col, _ := collector.Open(collector.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := httpserver.New(col, logger, httpserver.Options{})
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8787")
package httpserver
