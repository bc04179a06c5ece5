// Package collector wires storage, the ingest archive, and config into a
// single-node Flare collector. It exposes Open/Close, batch ingest with
// validation, basic health checks, and access to the archive for tailing.
//
// Example:
//
//	cfg := config.Default()
//	col, _ := collector.Open(collector.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer col.Close()
//	// Health
//	_ = col.CheckHealth(context.Background())
//	// Ingest a batch payload as received from a client
//	_, _, _ = col.Ingest(context.Background(), body, time.Now().UnixMilli())
package collector
