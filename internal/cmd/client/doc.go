// Package client provides the `flare` command-line client.
//
// The CLI feeds events into a collector and inspects what a pipeline run
// left behind. It is primarily intended for developers and operators.
//
// Installation
//
//	go install github.com/rzbill/flare/cmd/flare@latest
//
// Or build from this repo and use the embedded `flare` binary.
//
// # Address configuration
//
// The collector base URL is read from the FLARE_ENDPOINT environment
// variable (default http://127.0.0.1:8787), the client key from
// FLARE_SDK_KEY. Every command also accepts --endpoint and --sdk-key.
//
// Usage
//
//	# Pump NDJSON events from stdin into a collector
//	some-producer | flare relay --endpoint http://127.0.0.1:8787
//
//	# Keep undelivered batches on disk and replay them on the next run
//	some-producer | flare relay --data-dir ~/.flare
//
//	# Only forward matching events
//	flare relay --input events.ndjson --filter 'name == "purchase" && metadata.env == "prod"'
//
//	# One-shot event
//	flare send --name click --value 3 --meta page=home --user-id u-1
//
//	# Inspect and drain the persisted failure spool
//	flare spool list --data-dir ~/.flare
//	flare spool replay --data-dir ~/.flare --endpoint http://127.0.0.1:8787
//	flare spool clear --data-dir ~/.flare --confirm
//
//	# Read a collector archive directly from disk
//	flare tail --data-dir ./data --limit 10 --reverse
//
// Notes
//
//   - relay reads one JSON event per line: {"name":...,"value":...,
//     "metadata":{...},"user":{...},"time":...}. Only name is required.
//     Malformed lines are skipped and counted.
//   - The CEL filter sees name, value, metadata, user_id, ts_ms and
//     now_ms. Events it rejects never enter the pipeline.
//   - spool and tail open the Pebble store directly, so they must not
//     race a running pipeline or collector on the same directory.
package client
