// Package relay pumps newline-delimited JSON events into a delivery
// pipeline. Each input line is one event; malformed lines are skipped, an
// optional CEL expression filters events before they enter the pipeline.
//
// Example:
//
//	r, _ := relay.New(pipeline, relay.Options{Filter: `name == "click"`})
//	stats, _ := r.Run(ctx, os.Stdin)
package relay
