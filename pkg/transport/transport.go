// Package transport ships serialized event batches to a collector. It is the
// pipeline's only network boundary: retries, timeouts and the beacon
// primitive all live here, never in the queue or spool.
package transport

import (
	"context"
	"fmt"
)

// Result is the tagged outcome of a POST. HasBody distinguishes "no body" from
// "empty body" so callers never probe a response for optional behavior.
type Result struct {
	OK      bool
	Status  int
	HasBody bool
	Body    string
}

// FailureKey derives the once-per-reason diagnostic key for a failed
// delivery: "network_error" when no response arrived, "status_<code>"
// otherwise.
func FailureKey(res Result, err error) string {
	if err != nil || res.Status == 0 {
		return "network_error"
	}
	return fmt.Sprintf("status_%d", res.Status)
}

// PostOptions tunes a single logical POST.
type PostOptions struct {
	// Policy bounds attempts and spacing. A zero policy means one attempt.
	Policy RetryPolicy
	// Keepalive asks the transport to make the request likely to survive
	// process teardown (short deadline, no retry waiting).
	Keepalive bool
}

// Transport is the delivery boundary the pipeline depends on.
type Transport interface {
	// Post delivers payload, retrying per opts.Policy. The returned error
	// reports transport-level failure of the final attempt; Result carries
	// the final response when one arrived.
	Post(ctx context.Context, payload []byte, opts PostOptions) (Result, error)
	// SendBeacon fires payload without waiting for a response. Returns false
	// when the send could not be handed off.
	SendBeacon(payload []byte) bool
	// SupportsKeepalive reports whether Post with Keepalive is expected to
	// survive process teardown.
	SupportsKeepalive() bool
}
