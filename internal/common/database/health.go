package database

import (
	"context"
	"time"
)

// Pinger is a backend that can report its own reachability.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// CheckAll pings every backend with a shared timeout and returns the failures
// keyed by backend name.
func CheckAll(ctx context.Context, timeout time.Duration, backends ...Pinger) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	failures := make(map[string]string)
	for _, b := range backends {
		if b == nil {
			continue
		}
		if err := b.Ping(ctx); err != nil {
			failures[b.Name()] = err.Error()
		}
	}
	return failures
}
