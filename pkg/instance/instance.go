package instance

import (
	"os"
	"strings"
)

// GetID returns the worker instance identifier used as the cron lock owner
// and outbox publisher name. It falls back to the hostname, then a default.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("STADIUMCARD_WORKER_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
