package instance

import (
	"os"

	"github.com/cinerent/cinerent-backend/pkg/env"
)

const fallbackID = "local"

// GetID identifies this process in logs. Explicit configuration wins over the
// platform-provided dyno name and the hostname.
func GetID() string {
	if id := env.First("", "CINERENT_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
