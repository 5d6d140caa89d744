package instance

import (
	"os"
	"strings"
)

// GetID identifies this process in logs and lock owners. Heroku dynos set
// DYNO; elsewhere the hostname is used.
func GetID() string {
	for _, key := range []string{"OVENLY_INSTANCE_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
