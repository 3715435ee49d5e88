package api

import (
	"os"
	"strings"
)

const (
	VortexEnvPrefix = "VORTEX_"
)

// ReadVortexVariable returns the value of a VORTEX_* environment variable and
// ignores anything else.
func ReadVortexVariable(name string) string {
	if strings.HasPrefix(name, VortexEnvPrefix) {
		return os.Getenv(name)
	}
	return ""
}
