package helpers

import (
	"fmt"
	"io"
	"os"

	"github.com/stephnangue/vortex/api"
	"github.com/stephnangue/vortex/logger"
)

// EnvLogLevel enables transport logging of the CLI's HTTP client on stderr.
const EnvLogLevel = "VORTEX_LOG_LEVEL"

var (
	c *api.Client
)

// Construct the HTTP API client
func Client() (*api.Client, error) {
	// Read the test client if present
	if c != nil {
		return c, nil
	}

	config := api.DefaultConfig()
	if config.Error != nil {
		return nil, fmt.Errorf("failed to read environment: %w", config.Error)
	}

	// Build the client
	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	// Turn off retries on the CLI
	if api.ReadVortexVariable(api.EnvVortexMaxRetries) == "" {
		client.SetMaxRetries(0)
	}

	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		client.SetLogger(logger.NewHCLogAdapter(clientLogger(lvl, os.Stderr)))
	}

	c = client

	return client, nil
}

// SetClient installs the client returned by Client. Tests use it to point
// commands at an httptest server.
func SetClient(client *api.Client) {
	c = client
}

// RequireToken fails early with a hint when no token is configured.
func RequireToken(client *api.Client) error {
	if client.Token() == "" {
		return fmt.Errorf("no token configured; run \"vortex login\" and export %s", api.EnvVortexToken)
	}
	return nil
}

func clientLogger(level string, w io.Writer) logger.Logger {
	return logger.NewZerologLogger(&logger.Config{
		Level:     logger.ParseLogLevel(level),
		Format:    logger.DefaultFormat,
		Outputs:   []io.Writer{w},
		Subsystem: "api",
		NoColor:   true,
	})
}
