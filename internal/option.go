package internal

import (
	"io"

	"github.com/starford/cloudshelf/internal/service"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	version   string
	logOutput io.Writer
	publisher service.Publisher
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported to the catalog and MCP clients.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithLogOutput redirects the JSON log stream. Stdout is the default.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithPublisher receives item and apply notifications. Run installs the SSE
// broker and ignores this option.
func WithPublisher(p service.Publisher) Option {
	return func(a *application) {
		a.publisher = p
	}
}
