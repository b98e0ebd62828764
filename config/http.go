package config

import "strings"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// MaxBodyBytes caps the size of submission request bodies.
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.Addr = strings.TrimSpace(h.Addr); h.Addr == "" {
		h.Addr = ":8080"
	}
	if h.MaxBodyBytes <= 0 {
		h.MaxBodyBytes = 1 << 20
	}
}
