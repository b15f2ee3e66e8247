package transport

import (
	"collection-runner/internal/config"
	"collection-runner/internal/validator"
)

// FromConfig returns the transport requests are sent through: the local agent
// when AGENT_URL is set, a direct HTTP client otherwise.
func FromConfig(cfg *config.Config) Transport {
	if cfg.AgentURL != "" {
		return NewAgent(cfg.AgentURL, cfg.RequestTimeout)
	}
	return NewHTTPFromConfig(cfg)
}

// NewHTTPFromConfig builds the HTTP transport with the limits and SSRF policy of cfg.
func NewHTTPFromConfig(cfg *config.Config) *HTTP {
	return NewHTTP(
		WithTimeout(cfg.RequestTimeout),
		WithMaxRedirects(cfg.MaxRedirects),
		WithMaxResponseSize(cfg.MaxResponseSize),
		WithUserAgent(cfg.UserAgent),
		WithURLGuard(validator.NewURLGuard(cfg.AllowLocalhost, cfg.AllowPrivateIPs)),
	)
}
