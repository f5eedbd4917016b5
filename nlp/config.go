// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package nlp

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/poiesic/annotit/core"
)

// Config holds the settings of an annotation service client.
type Config struct {
	// Endpoints are the full URLs each document is posted to, in order.
	// Example: []string{"http://localhost:5000/api/process"}
	Endpoints []string

	// RequestMode selects the wire dialect: "" or "medcat" for the JSON
	// envelope, "gate-nlp" for raw text.
	RequestMode string

	// OuterKey and ResultKey override the dialect's response paths when set.
	// Both are dot-separated.
	OuterKey  string
	ResultKey string

	// Username and Password enable basic auth when Username is set.
	Username string
	Password string

	// MaxRetries is the number of retries after the first attempt.
	// Default: 1
	MaxRetries int

	// RetryDelay is the delay before the first retry; it doubles after each one.
	// Default: 500ms
	RetryDelay time.Duration

	// Timeout bounds a single request.
	// Default: 60s
	Timeout time.Duration

	// HTTPClient replaces the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEndpoint sets a single service URL.
func WithEndpoint(endpoint string) ConfigOption {
	return WithEndpoints(endpoint)
}

// WithEndpoints sets the service URLs. Responses of later endpoints are
// merged into those of earlier ones.
func WithEndpoints(endpoints ...string) ConfigOption {
	return func(c *Config) {
		c.Endpoints = slices.Clone(endpoints)
	}
}

// WithRequestMode sets the wire dialect.
func WithRequestMode(mode string) ConfigOption {
	return func(c *Config) {
		c.RequestMode = mode
	}
}

// WithResponseKeys overrides where entries are found in the response.
func WithResponseKeys(outer, result string) ConfigOption {
	return func(c *Config) {
		c.OuterKey = outer
		c.ResultKey = result
	}
}

// WithBasicAuth sets basic auth credentials.
func WithBasicAuth(username, password string) ConfigOption {
	return func(c *Config) {
		c.Username = username
		c.Password = password
	}
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) ConfigOption {
	return func(c *Config) {
		c.MaxRetries = n
	}
}

// WithRetryDelay sets the base retry delay.
func WithRetryDelay(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RetryDelay = d
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) ConfigOption {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// DefaultConfig returns a Config with the default retry and timeout settings.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries: 1,
		RetryDelay: 500 * time.Millisecond,
		Timeout:    60 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies opts.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("%w: nlp endpoint URL is required", core.ErrConfiguration)
	}
	for _, endpoint := range c.Endpoints {
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: invalid nlp endpoint URL %q", core.ErrConfiguration, endpoint)
		}
	}
	if _, err := DialectFor(c.RequestMode); err != nil {
		return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: nlp max retries must not be negative", core.ErrConfiguration)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: nlp retry delay must not be negative", core.ErrConfiguration)
	}
	if c.Timeout <= 0 && c.HTTPClient == nil {
		return fmt.Errorf("%w: nlp timeout must be positive", core.ErrConfiguration)
	}
	return nil
}
