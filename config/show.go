package config

import (
	"gopkg.in/yaml.v3"
)

const redactedValue = "********"

// Redacted returns a copy of c with secrets masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.WaitFor = append([]string(nil), c.WaitFor...)
	out.Mapping.Source.PersistFields = append([]string(nil), c.Mapping.Source.PersistFields...)
	mask := func(s *string) {
		if *s != "" {
			*s = redactedValue
		}
	}
	mask(&out.NLPService.Password)
	mask(&out.Source.Redis.Password)
	mask(&out.Sink.Redis.Password)
	return &out
}

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
