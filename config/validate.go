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


package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorhill/cronexpr"
	"github.com/poiesic/annotit/core"
	"github.com/poiesic/annotit/mapping"
	"github.com/poiesic/annotit/nlp"
	"github.com/poiesic/annotit/storage"
)

var validate = validator.New()

// Validate checks field constraints first, then the cross-field rules.
// Every error wraps core.ErrConfiguration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}

	for name, s := range map[string]StoreConfig{"source": c.Source, "sink": c.Sink} {
		if s.Store == "redis" && s.Redis.Addr == "" {
			return fmt.Errorf("%w: %s.redis.addr is required for the redis store", core.ErrConfiguration, name)
		}
		if s.Store != "redis" && !s.InMemory && s.Path == "" {
			return fmt.Errorf("%w: %s.path is required unless in-memory is set", core.ErrConfiguration, name)
		}
	}

	if _, _, err := c.Range(time.Now()); err != nil {
		return err
	}
	if _, err := mapping.New(c.MapperSettings()); err != nil {
		return err
	}
	if err := c.NLPConfig().Validate(); err != nil {
		return err
	}
	if c.Schedule.Cron != "" {
		if _, err := cronexpr.Parse(c.Schedule.Cron); err != nil {
			return fmt.Errorf("%w: schedule.cron: %w", core.ErrConfiguration, err)
		}
	}
	return nil
}

// DateLayout is the Go layout of the batch date format.
func (c *Config) DateLayout() string {
	return GoLayout(c.Mapping.Source.Batch.DateFormat)
}

// Range resolves the pass boundaries. A date-end of "now" or empty resolves
// to now.
func (c *Config) Range(now time.Time) (time.Time, time.Time, error) {
	batch := c.Mapping.Source.Batch
	start, err := storage.ParseDate(batch.DateStart, c.DateLayout())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date-start %q: %w", core.ErrConfiguration, batch.DateStart, err)
	}

	end := now.UTC()
	if v := strings.TrimSpace(batch.DateEnd); v != "" && !strings.EqualFold(v, "now") {
		if end, err = storage.ParseDate(v, c.DateLayout()); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: date-end %q: %w", core.ErrConfiguration, batch.DateEnd, err)
		}
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date-end %s is not after date-start %s",
			core.ErrConfiguration, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return start, end, nil
}

// MapperSettings returns the schema mapper settings.
func (c *Config) MapperSettings() mapping.Settings {
	return mapping.Settings{
		Variant:           c.Mapping.Sink.SchemaMapping,
		SameIndex:         c.Mapping.Sink.SameIndexIngest,
		UseNestedObjects:  c.Mapping.Sink.UseNestedObjects,
		BaseIndex:         c.Sink.IndexName,
		SourceIndex:       c.Source.IndexName,
		SplitField:        c.Mapping.Sink.SplitIndexByField,
		DocIDField:        c.Mapping.Source.DocIDField,
		AnnotationIDField: c.Mapping.NLP.AnnotationIDField,
		JoinField:         c.Mapping.NLP.JoinField,
	}
}

// NLPConfig returns the annotation client configuration.
func (c *Config) NLPConfig() *nlp.Config {
	s := c.NLPService
	return nlp.NewConfig(
		nlp.WithEndpoints(s.EndpointURLs...),
		nlp.WithRequestMode(s.EndpointRequestMode),
		nlp.WithResponseKeys(s.ResponseOuterKey, s.ResponseResultKey),
		nlp.WithBasicAuth(s.Username, s.Password),
		nlp.WithMaxRetries(s.MaxRetries),
		nlp.WithRetryDelay(s.RetryDelay),
		nlp.WithTimeout(s.Timeout),
	)
}

// FieldMapping returns how source documents are read.
func (c *Config) FieldMapping() storage.FieldMapping {
	src := c.Mapping.Source
	return storage.FieldMapping{
		TextField:     src.TextField,
		IDField:       src.DocIDField,
		DateField:     src.Batch.DateField,
		DateLayout:    c.DateLayout(),
		PersistFields: src.PersistFields,
		MinTextLength: src.MinTextLength,
	}
}

// StoreOptions returns the indexing options for a store on the given side.
// termFields are indexed for existence lookups.
func (c *Config) StoreOptions(termFields ...string) storage.Options {
	return storage.Options{
		DateField:  c.Mapping.Source.Batch.DateField,
		DateLayout: c.DateLayout(),
		TermFields: termFields,
	}
}
