// Package config loads the annotit configuration from YAML, .env files and
// ANNOTIT_* environment variables.
package config

import (
	"time"
)

// Config is the complete configuration of an annotation run.
type Config struct {
	Log         LogConfig        `mapstructure:"log" yaml:"log"`
	Source      StoreConfig      `mapstructure:"source" yaml:"source"`
	Sink        StoreConfig      `mapstructure:"sink" yaml:"sink"`
	Store       RetryConfig      `mapstructure:"store" yaml:"store"`
	NLPService  NLPServiceConfig `mapstructure:"nlp-service" yaml:"nlp-service"`
	Mapping     MappingConfig    `mapstructure:"mapping" yaml:"mapping"`
	WaitFor     []string         `mapstructure:"wait-for" yaml:"wait-for"`
	WaitTimeout time.Duration    `mapstructure:"wait-timeout" yaml:"wait-timeout" validate:"gte=0"`
	Metrics     MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Schedule    ScheduleConfig   `mapstructure:"schedule" yaml:"schedule"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

// StoreConfig selects and locates a document store.
type StoreConfig struct {
	Store     string      `mapstructure:"store" yaml:"store" validate:"oneof=badger bleve redis"`
	Path      string      `mapstructure:"path" yaml:"path"`
	IndexName string      `mapstructure:"index-name" yaml:"index-name" validate:"required"`
	InMemory  bool        `mapstructure:"in-memory" yaml:"in-memory"`
	Redis     RedisConfig `mapstructure:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db" validate:"gte=0"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// RetryConfig controls retries of store calls.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max-retries" yaml:"max-retries" validate:"gte=0"`
	RetryDelay time.Duration `mapstructure:"retry-delay" yaml:"retry-delay" validate:"gte=0"`
}

type NLPServiceConfig struct {
	EndpointURLs        []string      `mapstructure:"endpoint-url" yaml:"endpoint-url" validate:"required,min=1,dive,url"`
	EndpointRequestMode string        `mapstructure:"endpoint-request-mode" yaml:"endpoint-request-mode" validate:"omitempty,oneof=medcat gate-nlp"`
	UseBulkIndexing     bool          `mapstructure:"use-bulk-indexing" yaml:"use-bulk-indexing"`
	MaxRetries          int           `mapstructure:"max-retries" yaml:"max-retries" validate:"gte=0"`
	RetryDelay          time.Duration `mapstructure:"retry-delay" yaml:"retry-delay" validate:"gte=0"`
	Timeout             time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	ResponseOuterKey    string        `mapstructure:"response-outer-key" yaml:"response-outer-key"`
	ResponseResultKey   string        `mapstructure:"response-result-key" yaml:"response-result-key"`
	Username            string        `mapstructure:"username" yaml:"username"`
	Password            string        `mapstructure:"password" yaml:"password"`
}

type MappingConfig struct {
	Source SourceMapping `mapstructure:"source" yaml:"source"`
	Sink   SinkMapping   `mapstructure:"sink" yaml:"sink"`
	NLP    NLPMapping    `mapstructure:"nlp" yaml:"nlp"`
}

// SourceMapping locates the pipeline's fields in source documents.
type SourceMapping struct {
	TextField     string      `mapstructure:"text-field" yaml:"text-field" validate:"required"`
	DocIDField    string      `mapstructure:"docid-field" yaml:"docid-field"`
	PersistFields []string    `mapstructure:"persist-fields" yaml:"persist-fields"`
	MinTextLength int         `mapstructure:"min-text-length" yaml:"min-text-length" validate:"gte=0"`
	Batch         BatchConfig `mapstructure:"batch" yaml:"batch"`
}

// BatchConfig describes the time range of a pass and how it is divided.
type BatchConfig struct {
	DateField  string `mapstructure:"date-field" yaml:"date-field" validate:"required"`
	DateFormat string `mapstructure:"date-format" yaml:"date-format"`
	DateStart  string `mapstructure:"date-start" yaml:"date-start" validate:"required"`
	DateEnd    string `mapstructure:"date-end" yaml:"date-end"`
	Interval   int    `mapstructure:"interval" yaml:"interval" validate:"gte=1"`
	Threads    int    `mapstructure:"threads" yaml:"threads" validate:"gte=1"`
	PageSize   int    `mapstructure:"page-size" yaml:"page-size" validate:"gte=1"`
	BulkSize   int    `mapstructure:"bulk-size" yaml:"bulk-size" validate:"gte=1"`
}

type SinkMapping struct {
	SplitIndexByField string `mapstructure:"split-index-by-field" yaml:"split-index-by-field"`
	SameIndexIngest   bool   `mapstructure:"same-index-ingest" yaml:"same-index-ingest"`
	UseNestedObjects  bool   `mapstructure:"use-nested-objects" yaml:"use-nested-objects"`
	SchemaMapping     string `mapstructure:"schema-mapping" yaml:"schema-mapping"`
}

type NLPMapping struct {
	SkipProcessedDocCheck bool   `mapstructure:"skip-processed-doc-check" yaml:"skip-processed-doc-check"`
	AnnotationIDField     string `mapstructure:"annotation-id-field" yaml:"annotation-id-field"`
	JoinField             string `mapstructure:"join-field" yaml:"join-field"`
}

type MetricsConfig struct {
	// Port of the Prometheus endpoint; 0 disables it.
	Port int `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
}

type ScheduleConfig struct {
	// Cron runs passes periodically when set. Standard five-field syntax.
	Cron string `mapstructure:"cron" yaml:"cron"`
}
