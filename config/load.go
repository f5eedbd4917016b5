package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/annotit/core"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ANNOTIT_NLP_SERVICE_ENDPOINT_URL.
const EnvPrefix = "ANNOTIT"

// Load reads the YAML file at path (optional), applies .env and environment
// overrides on top of the defaults, and validates the result.
func Load(path string) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", core.ErrConfiguration, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding configuration: %w", core.ErrConfiguration, err)
	}
	cfg.WaitFor = splitList(cfg.WaitFor)
	cfg.NLPService.EndpointURLs = splitList(cfg.NLPService.EndpointURLs)
	cfg.Mapping.Source.PersistFields = splitList(cfg.Mapping.Source.PersistFields)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv loads a .env file from the working directory if there is one.
// Variables already set in the environment win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("unable to load .env file", "error", err)
	}
}

// splitList flattens comma-separated entries and drops blanks, so list
// values work the same from YAML and from the environment.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	for _, side := range []string{"source", "sink"} {
		v.SetDefault(side+".store", "badger")
		v.SetDefault(side+".path", "./data/"+side)
		v.SetDefault(side+".in-memory", false)
		v.SetDefault(side+".redis.addr", "localhost:6379")
		v.SetDefault(side+".redis.password", "")
		v.SetDefault(side+".redis.db", 0)
		v.SetDefault(side+".redis.prefix", "annotit")
	}
	v.SetDefault("source.index-name", "documents")
	v.SetDefault("sink.index-name", "annotations")

	v.SetDefault("store.max-retries", 3)
	v.SetDefault("store.retry-delay", 200*time.Millisecond)

	v.SetDefault("nlp-service.endpoint-url", []string{"http://localhost:5000/api/process"})
	v.SetDefault("nlp-service.endpoint-request-mode", "")
	v.SetDefault("nlp-service.use-bulk-indexing", true)
	v.SetDefault("nlp-service.max-retries", 1)
	v.SetDefault("nlp-service.retry-delay", 500*time.Millisecond)
	v.SetDefault("nlp-service.timeout", 60*time.Second)
	v.SetDefault("nlp-service.response-outer-key", "")
	v.SetDefault("nlp-service.response-result-key", "")
	v.SetDefault("nlp-service.username", "")
	v.SetDefault("nlp-service.password", "")

	v.SetDefault("mapping.source.text-field", "text")
	v.SetDefault("mapping.source.docid-field", "id")
	v.SetDefault("mapping.source.persist-fields", []string{})
	v.SetDefault("mapping.source.min-text-length", 5)
	v.SetDefault("mapping.source.batch.date-field", "date")
	v.SetDefault("mapping.source.batch.date-format", "yyyy-MM-dd")
	v.SetDefault("mapping.source.batch.date-start", "1999-01-01")
	v.SetDefault("mapping.source.batch.date-end", "now")
	v.SetDefault("mapping.source.batch.interval", 30)
	v.SetDefault("mapping.source.batch.threads", 4)
	v.SetDefault("mapping.source.batch.page-size", 100)
	v.SetDefault("mapping.source.batch.bulk-size", 1000)

	v.SetDefault("mapping.sink.split-index-by-field", "")
	v.SetDefault("mapping.sink.same-index-ingest", false)
	v.SetDefault("mapping.sink.use-nested-objects", false)
	v.SetDefault("mapping.sink.schema-mapping", "")

	v.SetDefault("mapping.nlp.skip-processed-doc-check", true)
	v.SetDefault("mapping.nlp.annotation-id-field", "id")
	v.SetDefault("mapping.nlp.join-field", "")

	v.SetDefault("wait-for", []string{})
	v.SetDefault("wait-timeout", 2*time.Minute)
	v.SetDefault("metrics.port", 0)
	v.SetDefault("schedule.cron", "")
}
