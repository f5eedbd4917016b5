package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/poiesic/annotit"
	"github.com/poiesic/annotit/config"
	"github.com/poiesic/annotit/core"
	"github.com/poiesic/annotit/storage"
	"github.com/urfave/cli/v2"
)

// maxLineSize bounds a single JSON-lines document.
const maxLineSize = 16 * 1024 * 1024

func seedCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := annotit.OpenStore(c.Context, cfg.Source, cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("opening source store: %w", err)
	}
	defer store.Close()

	w := &seedWriter{
		store:     store,
		index:     cfg.Source.IndexName,
		idField:   cfg.Mapping.Source.DocIDField,
		batchSize: max(c.Int("batch-size"), 1),
	}

	start := time.Now()
	if path := c.String("file"); path != "" {
		in := io.Reader(c.App.Reader)
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening %s: %w", path, err)
			}
			defer f.Close()
			in = f
		}
		err = seedFromJSONLines(c.Context, w, in)
	} else {
		err = seedFake(c.Context, w, cfg, c.Int("count"), c.Int64("seed"))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "seeded %d document(s) into %s in %s\n", w.written, cfg.Source.IndexName, elapsed(start))
	return nil
}

// seedWriter batches documents into bulk writes against the source store.
type seedWriter struct {
	store     storage.SinkStore
	index     string
	idField   string
	batchSize int
	pending   []*core.SinkRecord
	written   int
	seq       int
}

func (w *seedWriter) add(ctx context.Context, body map[string]any) error {
	w.seq++
	id := fmt.Sprintf("seed-%d", w.seq)
	if v, ok := storage.Lookup(body, w.idField); ok && v != nil {
		id = core.FormatValue(v)
	}
	w.pending = append(w.pending, &core.SinkRecord{IndexTarget: w.index, ID: id, Op: core.OpIndex, Body: body})
	if len(w.pending) >= w.batchSize {
		return w.flush(ctx)
	}
	return nil
}

func (w *seedWriter) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	report, err := w.store.BulkWrite(ctx, w.pending)
	w.pending = w.pending[:0]
	if err != nil {
		return err
	}
	w.written += report.Succeeded
	return report.Error()
}

func seedFromJSONLines(ctx context.Context, w *seedWriter, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var body map[string]any
		if err := json.Unmarshal([]byte(text), &body); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := w.add(ctx, body); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return w.flush(ctx)
}

// seedFake generates clinical-looking notes dated within the configured
// range.
func seedFake(ctx context.Context, w *seedWriter, cfg *config.Config, count int, seed int64) error {
	start, end, err := cfg.Range(time.Now())
	if err != nil {
		return err
	}
	faker := gofakeit.New(seed)
	batch := cfg.Mapping.Source.Batch
	for range count {
		body := map[string]any{
			"client": faker.Company(),
			"author": faker.Name(),
		}
		body[batch.DateField] = faker.DateRange(start, end).UTC().Format(cfg.DateLayout())
		body[cfg.Mapping.Source.TextField] = fakeNote(faker)
		if field := cfg.Mapping.Source.DocIDField; field != "" && field != storage.IDFieldStoreKey {
			body[field] = faker.UUID()
		}
		if err := w.add(ctx, body); err != nil {
			return err
		}
	}
	return w.flush(ctx)
}

var findings = []string{
	"fever", "cough", "headache", "hypertension", "nausea", "fatigue", "chest pain",
	"shortness of breath", "diabetes", "asthma", "rash", "dizziness", "back pain",
}

func fakeNote(faker *gofakeit.Faker) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient %s presents with %s and %s. ",
		faker.FirstName(), faker.RandomString(findings), faker.RandomString(findings))
	b.WriteString(faker.Sentence(12))
	return b.String()
}
