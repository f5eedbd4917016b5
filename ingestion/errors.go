package ingestion

import "errors"

var (
	// ErrSourceRequired is returned when a source store is not provided.
	ErrSourceRequired = errors.New("source store required")

	// ErrSinkRequired is returned when a sink store is not provided.
	ErrSinkRequired = errors.New("sink store required")

	// ErrAnnotatorRequired is returned when an annotator is not provided.
	ErrAnnotatorRequired = errors.New("annotator required")

	// ErrMapperRequired is returned when a schema mapper is not provided.
	ErrMapperRequired = errors.New("schema mapper required")

	// ErrRunnerRequired is returned when a scheduler is created without an interval runner.
	ErrRunnerRequired = errors.New("interval runner required")

	// ErrIntervalPanicked is recorded when an interval job panics.
	ErrIntervalPanicked = errors.New("interval job panicked")
)
