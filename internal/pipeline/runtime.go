// Package pipeline wires the building blocks into one runner per command.
// Every runner receives its logger, stores and metrics through a Runtime.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/internal/observability/metrics"
	"github.com/inferloop/tabsynth/internal/storage"
	"github.com/inferloop/tabsynth/internal/storage/interfaces"
	"github.com/inferloop/tabsynth/internal/synth"
	"github.com/inferloop/tabsynth/pkg/errors"
)

// Runtime holds the collaborators shared by the runners of one invocation
type Runtime struct {
	Logger  *logrus.Logger
	Metrics *metrics.PrometheusMetrics
	Storage *storage.Factory
	Synth   *synth.Factory
	// Cache is optional; nil disables the stats cache
	Cache    interfaces.Cache
	CacheTTL time.Duration
	// Query is the SQL statement used for database sources
	Query string
	// Seed drives sampling, anomaly placement and synthetic identifiers;
	// zero seeds from the clock
	Seed int64
}

// NewRuntime fills in defaults for any collaborator left nil
func NewRuntime(rt Runtime) (*Runtime, error) {
	if rt.Logger == nil {
		rt.Logger = logrus.New()
	}
	if rt.Metrics == nil {
		m, err := metrics.NewPrometheusMetrics(nil, rt.Logger)
		if err != nil {
			return nil, err
		}
		rt.Metrics = m
	}
	if rt.Storage == nil {
		rt.Storage = storage.NewFactory(storage.Config{}, rt.Logger)
	}
	if rt.Synth == nil {
		rt.Synth = synth.NewFactory(synth.Config{}, rt.Logger)
	}
	return &rt, nil
}

// rng returns a source seeded from Seed, or from the clock when Seed is zero
func (rt *Runtime) rng() *rand.Rand {
	seed := rt.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// LoadDataset reads a CSV blob or runs the configured query against a
// database source
func (rt *Runtime) LoadDataset(ctx context.Context, location string) (*dataset.Dataset, error) {
	if dataset.IsSQLSource(location) {
		return dataset.LoadSQL(ctx, location, rt.Query, rt.Logger)
	}

	data, err := rt.ReadBlob(ctx, location)
	if err != nil {
		return nil, err
	}

	ds, err := dataset.ReadCSV(data, dataset.DefaultCSVOptions())
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInput, errors.CodeParseFailed,
			fmt.Sprintf("Error reading CSV %s", location))
	}
	return ds, nil
}

// DatasetExists reports whether location can be loaded. Database sources are
// assumed to exist.
func (rt *Runtime) DatasetExists(ctx context.Context, location string) (bool, error) {
	if dataset.IsSQLSource(location) {
		return true, nil
	}
	return rt.Storage.Exists(ctx, location)
}

// ReadBlob fetches raw bytes and records the storage operation
func (rt *Runtime) ReadBlob(ctx context.Context, location string) ([]byte, error) {
	data, err := rt.Storage.Read(ctx, location)
	rt.recordStorage(location, "read", err)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInput, errors.CodeReadFailed,
			fmt.Sprintf("Failed to read %s", location))
	}
	return data, nil
}

// WriteDataset encodes ds as CSV and stores it at location
func (rt *Runtime) WriteDataset(ctx context.Context, location string, ds *dataset.Dataset) error {
	data, err := dataset.EncodeCSV(ds)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to encode CSV")
	}
	err = rt.Storage.Write(ctx, location, data)
	rt.recordStorage(location, "write", err)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("Failed to save output to %s", location))
	}
	return nil
}

func (rt *Runtime) recordStorage(location, operation string, err error) {
	backend := "unknown"
	if info, perr := storage.ParseLocation(location); perr == nil {
		backend = info.Scheme
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	rt.Metrics.RecordStorageOperation(backend, operation, status)
}

// fail logs err against command, counts it and returns it unchanged
func (rt *Runtime) fail(command string, err error) error {
	errType := string(errors.TypeOf(err))
	rt.Metrics.RecordError(command, errType)
	rt.Logger.WithFields(logrus.Fields{
		"command": command,
		"type":    errType,
	}).WithError(err).Error("Command failed")
	return err
}
