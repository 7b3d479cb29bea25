package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/internal/profile"
)

const commandStats = "stats"

// Profiler produces the stats payload, consulting the cache when configured
type Profiler struct {
	rt       *Runtime
	profiler *profile.Profiler
}

// NewProfiler creates a stats runner
func NewProfiler(rt *Runtime) *Profiler {
	return &Profiler{rt: rt, profiler: profile.NewProfiler(rt.Logger, rt.rng())}
}

// Run always returns a JSON document: the profile, or an error payload when
// the data cannot be read
func (p *Profiler) Run(ctx context.Context, location string) json.RawMessage {
	start := time.Now()
	defer p.rt.Metrics.ObserveStage(commandStats, "profile", start)

	var (
		data []byte
		key  string
		err  error
	)
	if dataset.IsSQLSource(location) {
		key = cacheKey([]byte(location + "\x00" + p.rt.Query))
	} else {
		data, err = p.rt.Storage.Read(ctx, location)
		p.rt.recordStorage(location, "read", err)
		if err != nil {
			return p.errorPayload(err)
		}
		key = cacheKey(data)
	}

	if cached, ok := p.lookup(ctx, key); ok {
		return cached
	}

	var report *profile.Report
	if dataset.IsSQLSource(location) {
		ds, err := dataset.LoadSQL(ctx, location, p.rt.Query, p.rt.Logger)
		if err != nil {
			return p.errorPayload(err)
		}
		report = p.profiler.Profile(ds)
	} else {
		var failure *profile.ErrorReport
		report, failure = p.profiler.ProfileCSV(data)
		if failure != nil {
			return p.marshal(failure)
		}
	}

	payload := p.marshal(report)
	p.store(ctx, key, payload)
	return payload
}

func (p *Profiler) errorPayload(err error) json.RawMessage {
	p.rt.Metrics.RecordError(commandStats, "input")
	p.rt.Logger.WithError(err).Warn("Could not load data for statistics")
	return p.marshal(&profile.ErrorReport{Error: fmt.Sprintf("Failed to parse CSV: %v", err)})
}

func (p *Profiler) marshal(v interface{}) json.RawMessage {
	out, err := json.Marshal(v)
	if err != nil {
		p.rt.Logger.WithError(err).Error("Failed to encode statistics")
		out, _ = json.Marshal(&profile.ErrorReport{Error: err.Error()})
	}
	return out
}

func (p *Profiler) lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	if p.rt.Cache == nil {
		return nil, false
	}
	cached, hit, err := p.rt.Cache.Get(ctx, key)
	switch {
	case err != nil:
		p.rt.Metrics.RecordCacheRequest("error")
		p.rt.Logger.WithError(err).Warn("Statistics cache lookup failed")
		return nil, false
	case !hit:
		p.rt.Metrics.RecordCacheRequest("miss")
		return nil, false
	}
	p.rt.Metrics.RecordCacheRequest("hit")
	p.rt.Logger.WithField("key", key).Debug("Serving statistics from cache")
	return cached, true
}

func (p *Profiler) store(ctx context.Context, key string, payload json.RawMessage) {
	if p.rt.Cache == nil {
		return
	}
	if err := p.rt.Cache.Set(ctx, key, payload, p.rt.CacheTTL); err != nil {
		p.rt.Logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Failed to cache statistics")
	}
}

func cacheKey(data []byte) string {
	sum := sha256.Sum256(data)
	return "stats:" + hex.EncodeToString(sum[:])
}
