package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Producer computes a fresh value on a cache miss. The returned value must be
// encodable with encoding/json.
type Producer interface {
	Produce(ctx context.Context) (any, error)
}

// ProducerFunc adapts an ordinary function to the Producer interface.
type ProducerFunc func(ctx context.Context) (any, error)

// Produce calls f(ctx).
func (f ProducerFunc) Produce(ctx context.Context) (any, error) { return f(ctx) }

// MemoOption configures a Memo.
type MemoOption func(*Memo)

// WithLogger sets the logger used for producer failures and store errors.
func WithLogger(l hclog.Logger) MemoOption {
	return func(m *Memo) { m.logger = l }
}

// WithMetrics sets the collectors updated on every lookup.
func WithMetrics(mt *Metrics) MemoOption {
	return func(m *Memo) { m.metrics = mt }
}

// WithTracerProvider sets the provider used to trace Resolve calls. When not
// set the global otel provider is used.
func WithTracerProvider(tp trace.TracerProvider) MemoOption {
	return func(m *Memo) { m.tracer = tp.Tracer("github.com/urdh/homepage/cache") }
}

// Memo serves values from a Store and runs a Producer on a miss.
//
// Concurrent misses for the same key share a single producer run; every
// caller waiting on it receives the same result. Misses for different keys
// never wait on each other.
type Memo struct {
	store   Store
	group   singleflight.Group
	logger  hclog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewMemo creates a Memo on top of store.
func NewMemo(store Store, opts ...MemoOption) *Memo {
	m := &Memo{
		store:  store,
		logger: hclog.NewNullLogger(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(nil)
	}
	if m.tracer == nil {
		m.tracer = otel.GetTracerProvider().Tracer("github.com/urdh/homepage/cache")
	}
	return m
}

// Store returns the underlying store.
func (m *Memo) Store() Store { return m.store }

// Resolve returns the JSON encoding of the value cached under key. On a miss
// it runs p once, encodes the result, stores it with ttl and returns it. A
// failing producer or encoding leaves the store untouched.
//
// A ttl of zero or less still returns the fresh value but leaves nothing
// cached; use NoExpiry to keep it until overwritten.
//
// If ctx ends while the producer is still running, Resolve returns ctx.Err()
// but the producer keeps running and its result is stored for later callers.
func (m *Memo) Resolve(ctx context.Context, key string, ttl time.Duration, p Producer) (json.RawMessage, error) {
	ctx, span := m.tracer.Start(ctx, "cache.Resolve", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	if v, ok := m.lookup(ctx, key); ok {
		m.metrics.hit(key)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return v, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		return m.produce(flightCtx, key, ttl, p)
	})

	select {
	case <-ctx.Done():
		m.metrics.miss(key)
		span.SetAttributes(attribute.Bool("cache.hit", false))
		err := ctx.Err()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	case res := <-ch:
		if res.Err != nil {
			m.metrics.miss(key)
			span.SetAttributes(attribute.Bool("cache.hit", false))
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			return nil, res.Err
		}
		f := res.Val.(flight)
		if f.cached {
			m.metrics.hit(key)
		} else {
			m.metrics.miss(key)
		}
		span.SetAttributes(
			attribute.Bool("cache.hit", f.cached),
			attribute.Bool("cache.shared", res.Shared),
		)
		return bytes.Clone(f.raw), nil
	}
}

// flight is the outcome of one producer run shared by every waiting caller.
// cached is set when the store was filled before the producer had to run.
type flight struct {
	raw    json.RawMessage
	cached bool
}

// lookup reads key from the store. Store errors are logged and treated as a
// miss.
func (m *Memo) lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	v, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache lookup failed", "key", key, "error", err)
		return nil, false
	}
	return v, ok
}

func (m *Memo) produce(ctx context.Context, key string, ttl time.Duration, p Producer) (val any, err error) {
	// The previous flight for this key may have finished between our lookup
	// and this one starting.
	if v, ok := m.lookup(ctx, key); ok {
		return flight{raw: v, cached: true}, nil
	}

	inflight := m.metrics.inflight.WithLabelValues(key)
	inflight.Inc()
	defer inflight.Dec()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("producer panicked", "key", key, "panic", r)
			m.metrics.failed(key, "panic")
			val, err = nil, &ProducerError{Key: key, Err: fmt.Errorf("%w: %v", ErrProducerPanic, r)}
		}
	}()

	start := time.Now()
	out, perr := p.Produce(ctx)
	m.metrics.producerDuration.WithLabelValues(key).Observe(time.Since(start).Seconds())
	if perr != nil {
		m.logger.Debug("producer failed", "key", key, "error", perr)
		m.metrics.failed(key, "producer")
		return nil, &ProducerError{Key: key, Err: perr}
	}

	raw, jerr := json.Marshal(out)
	if jerr != nil {
		m.logger.Error("could not serialize produced value", "key", key, "error", jerr)
		m.metrics.failed(key, "serialization")
		return nil, &SerializationError{Key: key, Err: jerr}
	}

	if err := m.store.Set(ctx, key, raw, ttl); err != nil {
		m.logger.Warn("could not store produced value", "key", key, "error", err)
	}
	return flight{raw: raw}, nil
}
