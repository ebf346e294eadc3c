package x402router

import (
	"time"

	"github.com/vitwit/x402-router/logger"
	"github.com/vitwit/x402-router/metrics"
	"github.com/vitwit/x402-router/settlement"
)

type options struct {
	logger  logger.Logger
	metrics metrics.Recorder
	prices  settlement.PriceSource
	timeout time.Duration
}

func defaultOptions() options {
	return options{
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
}

// Option customizes a Facilitator.
type Option func(*options)

// WithLogger replaces the no-op logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics replaces the no-op metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// WithPriceSource supplies token USD prices for fee quotes.
func WithPriceSource(p settlement.PriceSource) Option {
	return func(o *options) {
		o.prices = p
	}
}

// WithTimeout overrides the per-settlement deadline.
func WithTimeout(t time.Duration) Option {
	return func(o *options) {
		o.timeout = t
	}
}
