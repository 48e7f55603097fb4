// Copyright 2024 CacheFS Authors.
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

// Package metrics instruments the cache hit/miss path and MetaStore
// latency with an OpenTelemetry meter exported via the Prometheus
// exporter.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	// CacheResultKey annotates a read as a cache "hit" or "miss".
	CacheResultKey = "cache_result"

	// OpKey annotates a MetaStore call with its operation name.
	OpKey = "op"
)

var cacheMeter = otel.Meter("cachefs/cache")

// Handle is the instrumentation surface used by internal/fsfacade and
// internal/metastore. A nil *Handle is valid: its recording methods do
// nothing, which is what tests and other non-serving contexts use.
type Handle struct {
	readBytes     metric.Int64Counter
	metaStoreCall metric.Int64Counter
	metaStoreLat  metric.Float64Histogram
}

// NewPrometheus registers a Prometheus exporter as this process's
// OpenTelemetry metric reader and returns a Handle bound to it.
func NewPrometheus() (*Handle, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return newHandle()
}

func newHandle() (*Handle, error) {
	readBytes, err := cacheMeter.Int64Counter(
		"cachefs/read_bytes_count",
		metric.WithDescription("Bytes returned by read(), labeled by cache hit or miss."),
	)
	if err != nil {
		return nil, err
	}

	metaStoreCall, err := cacheMeter.Int64Counter(
		"cachefs/metastore_call_count",
		metric.WithDescription("MetaStore operations processed, labeled by operation name."),
	)
	if err != nil {
		return nil, err
	}

	metaStoreLat, err := cacheMeter.Float64Histogram(
		"cachefs/metastore_latency",
		metric.WithDescription("MetaStore operation latency."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Handle{readBytes: readBytes, metaStoreCall: metaStoreCall, metaStoreLat: metaStoreLat}, nil
}

// RecordRead charges n bytes to the hit or miss counter.
func (h *Handle) RecordRead(ctx context.Context, n int64, hit bool) {
	if h == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	h.readBytes.Add(ctx, n, metric.WithAttributes(attribute.String(CacheResultKey, result)))
}

// RecordMetaStoreCall charges one call and its latency in milliseconds
// to op.
func (h *Handle) RecordMetaStoreCall(ctx context.Context, op string, latencyMs float64) {
	if h == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(OpKey, op))
	h.metaStoreCall.Add(ctx, 1, attrs)
	h.metaStoreLat.Record(ctx, latencyMs, attrs)
}
