/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package dispatch

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/jdashg/gecko-cinn-sub000/internal/transport/dispatch"

// Metric names.
const (
	metricCalls       = "shm.dispatch.calls"
	metricPosts       = "shm.dispatch.posts"
	metricRetries     = "shm.dispatch.not_ready_retries"
	metricChannelLost = "shm.dispatch.channel_lost"
	metricCallLatency = "shm.dispatch.call_latency"
)

type telemetry struct {
	tracer trace.Tracer

	calls   metric.Int64Counter
	posts   metric.Int64Counter
	retries metric.Int64Counter
	lost    metric.Int64Counter
	latency metric.Float64Histogram
}

func newTelemetry(opts Options) *telemetry {
	tracer := opts.TracerProvider.Tracer(instrumentationName)
	t, err := buildTelemetry(opts.MeterProvider.Meter(instrumentationName), tracer)
	if err != nil {
		opts.Logger.Warn("failed to create dispatch metrics, using no-op meter", "err", err)
		t, _ = buildTelemetry(noop.NewMeterProvider().Meter(instrumentationName), tracer)
	}
	return t
}

func buildTelemetry(meter metric.Meter, tracer trace.Tracer) (*telemetry, error) {
	t := &telemetry{tracer: tracer}

	var errs [5]error
	t.calls, errs[0] = meter.Int64Counter(metricCalls,
		metric.WithDescription("Synchronous calls issued"))
	t.posts, errs[1] = meter.Int64Counter(metricPosts,
		metric.WithDescription("Asynchronous calls issued"))
	t.retries, errs[2] = meter.Int64Counter(metricRetries,
		metric.WithDescription("Queue operations retried because the queue was not ready"))
	t.lost, errs[3] = meter.Int64Counter(metricChannelLost,
		metric.WithDescription("Channels marked lost"))
	t.latency, errs[4] = meter.Float64Histogram(metricCallLatency,
		metric.WithDescription("Round trip time of synchronous calls"), metric.WithUnit("ms"))

	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return t, nil
}

func methodAttrs(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("method", name))
}

func (t *telemetry) recordLatency(ctx context.Context, name string, d time.Duration) {
	t.latency.Record(ctx, float64(d)/float64(time.Millisecond), methodAttrs(name))
}
