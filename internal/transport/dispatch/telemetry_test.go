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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func collectMetrics(t *testing.T, r *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, r.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func counterTotal(t *testing.T, metrics map[string]metricdata.Aggregation, name string) int64 {
	t.Helper()
	data, ok := metrics[name]
	if !ok {
		return 0
	}
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is %T", name, data)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestTelemetryCountsCalls(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewSpanRecorder()

	opts := testOptions()
	opts.MeterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	opts.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	ch := newTestChannel(t, 256, 256, opts)
	var (
		mu       sync.Mutex
		notified []uint64
	)
	registerTestHandlers(t, ch.server, &notified, &mu)
	serve(t, ch.server)

	ctx := context.Background()
	for range 3 {
		_, err := Call(ctx, ch.client, echoMethod, "m")
		require.NoError(t, err)
	}
	for i := range uint64(2) {
		require.NoError(t, Post(ctx, ch.client, notifyMethod, i))
	}

	metrics := collectMetrics(t, reader)
	assert.Equal(t, int64(3), counterTotal(t, metrics, metricCalls))
	assert.Equal(t, int64(2), counterTotal(t, metrics, metricPosts))
	assert.Zero(t, counterTotal(t, metrics, metricChannelLost))

	hist, ok := metrics[metricCallLatency].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)

	ended := spans.Ended()
	require.Len(t, ended, 3)
	assert.Equal(t, "shm.dispatch/Echo", ended[0].Name())
}

func TestTelemetryCountsLostChannels(t *testing.T) {
	reader := sdkmetric.NewManualReader()

	opts := testOptions()
	opts.MeterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	opts.Clock = &fakeClock{step: time.Second}
	opts.Timeout = 2 * time.Second
	ch := newTestChannel(t, 64, 64, opts)

	_, err := Call(context.Background(), ch.client, echoMethod, "nobody home")
	require.Error(t, err)
	_, err = Call(context.Background(), ch.client, echoMethod, "still nobody")
	require.Error(t, err)

	metrics := collectMetrics(t, reader)
	assert.Equal(t, int64(1), counterTotal(t, metrics, metricChannelLost))
	assert.Positive(t, counterTotal(t, metrics, metricRetries))
}
