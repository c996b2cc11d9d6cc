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
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds how long a call waits for queue space or a reply.
const DefaultTimeout = 5 * time.Second

// Clock tells the time. Tests inject a fake one.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Options configures a Client or a Server.
type Options struct {
	// Timeout bounds each wait for queue space or for a reply. Zero waits
	// until the context is done.
	Timeout time.Duration
	// Clock is used to measure Timeout.
	Clock Clock
	// Yield runs between two attempts of a not-ready operation.
	Yield func()
	// InProcess reports whether both endpoints live in this process. When it
	// returns true and a local server is bound, calls skip the queues.
	InProcess func() bool
	// Logger receives channel-level events.
	Logger *slog.Logger
	// MeterProvider and TracerProvider default to the global providers.
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		Timeout:        DefaultTimeout,
		Clock:          SystemClock,
		Yield:          runtime.Gosched,
		InProcess:      func() bool { return false },
		Logger:         slog.Default(),
		MeterProvider:  otel.GetMeterProvider(),
		TracerProvider: otel.GetTracerProvider(),
	}
}

// anomaly is a configuration value that was replaced by a fallback.
type anomaly struct {
	field    string
	reason   string
	actual   any
	fallback any
}

// validate fills unset fields from DefaultOptions and replaces invalid ones,
// logging every replaced invalid value.
func (o Options) validate() Options {
	def := DefaultOptions()
	var anomalies []anomaly

	if o.Logger == nil {
		o.Logger = def.Logger
	}
	if o.Timeout < 0 {
		anomalies = append(anomalies, anomaly{
			field: "Timeout", reason: "must not be negative",
			actual: o.Timeout, fallback: def.Timeout,
		})
		o.Timeout = def.Timeout
	}
	if o.Clock == nil {
		o.Clock = def.Clock
	}
	if o.Yield == nil {
		o.Yield = def.Yield
	}
	if o.InProcess == nil {
		o.InProcess = def.InProcess
	}
	if o.MeterProvider == nil {
		o.MeterProvider = def.MeterProvider
	}
	if o.TracerProvider == nil {
		o.TracerProvider = def.TracerProvider
	}

	for _, a := range anomalies {
		o.Logger.Warn("config anomaly",
			"field", a.field, "reason", a.reason,
			"actual", a.actual, "fallback", a.fallback)
	}
	return o
}
