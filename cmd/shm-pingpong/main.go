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

// Command shm-pingpong runs a dispatch server and client over one shared
// memory segment and reports round trip latency.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync/atomic"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jdashg/gecko-cinn-sub000/internal/logging"
	"github.com/jdashg/gecko-cinn-sub000/internal/transport/dispatch"
	"github.com/jdashg/gecko-cinn-sub000/internal/transport/shm"
)

var (
	pingMethod = dispatch.SyncMethod[[]byte, []byte]{
		ID: 1, Name: "Ping", Request: shm.Bytes, Response: shm.Bytes,
	}
	noteMethod = dispatch.AsyncMethod[string]{
		ID: 2, Name: "Note", Request: shm.String,
	}
	servedMethod = dispatch.SyncMethod[struct{}, uint64]{
		ID: 3, Name: "Served", Request: shm.Trivial[struct{}](), Response: shm.Uint64,
	}

	methods = dispatch.MustTable(pingMethod, noteMethod, servedMethod)
)

func main() {
	var (
		addr        = flag.String("addr", fmt.Sprintf("shm://pingpong-%d", os.Getpid()), "segment address, shm://name?cap=N&reply=N")
		iterations  = flag.Int("n", 10000, "number of round trips")
		payloadSize = flag.Int("size", 64, "ping payload size in bytes")
		timeout     = flag.Duration("timeout", dispatch.DefaultTimeout, "per-wait timeout")
		showMetrics = flag.Bool("metrics", false, "print dispatch metrics on exit")
		logLevel    = flag.String("log", "info", "log level")
	)
	flag.Parse()
	logger := logging.New(logging.ParseLevel(*logLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	opts := dispatch.DefaultOptions()
	opts.Timeout = *timeout
	opts.Logger = logger
	opts.MeterProvider = provider

	err := run(ctx, logger, *addr, *iterations, *payloadSize, opts)
	if *showMetrics {
		printMetrics(reader)
	}
	if err != nil {
		logger.Error("pingpong failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, rawAddr string, n, size int, opts dispatch.Options) error {
	if n <= 0 || size < 0 {
		return fmt.Errorf("invalid run: n=%d size=%d", n, size)
	}
	addr, err := shm.ParseAddress(rawAddr)
	if err != nil {
		return err
	}

	seg, err := shm.CreateSegment(addr.Name, addr.Options)
	if err != nil {
		return err
	}
	defer shm.RemoveSegment(addr.Name)
	defer seg.Close()
	logger.Info("segment created", "addr", addr.String(), "path", seg.Path, "size", seg.Layout().TotalSize)

	g, ctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()

	g.Go(func() error {
		srv, err := dispatch.Listen(ctx, seg, methods, opts)
		if err != nil {
			return err
		}
		var served atomic.Uint64
		if err := dispatch.HandleSync(srv, pingMethod, func(_ context.Context, p []byte) []byte {
			served.Add(1)
			return p
		}); err != nil {
			return err
		}
		if err := dispatch.HandleSync(srv, servedMethod, func(context.Context, struct{}) uint64 {
			return served.Load()
		}); err != nil {
			return err
		}
		if err := dispatch.HandleAsync(srv, noteMethod, func(_ context.Context, msg string) {
			logger.Info("client note", "msg", msg)
		}); err != nil {
			return err
		}

		err = srv.Serve(serveCtx)
		if status.Code(err) == codes.Canceled && ctx.Err() == nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		defer stopServing()

		cseg, err := shm.OpenSegment(addr.Name)
		if err != nil {
			return err
		}
		defer cseg.Close()

		client, err := dispatch.Dial(ctx, cseg, methods, opts)
		if err != nil {
			return err
		}

		payload := make([]byte, size)
		latencies := make([]time.Duration, 0, n)
		for i := 0; i < n; i++ {
			start := time.Now()
			resp, err := dispatch.Call(ctx, client, pingMethod, payload)
			if err != nil {
				return fmt.Errorf("ping %d: %w", i, err)
			}
			latencies = append(latencies, time.Since(start))
			if len(resp) != size {
				return fmt.Errorf("ping %d: got %d bytes back, want %d", i, len(resp), size)
			}
		}

		if err := dispatch.Post(ctx, client, noteMethod, fmt.Sprintf("%d pings done", n)); err != nil {
			return err
		}
		served, err := dispatch.Call(ctx, client, servedMethod, struct{}{})
		if err != nil {
			return err
		}
		if served != uint64(n) {
			return errors.New("server and client disagree on the number of pings")
		}

		report(latencies, size)
		return nil
	})

	return g.Wait()
}

func report(latencies []time.Duration, size int) {
	slices.Sort(latencies)
	var total time.Duration
	for _, d := range latencies {
		total += d
	}
	pct := func(p float64) time.Duration {
		return latencies[int(p*float64(len(latencies)-1))]
	}
	fmt.Printf("=== %d round trips, %d byte payload ===\n", len(latencies), size)
	fmt.Printf("min  %v\n", latencies[0])
	fmt.Printf("avg  %v\n", total/time.Duration(len(latencies)))
	fmt.Printf("p50  %v\n", pct(0.50))
	fmt.Printf("p99  %v\n", pct(0.99))
	fmt.Printf("max  %v\n", latencies[len(latencies)-1])
}

func printMetrics(reader *sdkmetric.ManualReader) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		fmt.Fprintf(os.Stderr, "collect metrics: %v\n", err)
		return
	}
	fmt.Printf("=== Metrics ===\n")
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					fmt.Printf("%-36s %v %d\n", m.Name, dp.Attributes.ToSlice(), dp.Value)
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					fmt.Printf("%-36s %v count=%d sum=%.3f%s\n", m.Name, dp.Attributes.ToSlice(), dp.Count, dp.Sum, m.Unit)
				}
			}
		}
	}
}
