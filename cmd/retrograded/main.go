// Command retrograded is a thin wiring binary over the retrograde
// engine facade: it builds a rule registry, a datastore, and an
// Engine, submits one training run over a variable/time range, and
// streams progress and final results to stdout. Modeled on the
// teacher's root main.go (flag-driven CLI, signal-based graceful
// shutdown, JSON-line result streaming, periodic snapshot ticker).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"retrograde/config"
	"retrograde/datastore"
	"retrograde/engine"
	"retrograde/planner"
	"retrograde/rules"
	"retrograde/telemetry/logging"
	"retrograde/telemetry/metrics"
	"retrograde/worldstate"
)

func main() {
	var (
		dataDir       string
		s3Bucket      string
		s3Prefix      string
		variableList  string
		start, end    float64
		window, step  float64
		metricsAddr   string
		snapshotEvery time.Duration
		showVersion   bool
	)

	flag.StringVar(&dataDir, "data-dir", "./data", "Local mmap-backed dataset directory")
	flag.StringVar(&s3Bucket, "s3-bucket", "", "Optional S3 bucket for the object-storage fallback tier")
	flag.StringVar(&s3Prefix, "s3-prefix", "", "Key prefix within -s3-bucket")
	flag.StringVar(&variableList, "variables", "price", "Comma separated list of variables to train over")
	flag.Float64Var(&start, "start", 0, "Window range start (time units)")
	flag.Float64Var(&end, "end", 100, "Window range end (time units)")
	flag.Float64Var(&window, "window", 10, "Batch window width")
	flag.Float64Var(&step, "step", 0, "Batch step (0 defaults to -window, non-overlapping)")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "If set, serve Prometheus /metrics on this address")
	flag.DurationVar(&snapshotEvery, "snapshot-interval", 10*time.Second, "Interval between progress snapshots (0=disabled)")
	flag.BoolVar(&showVersion, "version", false, "Show version / build info")
	flag.Parse()

	if showVersion {
		fmt.Println("retrograded (engine facade mode) - phase-1")
		return
	}

	variables := splitCSV(variableList)
	if len(variables) == 0 {
		fmt.Println("No variables provided. Use -variables price,volume")
		os.Exit(1)
	}

	logger := logging.New(slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("signal received; initiating graceful shutdown...")
		cancel()
		<-sigCh
		log.Println("second signal received; forcing exit")
		os.Exit(1)
	}()

	backends := []datastore.Backend{datastore.NewMMapBackend(dataDir)}
	if s3Bucket != "" {
		backends = append(backends, datastore.NewS3ObjectBackend(datastore.S3ObjectBackendOptions{
			Bucket: s3Bucket,
			Prefix: s3Prefix,
		}))
	}

	store, err := datastore.Open(ctx, datastore.Config{Backends: backends})
	if err != nil {
		log.Fatalf("open data store: %v", err)
	}
	defer store.Close()

	registry := exampleRegistry(variables)
	if err := registry.Freeze(variables); err != nil {
		log.Fatalf("freeze rule registry: %v", err)
	}

	var sink metrics.Sink
	if metricsAddr != "" {
		provider := metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{})
		sink = metrics.NewProviderSink(provider)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", provider.MetricsHandler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	eng, err := engine.New(config.FromEnv(config.Default()), registry, store, sink, logger)
	if err != nil {
		log.Fatalf("create engine: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("start engine: %v", err)
	}
	defer func() { _ = eng.Stop() }()

	planCfg := planner.Config{
		Variables: variables,
		Start:     start,
		End:       end,
		Window:    window,
		Step:      step,
	}
	runID, err := eng.SubmitRun(ctx, planCfg, eng.NewTrainer())
	if err != nil {
		log.Fatalf("submit run: %v", err)
	}
	fmt.Printf("submitted run %s\n", runID)

	events, err := eng.StreamEvents(runID)
	if err != nil {
		log.Fatalf("stream events: %v", err)
	}

	var ticker *time.Ticker
	if snapshotEvery > 0 {
		ticker = time.NewTicker(snapshotEvery)
		defer ticker.Stop()
	}

	done := make(chan struct{})
	go func() {
		enc := json.NewEncoder(os.Stdout)
		for ev := range events {
			if err := enc.Encode(ev); err != nil {
				log.Printf("encode event: %v", err)
			}
		}
		close(done)
	}()

	if ticker != nil {
		go func() {
			for {
				select {
				case <-ticker.C:
					snap := eng.Snapshot()
					b, _ := json.MarshalIndent(snap, "", "  ")
					fmt.Fprintf(os.Stderr, "\n=== SNAPSHOT %s ===\n%s\n", time.Now().Format(time.RFC3339), string(b))
				case <-done:
					return
				}
			}
		}()
	}

	<-done

	summary, err := eng.GetResults(ctx, runID)
	if err != nil {
		log.Fatalf("get results: %v", err)
	}
	b, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Printf("\n=== RUN SUMMARY ===\n%s\n", string(b))

	if _, err := eng.PersistResults(ctx, runID, summary); err != nil {
		log.Printf("persist results: %v", err)
	}

	final := eng.Snapshot()
	fb, _ := json.MarshalIndent(final, "", "  ")
	fmt.Fprintf(os.Stderr, "\n=== FINAL SNAPSHOT %s ===\n%s\n", time.Now().Format(time.RFC3339), string(fb))
}

// exampleRegistry builds a minimal illustrative rule set covering the
// requested variables, since SPEC_FULL.md's rules are authored per
// deployment rather than shipped with the engine — a real operator
// registers their own domain rules before Freeze.
func exampleRegistry(variables []string) *rules.Registry {
	reg := rules.NewRegistry()
	for _, v := range variables {
		v := v
		_ = reg.Register(&rules.Rule{
			ID:      "momentum-" + v,
			Trigger: func(w *worldstate.WorldState) bool { return w.GetVariable(v, 0) > 0 },
			Effects: []rules.Effect{{Target: rules.TargetVariable, Name: v, Delta: 1}},
			Reads:   []string{v},
			Writes:  []string{v},
		})
	}
	return reg
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
