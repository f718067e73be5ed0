package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/signalsfoundry/lidar-simulator/core"
	"github.com/signalsfoundry/lidar-simulator/internal/logging"
	"github.com/signalsfoundry/lidar-simulator/internal/observability"
	"github.com/signalsfoundry/lidar-simulator/timectrl"
)

func main() {
	scenarioPath := flag.String("scenario", "configs/scenario.yaml", "path to the YAML scenario")
	duration := flag.Duration("duration", 10*time.Second, "total simulated duration")
	accelerated := flag.Bool("accelerated", true, "run in accelerated mode (vs real-time)")
	metricsAddr := flag.String("metrics-addr", "", "address for the Prometheus /metrics endpoint (empty disables)")
	dumpPath := flag.String("dump", "", "append world-frame clouds as JSON lines to this file (empty disables)")
	flag.Parse()

	ctx := context.Background()
	log := logging.NewFromEnv()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		fatal(log, ctx, "init tracing", err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	collector, err := observability.NewSimCollector(nil)
	if err != nil {
		fatal(log, ctx, "register metrics", err)
	}
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error(ctx, "metrics server failed", logging.String("error", err.Error()))
			}
		}()
		log.Info(ctx, "serving metrics", logging.String("addr", *metricsAddr))
	}

	f, err := os.Open(*scenarioPath)
	if err != nil {
		fatal(log, ctx, "open scenario", err)
	}
	scenario, err := core.LoadScenario(f)
	f.Close()
	if err != nil {
		fatal(log, ctx, "load scenario", err)
	}

	mode := timectrl.RealTime
	if *accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(time.Now().UTC(), scenario.Tick, mode)

	catalog := core.NewBuiltinCatalog()
	reg, sched, _, err := scenario.Build(ctx, catalog, tc.Events(), log, collector)
	if err != nil {
		fatal(log, ctx, "build scenario", err)
	}

	var dump *cloudDumper
	if *dumpPath != "" {
		dump, err = newCloudDumper(*dumpPath)
		if err != nil {
			fatal(log, ctx, "open dump file", err)
		}
		defer dump.Close()
	}

	for _, s := range reg.Sensors() {
		s := s
		s.OnDataReady(func() {
			cloud := s.WorldOutput()
			if cloud == nil {
				return
			}
			collector.SetCloudPoints(s.Name(), string(cloud.Frame), len(cloud.Points))
			log.Debug(ctx, "capture complete",
				logging.String("sensor", s.Name()),
				logging.String("capture_id", cloud.CaptureID),
				logging.Int("points", len(cloud.Points)),
				logging.Float64("active_range", s.Restriction().ActiveRange()))
			if dump != nil {
				if err := dump.Write(cloud); err != nil {
					log.Warn(ctx, "cloud dump failed", logging.String("error", err.Error()))
				}
			}
		})
	}

	// Each sensor's host callback pokes the loop; only the leader's call
	// actually runs the shared tick.
	tc.AddListener(func(now time.Time, dt time.Duration) {
		for _, s := range reg.Sensors() {
			sched.TickFrom(ctx, s, now, dt)
		}
	})

	log.Info(ctx, "simulation starting",
		logging.Int("sensors", len(reg.Sensors())),
		logging.String("tick", scenario.Tick.String()),
		logging.String("duration", duration.String()))

	<-tc.Start(*duration)

	log.Info(ctx, "simulation finished", logging.Int("ticks", sched.TickCount()))
}

func fatal(log logging.Logger, ctx context.Context, what string, err error) {
	log.Error(ctx, what, logging.String("error", err.Error()))
	os.Exit(1)
}

// cloudDumper appends point clouds to a JSON-lines file.
type cloudDumper struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

func newCloudDumper(path string) (*cloudDumper, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &cloudDumper{f: f, enc: json.NewEncoder(f)}, nil
}

func (d *cloudDumper) Write(v any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enc.Encode(v)
}

func (d *cloudDumper) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
