// Command gmf-demo runs a synthetic media pipeline built from a config file.
//
// Each configured task gets elements bound to it, events are logged through
// zap, Prometheus metrics are served on the configured address and the
// configured cron schedules drive the tasks until SIGINT or SIGTERM.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Swind/go-media-task/config"
	"github.com/Swind/go-media-task/core"
	"github.com/Swind/go-media-task/element"
	"github.com/Swind/go-media-task/method"
	obs "github.com/Swind/go-media-task/observability/prometheus"
	"github.com/Swind/go-media-task/observability/zaplog"
	"github.com/Swind/go-media-task/pipeline"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file (yaml)")
	frameRate := flag.Int("fps", 50, "synthetic frames per second per source")
	flag.Parse()

	if err := run(*cfgPath, *frameRate); err != nil {
		fmt.Fprintln(os.Stderr, "gmf-demo:", err)
		os.Exit(1)
	}
}

func run(cfgPath string, frameRate int) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	zl, err := zaplog.SetupLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	restore := zaplog.Install(zl)
	defer restore()
	logger := zaplog.New(zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pcfg := pipeline.DefaultConfig()
	pcfg.Name = cfg.Pipeline.Name
	pcfg.Retry = cfg.Pipeline.Retry.Policy()
	pcfg.Logger = logger.Named("pipeline")

	var poller *obs.SnapshotPoller
	if cfg.Metrics.Enable {
		reg := prom.NewRegistry()
		exporter, err := obs.NewMetricsExporter(cfg.Metrics.Namespace, reg, obs.ExporterOptions{})
		if err != nil {
			return err
		}
		pcfg.Metrics = exporter

		poller, err = obs.NewSnapshotPoller(reg, cfg.Metrics.PollInterval)
		if err != nil {
			return err
		}

		shutdown := serveMetrics(cfg.Metrics, reg, zl)
		defer shutdown()
	}

	p := pipeline.New(pcfg)
	defer func() {
		if err := p.Close(); err != nil {
			zl.Warn("pipeline close", zap.Error(err))
		}
	}()

	p.AddListener(func(ev core.Event) {
		fields := []zap.Field{
			zap.String("task", ev.Task),
			zap.Stringer("from", ev.Prev),
			zap.Stringer("to", ev.State),
		}
		if err, ok := ev.Payload.(error); ok {
			fields = append(fields, zap.Error(err))
		}
		zl.Info("task state", fields...)
	})

	interval := time.Second / time.Duration(max(frameRate, 1))
	for i, name := range cfg.Pipeline.Tasks {
		tc, err := cfg.Task.ForTask(name)
		if err != nil {
			return err
		}
		if _, err := p.AddTask(name, tc); err != nil {
			return err
		}
		els, err := buildElements(name, i, interval, logger)
		if err != nil {
			return err
		}
		for _, el := range els {
			if err := p.AddElement(name, el); err != nil {
				return err
			}
		}
	}

	for _, sc := range cfg.Pipeline.Schedules {
		op, err := sc.ParsedOp()
		if err != nil {
			return err
		}
		id, err := p.Schedule(sc.Spec, sc.Task, op)
		if err != nil {
			return err
		}
		zl.Info("schedule added", zap.Uint64("id", uint64(id)), zap.String("spec", sc.Spec), zap.Stringer("op", op))
	}

	if poller != nil {
		poller.AddSource(p.Name(), p)
		poller.Start(ctx)
		defer poller.Stop()
	}

	if cfg.Pipeline.AutoRun {
		if err := p.Run(ctx); err != nil {
			return fmt.Errorf("run pipeline: %w", err)
		}
	}

	tuneElements(p, zl)

	<-ctx.Done()
	zl.Info("shutting down")
	return nil
}

// buildElements gives even tasks an audio chain and odd tasks a video chain.
func buildElements(task string, i int, interval time.Duration, logger *zaplog.Logger) ([]element.Element, error) {
	src := pacedSource(interval, 256)
	l := logger.Named(task)

	if i%2 == 0 {
		alc, err := element.NewALC(element.ALCConfig{
			Config: element.Config{Name: task + ".alc", Source: src, Logger: l},
		})
		if err != nil {
			return nil, err
		}
		eq, err := element.NewEQ(element.EQConfig{Config: element.Config{Name: task + ".eq", Logger: l}})
		if err != nil {
			return nil, err
		}
		return []element.Element{alc, eq}, nil
	}

	fps, err := element.NewFPSConverter(element.FPSConfig{
		Config: element.Config{Name: task + ".fps", Source: src, Logger: l},
	})
	if err != nil {
		return nil, err
	}
	crop, err := element.NewCrop(element.CropConfig{Config: element.Config{Name: task + ".crop", Logger: l}})
	if err != nil {
		return nil, err
	}
	return []element.Element{fps, crop}, nil
}

// tuneElements exercises the method dispatcher the way a remote control
// plane would: by method name with typed arguments.
func tuneElements(p *pipeline.Pipeline, zl *zap.Logger) {
	calls := []struct {
		element, method string
		fill            func(*method.ExecContext) error
	}{
		{"audio.alc", element.MethodALCSetGain, func(ec *method.ExecContext) error {
			if err := ec.SetUint8(element.ArgIdx, 0); err != nil {
				return err
			}
			return ec.SetInt8(element.ArgGain, -6)
		}},
		{"video.fps", element.MethodSetFPS, func(ec *method.ExecContext) error {
			return ec.SetUint16(element.ArgFPS, 25)
		}},
	}

	for _, c := range calls {
		el, err := p.Element(c.element)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err == nil {
			err = el.Call(c.method, c.fill)
		}
		if err != nil {
			zl.Warn("method call failed", zap.String("element", c.element), zap.String("method", c.method), zap.Error(err))
			continue
		}
		zl.Info("method applied", zap.String("element", c.element), zap.String("method", c.method))
	}
}

// pacedSource returns random frames of size bytes, one per interval.
func pacedSource(interval time.Duration, size int) element.Source {
	next := time.Now()
	return func(ctx context.Context) ([]byte, error) {
		next = next.Add(interval)
		if d := time.Until(next); d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			next = time.Now()
		}
		frame := make([]byte, size)
		_, _ = rand.Read(frame)
		return frame, nil
	}
}

func serveMetrics(c config.MetricsConfig, reg *prom.Registry, zl *zap.Logger) (shutdown func()) {
	mux := http.NewServeMux()
	mux.Handle(c.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: c.Listen, Handler: mux}

	go func() {
		zl.Info("metrics endpoint up", zap.String("addr", c.Listen), zap.String("path", c.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("metrics server", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
