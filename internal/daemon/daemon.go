// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/pflag"

	"firestige.xyz/xdump/internal/config"
	"firestige.xyz/xdump/internal/core"
	"firestige.xyz/xdump/internal/filter"
	"firestige.xyz/xdump/internal/log"
	"firestige.xyz/xdump/internal/metrics"
	"firestige.xyz/xdump/internal/scheduler"
	"firestige.xyz/xdump/internal/sink/pcapfile"
	"firestige.xyz/xdump/internal/source"
)

// Daemon wires the scheduler, the frame source and the file writer around one
// capture state and one frame queue.
type Daemon struct {
	// Configuration
	config     *config.Config
	configPath string
	flags      *pflag.FlagSet
	logger     log.Logger

	// Core components
	state         *core.CaptureState
	queue         chan core.Frame
	scheduler     *scheduler.Scheduler
	source        *source.Source
	writer        *pcapfile.Writer
	metricsServer *metrics.Server // nil if metrics disabled

	// injected for tests
	handle source.Handle
	clock  func() time.Time

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	sigChan chan os.Signal
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithHandle uses h instead of opening the configured capture handle.
func WithHandle(h source.Handle) Option {
	return func(d *Daemon) {
		d.handle = h
	}
}

// WithClock replaces time.Now for the scheduler.
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) {
		d.clock = now
	}
}

// New creates a Daemon. configPath and flags are kept for reloads.
func New(cfg *config.Config, configPath string, flags *pflag.FlagSet, opts ...Option) *Daemon {
	d := &Daemon{
		config:     cfg,
		configPath: configPath,
		flags:      flags,
		logger:     log.GetLogger().WithField("component", "daemon"),
		state:      core.NewCaptureState(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start builds every component. Any error here is fatal.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := log.Init(&d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	d.logger = log.GetLogger().WithField("component", "daemon")
	d.logger.WithField("op", "start").Infof("starting xdump, config %s", d.configPath)

	// 2. Capture window
	window, err := scheduler.ParseWindow(d.config.StartTime, d.config.EndTime)
	if err != nil {
		return err
	}

	// 3. Writer, which validates data_home
	d.queue = make(chan core.Frame, d.config.Capture.QueueSize)
	d.writer, err = pcapfile.New(pcapfile.Config{
		DataHome:      d.config.DataHome,
		Prefix:        d.config.FilePrefix,
		SnapLen:       uint32(d.config.Capture.SnapLen),
		CheckInterval: d.config.Writer.CheckInterval,
		DrainTimeout:  d.config.Writer.DrainTimeout,
	}, d.queue, d.state, log.GetLogger())
	if err != nil {
		return err
	}

	// 4. Capture handle
	if d.handle == nil {
		d.handle, err = source.OpenHandle(d.config)
		if err != nil {
			return err
		}
	}
	frameFilter := filter.New(d.config.Ports()).DropFragments(d.config.Capture.DropFragments)
	d.source = source.New(d.handle, frameFilter, d.state, d.queue, log.GetLogger(),
		source.WithReadInterval(d.config.Capture.ReadInterval))

	d.scheduler = scheduler.New(window, d.state, log.GetLogger(), scheduler.WithClock(d.clock))

	// 5. Write PID file
	if err := d.writePIDFile(); err != nil {
		d.handle.Close()
		return err
	}

	// 6. Start metrics server
	if err := d.startMetrics(); err != nil {
		d.handle.Close()
		_ = d.removePIDFile()
		return err
	}

	d.logger.WithField("op", "start").Infof("capturing on %q (%s), window %s, data home %s",
		d.config.Interface, d.config.Capture.Type, window, d.config.DataHome)
	return nil
}

// Run blocks until SIGINT/SIGTERM, Shutdown, or the end of the capture input.
// SIGHUP reloads the configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(d.sigChan)

	// state must be current before the source reads its first frame
	d.scheduler.Prime()

	p := pool.New().WithContext(d.ctx).WithMaxGoroutines(d.config.Workers)
	p.Go(d.scheduler.Run)
	p.Go(d.source.Run)
	p.Go(func(ctx context.Context) error {
		// the writer ends when the queue is closed, which also ends the daemon
		defer d.cancel()
		return d.writer.Run(ctx)
	})

	done := make(chan error, 1)
	go func() { done <- p.Wait() }()

	d.logger.WithField("op", "run").Info("daemon running, waiting for signals")
	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				d.logger.WithField("op", "run").Infof("received shutdown signal %s", sig)
				d.cancel()
			case syscall.SIGHUP:
				d.logger.WithField("op", "run").Info("received reload signal")
				if err := d.Reload(); err != nil {
					d.logger.WithField("op", "reload").WithError(err).Error("failed to reload config")
				}
			}
		case err := <-done:
			d.Stop()
			return err
		}
	}
}

// Shutdown asks Run to stop as if SIGTERM was received.
func (d *Daemon) Shutdown() {
	d.cancel()
}

// Stop releases what Start acquired outside the worker pool.
func (d *Daemon) Stop() {
	d.logger.WithField("op", "stop").Info("initiating graceful shutdown")
	d.cancel()

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			d.logger.WithField("op", "stop").WithError(err).Error("error stopping metrics server")
		}
		d.metricsServer = nil
	}

	if err := d.removePIDFile(); err != nil {
		d.logger.WithField("op", "stop").WithError(err).Error("error removing PID file")
	}

	d.logger.WithField("op", "stop").Info("daemon stopped gracefully")
}

// Reload re-reads the configuration. Only the log level is applied live;
// other changes are reported as requiring a restart.
func (d *Daemon) Reload() error {
	d.logger.WithField("op", "reload").Infof("reloading configuration from %s", d.configPath)

	newConfig, err := config.Load(d.configPath, d.flags)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	if newConfig.Log.Level != d.config.Log.Level {
		if err := log.GetLogger().SetLevel(newConfig.Log.Level); err != nil {
			return err
		}
		d.logger.WithField("op", "reload").Infof("log level changed to %s", newConfig.Log.Level)
		d.config.Log.Level = newConfig.Log.Level
	}

	var requiresRestart []string
	if newConfig.Interface != d.config.Interface {
		requiresRestart = append(requiresRestart, "interface")
	}
	if newConfig.StartTime != d.config.StartTime || newConfig.EndTime != d.config.EndTime {
		requiresRestart = append(requiresRestart, "window")
	}
	if newConfig.DataHome != d.config.DataHome || newConfig.FilePrefix != d.config.FilePrefix {
		requiresRestart = append(requiresRestart, "output")
	}
	if fmt.Sprint(newConfig.ExcludedPorts) != fmt.Sprint(d.config.ExcludedPorts) {
		requiresRestart = append(requiresRestart, "excluded_ports")
	}
	if newConfig.Capture != d.config.Capture {
		requiresRestart = append(requiresRestart, "capture")
	}
	if len(requiresRestart) > 0 {
		d.logger.WithField("op", "reload").Warnf("changes to %v require a restart", requiresRestart)
	}
	return nil
}

// CaptureState exposes the shared capture state.
func (d *Daemon) CaptureState() *core.CaptureState {
	return d.state
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		d.logger.WithField("op", "start").Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path, log.GetLogger())
	if err := d.metricsServer.Start(d.ctx); err != nil {
		d.metricsServer = nil
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.config.PIDFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.config.PIDFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.config.PIDFile, err)
	}

	d.logger.WithField("op", "start").Debugf("PID file written: %s (%d)", d.config.PIDFile, pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.config.PIDFile == "" {
		return nil
	}

	if err := os.Remove(d.config.PIDFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.config.PIDFile, err)
	}
	return nil
}
