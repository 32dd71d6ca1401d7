// Package pcapfile writes accepted frames to the dated capture file of the current window.
package pcapfile

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/xdump/internal/core"
	"firestige.xyz/xdump/internal/log"
	"firestige.xyz/xdump/internal/metrics"
)

const dateLayout = "20060102"

// DefaultDrainTimeout bounds how long Run waits for the producer to close the
// queue after cancellation.
const DefaultDrainTimeout = time.Second

// Config configures a Writer.
type Config struct {
	DataHome      string
	Prefix        string
	SnapLen       uint32
	CheckInterval time.Duration
	DrainTimeout  time.Duration
}

// Writer is the single consumer of the frame queue. It holds a capture file
// open exactly while the capture state is enabled.
type Writer struct {
	dataHome      string
	prefix        string
	snapLen       uint32
	checkInterval time.Duration
	drainTimeout  time.Duration
	in            <-chan core.Frame
	state         *core.CaptureState
	logger        log.Logger
	now           func() time.Time

	file *os.File
	buf  *bufio.Writer
	pw   *pcapgo.Writer
	path string

	// set after a failed create; no new attempt before retryAt
	degraded bool
	retryAt  time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock replaces time.Now for file names and missing frame timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// New validates that cfg.DataHome is an existing directory.
func New(cfg Config, in <-chan core.Frame, state *core.CaptureState, logger log.Logger, opts ...Option) (*Writer, error) {
	info, err := os.Stat(cfg.DataHome)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrInvalidPath, cfg.DataHome, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", core.ErrInvalidPath, cfg.DataHome)
	}

	if cfg.SnapLen == 0 {
		cfg.SnapLen = 65535
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	w := &Writer{
		dataHome:      cfg.DataHome,
		prefix:        cfg.Prefix,
		snapLen:       cfg.SnapLen,
		checkInterval: cfg.CheckInterval,
		drainTimeout:  cfg.DrainTimeout,
		in:            in,
		state:         state,
		logger:        logger.WithField("component", "writer"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger.WithField("op", "new").Infof("data home: %s", w.dataHome)
	return w, nil
}

// Run follows the capture state until ctx is cancelled or the queue is closed.
// On cancellation it keeps writing until the producer closes the queue or the
// drain timeout expires, then closes the file.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	w.sync()
	for {
		select {
		case <-ctx.Done():
			w.drain()
			w.closeFile()
			w.logger.WithField("op", "run").Info("writer stopped")
			return nil
		case <-ticker.C:
			w.sync()
			w.flush()
		case frame, ok := <-w.in:
			if !ok {
				w.closeFile()
				w.logger.WithField("op", "run").Info("queue closed, writer stopped")
				return nil
			}
			w.sync()
			w.write(frame)
		}
	}
}

// FileName returns the capture file name for the day of t.
func (w *Writer) FileName(t time.Time) string {
	return fmt.Sprintf("%s-%s.pcap", w.prefix, t.Format(dateLayout))
}

// sync opens or closes the file to match the capture state.
func (w *Writer) sync() {
	enabled := w.state.Enabled()
	switch {
	case enabled && w.pw == nil:
		now := w.now()
		if w.degraded && now.Before(w.retryAt) {
			return
		}
		if err := w.openFile(now); err != nil {
			metrics.WriteErrorsTotal.Inc()
			w.logger.WithField("op", "open").WithError(err).Error("failed to create capture file")
			w.setDegraded(true)
			w.retryAt = now.Add(w.checkInterval)
			return
		}
		w.setDegraded(false)
	case !enabled && w.pw != nil:
		w.closeFile()
	case !enabled && w.degraded:
		w.setDegraded(false)
	}
}

func (w *Writer) openFile(now time.Time) error {
	path := filepath.Join(w.dataHome, w.FileName(now))
	w.logger.WithField("op", "open").Infof("creating new pcap file: %s", path)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	buf := bufio.NewWriter(f)
	pw := pcapgo.NewWriter(buf)
	if err := pw.WriteFileHeader(w.snapLen, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return fmt.Errorf("write pcap header: %w", err)
	}

	w.file, w.buf, w.pw, w.path = f, buf, pw, path
	metrics.WriterFileOpen.Set(1)
	return nil
}

func (w *Writer) write(frame core.Frame) {
	if w.pw == nil {
		metrics.FramesDroppedTotal.WithLabelValues(metrics.ReasonIdle).Inc()
		return
	}

	ts := frame.Timestamp
	if ts.IsZero() {
		ts = w.now()
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: frame.Len(),
		Length:        frame.Len(),
	}
	if err := w.pw.WritePacket(ci, frame.Data); err != nil {
		metrics.WriteErrorsTotal.Inc()
		w.logger.WithField("op", "write").WithError(err).Error("failed to write packet")
		return
	}
	metrics.RecordsWrittenTotal.Inc()
}

// drain writes queued frames until the queue is closed. Frames the producer
// sends while it is shutting down are kept.
func (w *Writer) drain() {
	timer := time.NewTimer(w.drainTimeout)
	defer timer.Stop()
	for {
		select {
		case frame, ok := <-w.in:
			if !ok {
				return
			}
			w.write(frame)
		case <-timer.C:
			w.logger.WithField("op", "drain").Warnf("queue not closed after %s, %d frames left", w.drainTimeout, len(w.in))
			return
		}
	}
}

func (w *Writer) flush() {
	if w.buf == nil {
		return
	}
	if err := w.buf.Flush(); err != nil {
		metrics.WriteErrorsTotal.Inc()
		w.logger.WithField("op", "flush").WithError(err).Error("failed to flush capture file")
	}
}

func (w *Writer) closeFile() {
	if w.file == nil {
		return
	}
	w.logger.WithField("op", "close").Infof("closing pcap file: %s", w.path)

	w.flush()
	if err := w.file.Close(); err != nil {
		metrics.WriteErrorsTotal.Inc()
		w.logger.WithField("op", "close").WithError(err).Error("failed to close capture file")
	}
	w.file, w.buf, w.pw, w.path = nil, nil, nil, ""
	metrics.WriterFileOpen.Set(0)
}

func (w *Writer) setDegraded(v bool) {
	w.degraded = v
	metrics.BoolGauge(metrics.WriterDegraded, v)
}
