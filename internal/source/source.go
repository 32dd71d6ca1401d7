// Package source reads frames from a capture handle, filters them and feeds the writer queue.
package source

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/gopacket"

	"firestige.xyz/xdump/internal/core"
	"firestige.xyz/xdump/internal/core/decoder"
	"firestige.xyz/xdump/internal/filter"
	"firestige.xyz/xdump/internal/log"
	"firestige.xyz/xdump/internal/metrics"
)

// statser is implemented by handles that expose kernel ring counters.
type statser interface {
	Stats() (received, dropped uint, err error)
}

// Source is the single producer of the frame queue.
type Source struct {
	handle       Handle
	decoder      *decoder.Decoder
	filter       *filter.Filter
	state        *core.CaptureState
	out          chan<- core.Frame
	readInterval time.Duration
	logger       log.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithReadInterval sets the idle delay between read attempts. Zero disables it.
func WithReadInterval(d time.Duration) Option {
	return func(s *Source) {
		s.readInterval = d
	}
}

func New(handle Handle, f *filter.Filter, state *core.CaptureState, out chan<- core.Frame, logger log.Logger, opts ...Option) *Source {
	s := &Source{
		handle:       handle,
		decoder:      decoder.New(),
		filter:       f,
		state:        state,
		out:          out,
		readInterval: time.Millisecond,
		logger:       logger.WithField("component", "source"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads until ctx is cancelled or the handle reports io.EOF.
// On return the handle is closed and the queue is closed.
func (s *Source) Run(ctx context.Context) error {
	defer close(s.out)
	defer s.handle.Close()
	defer s.logStats()

	s.logger.WithField("op", "run").Infof("source started, %d excluded ports", s.filter.ExcludedPorts())

	for {
		if ctx.Err() != nil {
			s.logger.WithField("op", "run").Info("source stopped")
			return nil
		}

		data, ci, err := s.handle.ReadPacketData()
		switch {
		case err == nil:
			if !s.handleFrame(ctx, data, ci) {
				s.logger.WithField("op", "run").Info("source stopped")
				return nil
			}
		case errors.Is(err, core.ErrNoFrame):
		case errors.Is(err, io.EOF):
			s.logger.WithField("op", "run").Info("end of capture input")
			return nil
		default:
			metrics.ReadErrorsTotal.Inc()
			s.logger.WithField("op", "read").WithError(err).Warn("failed to read frame")
		}

		if s.readInterval > 0 && !sleep(ctx, s.readInterval) {
			s.logger.WithField("op", "run").Info("source stopped")
			return nil
		}
	}
}

// handleFrame filters one frame and forwards it. It returns false only when ctx
// was cancelled while waiting for queue space.
func (s *Source) handleFrame(ctx context.Context, data []byte, ci gopacket.CaptureInfo) bool {
	metrics.FramesReadTotal.Inc()

	if !s.state.Enabled() {
		metrics.FramesDroppedTotal.WithLabelValues(metrics.ReasonIdle).Inc()
		return true
	}

	decoded, err := s.decoder.Decode(data)
	if err != nil {
		metrics.FramesDroppedTotal.WithLabelValues(metrics.ReasonMalformed).Inc()
		s.logger.WithField("op", "decode").WithError(err).Warn("dropping malformed frame")
		return true
	}

	if verdict := s.filter.Apply(data, decoded); verdict != filter.Accept {
		metrics.FramesDroppedTotal.WithLabelValues(verdict.String()).Inc()
		if s.logger.IsDebugEnabled() {
			s.logger.WithField("op", "filter").Debugf("drop %s: class=%s src=%d dst=%d",
				verdict, decoded.Class, decoded.SrcPort, decoded.DstPort)
		}
		return true
	}

	select {
	case s.out <- core.Frame{Data: data, Timestamp: ci.Timestamp}:
		metrics.FramesForwardedTotal.Inc()
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Source) logStats() {
	st, ok := s.handle.(statser)
	if !ok {
		return
	}
	received, dropped, err := st.Stats()
	if err != nil {
		s.logger.WithField("op", "stats").WithError(err).Warn("failed to read kernel counters")
		return
	}
	s.logger.WithField("op", "stats").Infof("kernel received %d frames, dropped %d", received, dropped)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
