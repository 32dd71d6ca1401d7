package pcapfile

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/xdump/internal/core"
	"firestige.xyz/xdump/internal/log"
	"firestige.xyz/xdump/internal/metrics"
	"firestige.xyz/xdump/internal/testutil"
)

var day = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.Local)

type record struct {
	data []byte
	ts   time.Time
	orig int
}

func readCapture(t *testing.T, path string) (*pcapgo.Reader, []record) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)

	var out []record
	for {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return r, out
		}
		require.NoError(t, err)
		out = append(out, record{data: data, ts: ci.Timestamp, orig: ci.Length})
	}
}

func newWriter(t *testing.T, dir string, in <-chan core.Frame, state *core.CaptureState, interval time.Duration) *Writer {
	t.Helper()
	w, err := New(Config{DataHome: dir, Prefix: "xdump", SnapLen: 65535, CheckInterval: interval},
		in, state, log.Nop(), WithClock(func() time.Time { return day }))
	require.NoError(t, err)
	return w
}

func start(w *Writer, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return done
}

func wait(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not stop")
	}
}

func capturePath(dir string) string {
	return filepath.Join(dir, "xdump-20240301.pcap")
}

func TestNewRejectsInvalidDataHome(t *testing.T) {
	dir := t.TempDir()
	in := make(chan core.Frame)

	_, err := New(Config{DataHome: filepath.Join(dir, "missing")}, in, core.NewCaptureState(), log.Nop())
	assert.True(t, errors.Is(err, core.ErrInvalidPath))

	plain := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(plain, nil, 0644))
	_, err = New(Config{DataHome: plain}, in, core.NewCaptureState(), log.Nop())
	assert.True(t, errors.Is(err, core.ErrInvalidPath))
}

func TestFileName(t *testing.T) {
	w := newWriter(t, t.TempDir(), make(chan core.Frame), core.NewCaptureState(), time.Second)
	assert.Equal(t, "xdump-20240301.pcap", w.FileName(day))
	assert.Equal(t, "xdump-20241231.pcap", w.FileName(time.Date(2024, time.December, 31, 23, 59, 0, 0, time.UTC)))
}

func TestCaptureCycleWritesOneFile(t *testing.T) {
	dir := t.TempDir()
	in := make(chan core.Frame, 8)
	state := core.NewCaptureState()
	state.Enable()

	ts := time.Unix(1709283600, 250000000)
	tcp := testutil.TCPFrame(40000, 80, []byte("GET /"))
	udp := testutil.UDPFrame(5353, 53, []byte("q"))
	arp := testutil.ARPFrame()
	in <- core.Frame{Data: tcp, Timestamp: ts}
	in <- core.Frame{Data: udp, Timestamp: ts.Add(time.Millisecond)}
	in <- core.Frame{Data: arp, Timestamp: ts.Add(2 * time.Millisecond)}
	close(in)

	w := newWriter(t, dir, in, state, time.Second)
	wait(t, start(w, context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "xdump-20240301.pcap", entries[0].Name())

	r, records := readCapture(t, filepath.Join(dir, entries[0].Name()))
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())
	assert.Equal(t, uint32(65535), r.Snaplen())
	require.Len(t, records, 3)
	assert.Equal(t, tcp, records[0].data)
	assert.Equal(t, udp, records[1].data)
	assert.Equal(t, arp, records[2].data)
	assert.Equal(t, len(tcp), records[0].orig)
	assert.True(t, ts.Equal(records[0].ts))
	assert.True(t, ts.Add(2*time.Millisecond).Equal(records[2].ts))
}

func TestFallingEdgeClosesFile(t *testing.T) {
	dir := t.TempDir()
	in := make(chan core.Frame)
	state := core.NewCaptureState()
	state.Enable()

	w := newWriter(t, dir, in, state, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := start(w, ctx)

	written := promtest.ToFloat64(metrics.RecordsWrittenTotal)
	frame := testutil.UDPFrame(1, 2, []byte("in window"))
	in <- core.Frame{Data: frame, Timestamp: day}
	assert.Eventually(t, func() bool {
		return promtest.ToFloat64(metrics.RecordsWrittenTotal) == written+1
	}, time.Second, 5*time.Millisecond)

	state.Disable()
	assert.Eventually(t, func() bool {
		return promtest.ToFloat64(metrics.WriterFileOpen) == 0
	}, time.Second, 5*time.Millisecond)

	// idle frames are discarded
	in <- core.Frame{Data: testutil.UDPFrame(1, 2, []byte("after window")), Timestamp: day}

	_, records := readCapture(t, filepath.Join(dir, "xdump-20240301.pcap"))
	require.Len(t, records, 1)
	assert.Equal(t, frame, records[0].data)

	cancel()
	wait(t, done)
}

func TestIdleWriterCreatesNothing(t *testing.T) {
	dir := t.TempDir()
	in := make(chan core.Frame, 2)
	in <- core.Frame{Data: testutil.TCPFrame(1, 2, nil)}
	in <- core.Frame{Data: testutil.TCPFrame(3, 4, nil)}
	close(in)

	w := newWriter(t, dir, in, core.NewCaptureState(), time.Second)
	wait(t, start(w, context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSameDayReopenOverwrites(t *testing.T) {
	dir := t.TempDir()
	state := core.NewCaptureState()
	in := make(chan core.Frame)

	w := newWriter(t, dir, in, state, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := start(w, ctx)

	path := capturePath(dir)
	cycle := func(frames ...[]byte) {
		state.Enable()
		assert.Eventually(t, func() bool {
			return promtest.ToFloat64(metrics.WriterFileOpen) == 1
		}, time.Second, 5*time.Millisecond)

		written := promtest.ToFloat64(metrics.RecordsWrittenTotal)
		for _, f := range frames {
			in <- core.Frame{Data: f, Timestamp: day}
		}
		assert.Eventually(t, func() bool {
			return promtest.ToFloat64(metrics.RecordsWrittenTotal) == written+float64(len(frames))
		}, time.Second, 5*time.Millisecond)

		state.Disable()
		assert.Eventually(t, func() bool {
			return promtest.ToFloat64(metrics.WriterFileOpen) == 0
		}, time.Second, 5*time.Millisecond)
	}

	cycle(testutil.UDPFrame(1, 1, []byte("one")), testutil.UDPFrame(1, 1, []byte("two")))
	_, records := readCapture(t, path)
	require.Len(t, records, 2)

	latest := testutil.UDPFrame(2, 2, []byte("three"))
	cycle(latest)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, records = readCapture(t, path)
	require.Len(t, records, 1)
	assert.Equal(t, latest, records[0].data)

	cancel()
	wait(t, done)
}

func TestMissingTimestampUsesClock(t *testing.T) {
	dir := t.TempDir()
	state := core.NewCaptureState()
	state.Enable()

	in := make(chan core.Frame, 1)
	in <- core.Frame{Data: testutil.ARPFrame()}
	close(in)
	wait(t, start(newWriter(t, dir, in, state, time.Second), context.Background()))

	_, records := readCapture(t, filepath.Join(dir, "xdump-20240301.pcap"))
	require.Len(t, records, 1)
	assert.True(t, day.Equal(records[0].ts))
}

func TestDrainOnCancel(t *testing.T) {
	dir := t.TempDir()
	state := core.NewCaptureState()
	state.Enable()

	in := make(chan core.Frame, 5)
	for i := 0; i < 5; i++ {
		in <- core.Frame{Data: testutil.UDPFrame(uint16(1000+i), 53, nil), Timestamp: day}
	}
	close(in)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wait(t, start(newWriter(t, dir, in, state, time.Second), ctx))

	_, records := readCapture(t, capturePath(dir))
	assert.Len(t, records, 5)
	assert.Empty(t, in)
}

func TestDrainKeepsFramesSentDuringShutdown(t *testing.T) {
	dir := t.TempDir()
	state := core.NewCaptureState()
	state.Enable()
	in := make(chan core.Frame)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := start(newWriter(t, dir, in, state, time.Second), ctx)

	// the producer's last send races with the cancellation
	late := testutil.TCPFrame(40000, 80, []byte("late"))
	time.Sleep(20 * time.Millisecond)
	in <- core.Frame{Data: late, Timestamp: day}
	close(in)
	wait(t, done)

	_, records := readCapture(t, capturePath(dir))
	require.Len(t, records, 1)
	assert.Equal(t, late, records[0].data)
}

func TestDrainGivesUpWhenQueueStaysOpen(t *testing.T) {
	dir := t.TempDir()
	state := core.NewCaptureState()
	state.Enable()
	in := make(chan core.Frame, 1)
	in <- core.Frame{Data: testutil.ARPFrame(), Timestamp: day}

	w, err := New(Config{DataHome: dir, Prefix: "xdump", DrainTimeout: 20 * time.Millisecond},
		in, state, log.Nop(), WithClock(func() time.Time { return day }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wait(t, start(w, ctx))

	_, records := readCapture(t, capturePath(dir))
	assert.Len(t, records, 1)
}

func TestCreationFailureRetries(t *testing.T) {
	dir := t.TempDir()
	// a directory in the way makes os.Create fail
	blocker := filepath.Join(dir, "xdump-20240301.pcap")
	require.NoError(t, os.Mkdir(blocker, 0755))

	state := core.NewCaptureState()
	state.Enable()
	in := make(chan core.Frame)

	begin := time.Now()
	clock := func() time.Time { return day.Add(time.Since(begin)) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := New(Config{DataHome: dir, Prefix: "xdump", CheckInterval: 10 * time.Millisecond},
		in, state, log.Nop(), WithClock(clock))
	require.NoError(t, err)
	done := start(w, ctx)

	assert.Eventually(t, func() bool {
		return promtest.ToFloat64(metrics.WriterDegraded) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, os.Remove(blocker))
	assert.Eventually(t, func() bool {
		return promtest.ToFloat64(metrics.WriterFileOpen) == 1 &&
			promtest.ToFloat64(metrics.WriterDegraded) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	wait(t, done)
}
