package source

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/xdump/internal/core"
	"firestige.xyz/xdump/internal/filter"
	"firestige.xyz/xdump/internal/log"
	"firestige.xyz/xdump/internal/testutil"
)

type read struct {
	data []byte
	ts   time.Time
	err  error
}

// fakeHandle replays scripted reads, then returns tail forever.
type fakeHandle struct {
	mu     sync.Mutex
	reads  []read
	tail   read
	closed bool
}

func newFakeHandle(tail read, reads ...read) *fakeHandle {
	return &fakeHandle{reads: reads, tail: tail}
}

func (h *fakeHandle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.tail
	if len(h.reads) > 0 {
		r = h.reads[0]
		h.reads = h.reads[1:]
	}
	if r.err != nil {
		return nil, gopacket.CaptureInfo{}, r.err
	}
	return r.data, gopacket.CaptureInfo{Timestamp: r.ts, CaptureLength: len(r.data), Length: len(r.data)}, nil
}

func (h *fakeHandle) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func frames(data ...[]byte) []read {
	out := make([]read, 0, len(data))
	for _, d := range data {
		out = append(out, read{data: d})
	}
	return out
}

func enabledState() *core.CaptureState {
	s := core.NewCaptureState()
	s.Enable()
	return s
}

func runToEOF(t *testing.T, src *Source) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- src.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("source did not stop at end of input")
	}
}

func drain(q <-chan core.Frame) [][]byte {
	var out [][]byte
	for f := range q {
		out = append(out, f.Data)
	}
	return out
}

func TestExcludedPortsAreDropped(t *testing.T) {
	ssh := testutil.TCPFrame(51000, 22, nil)
	httpsReply := testutil.TCPFrame(443, 51001, []byte("tls"))
	web := testutil.TCPFrame(51002, 80, []byte("GET /"))
	dns := testutil.UDPFrame(5353, 53, []byte("q"))
	arp := testutil.ARPFrame()
	icmp := testutil.ICMPFrame()
	frag := testutil.FragmentFrame()
	broken := testutil.TruncatedTCPFrame(10)

	h := newFakeHandle(read{err: io.EOF}, frames(ssh, httpsReply, web, dns, arp, icmp, frag, broken)...)
	q := make(chan core.Frame, 128)
	src := New(h, filter.New([]uint16{22, 443}), enabledState(), q, log.Nop(), WithReadInterval(0))

	runToEOF(t, src)

	assert.Equal(t, [][]byte{web, dns, arp, frag}, drain(q))
	assert.True(t, h.isClosed())
}

func TestFragmentsCanBeDropped(t *testing.T) {
	frag := testutil.FragmentFrame()
	web := testutil.TCPFrame(51002, 80, nil)

	h := newFakeHandle(read{err: io.EOF}, frames(frag, web)...)
	q := make(chan core.Frame, 8)
	src := New(h, filter.New(nil).DropFragments(true), enabledState(), q, log.Nop(), WithReadInterval(0))

	runToEOF(t, src)

	assert.Equal(t, [][]byte{web}, drain(q))
}

func TestIdleFramesAreDiscarded(t *testing.T) {
	h := newFakeHandle(read{err: io.EOF}, frames(testutil.TCPFrame(1, 2, nil), testutil.UDPFrame(3, 4, nil))...)
	q := make(chan core.Frame, 128)
	src := New(h, filter.New(nil), core.NewCaptureState(), q, log.Nop(), WithReadInterval(0))

	runToEOF(t, src)

	assert.Empty(t, drain(q))
}

func TestReadErrorsAreAbsorbed(t *testing.T) {
	web := testutil.TCPFrame(40000, 8080, nil)
	h := newFakeHandle(read{err: io.EOF},
		read{err: core.ErrNoFrame},
		read{err: errors.New("interface went away")},
		read{data: web},
	)
	q := make(chan core.Frame, 128)
	src := New(h, filter.New(nil), enabledState(), q, log.Nop(), WithReadInterval(0))

	runToEOF(t, src)

	assert.Equal(t, [][]byte{web}, drain(q))
}

func TestFrameKeepsCaptureTimestamp(t *testing.T) {
	ts := time.Date(2024, time.March, 1, 9, 30, 0, 123000, time.UTC)
	frame := testutil.UDPFrame(1000, 2000, []byte("x"))
	h := newFakeHandle(read{err: io.EOF}, read{data: frame, ts: ts})
	q := make(chan core.Frame, 1)
	src := New(h, filter.New(nil), enabledState(), q, log.Nop(), WithReadInterval(0))

	runToEOF(t, src)

	got := <-q
	assert.Equal(t, frame, got.Data)
	assert.True(t, ts.Equal(got.Timestamp))
}

func TestHookRejects(t *testing.T) {
	web := testutil.TCPFrame(40000, 80, nil)
	arp := testutil.ARPFrame()
	onlyIPv4 := filter.HookFunc(func(frame []byte, decoded core.DecodedFrame) bool {
		return decoded.Class != core.ClassNonIPv4
	})

	h := newFakeHandle(read{err: io.EOF}, frames(web, arp)...)
	q := make(chan core.Frame, 128)
	src := New(h, filter.New(nil, onlyIPv4), enabledState(), q, log.Nop(), WithReadInterval(0))

	runToEOF(t, src)

	assert.Equal(t, [][]byte{web}, drain(q))
}

func TestFullQueueBlocksUntilCancel(t *testing.T) {
	frame := testutil.UDPFrame(1000, 2000, nil)
	h := newFakeHandle(read{data: frame})
	q := make(chan core.Frame, 2)
	src := New(h, filter.New(nil), enabledState(), q, log.Nop(), WithReadInterval(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(q) == cap(q) }, time.Second, time.Millisecond)

	select {
	case <-done:
		t.Fatal("source returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("source did not observe cancellation while blocked on the queue")
	}

	assert.Len(t, drain(q), 2)
	assert.True(t, h.isClosed())
}

func TestReadIntervalObservesCancel(t *testing.T) {
	h := newFakeHandle(read{err: core.ErrNoFrame})
	q := make(chan core.Frame, 1)
	src := New(h, filter.New(nil), enabledState(), q, log.Nop(), WithReadInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("source did not stop during the read interval")
	}
	_, open := <-q
	assert.False(t, open)
}

type statsHandle struct {
	*fakeHandle
	calls int
}

func (h *statsHandle) Stats() (uint, uint, error) {
	h.calls++
	return 10, 1, nil
}

func TestKernelStatsReadOnExit(t *testing.T) {
	h := &statsHandle{fakeHandle: newFakeHandle(read{err: io.EOF})}
	q := make(chan core.Frame, 1)
	src := New(h, filter.New(nil), enabledState(), q, log.Nop(), WithReadInterval(0))

	runToEOF(t, src)

	assert.Equal(t, 1, h.calls)
	assert.True(t, h.isClosed())
}
