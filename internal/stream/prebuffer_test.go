package stream

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"
)

// scriptedSource feeds chunks on demand and records Close, standing in for
// encoder output that the test controls precisely.
type scriptedSource struct {
	data   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{data: make(chan []byte), closed: make(chan struct{})}
}

func (s *scriptedSource) Read(p []byte) (int, error) {
	select {
	case chunk, ok := <-s.data:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, chunk), nil
	case <-s.closed:
		return 0, io.ErrClosedPipe
	}
}

func (s *scriptedSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *scriptedSource) wasClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func patternBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestPreBufferThresholdFlush(t *testing.T) {
	data := patternBytes(256 << 10)
	source := io.NopCloser(bytes.NewReader(data))

	relay := NewPreBufferRelay(source, 100<<10, time.Minute, discardLogger())
	defer relay.Close()

	got, err := io.ReadAll(relay)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("output differs: got %d bytes, want %d", len(got), len(data))
	}
	if reason := relay.FlushReason(); reason != FlushThreshold {
		t.Fatalf("flush reason = %q, want %q", reason, FlushThreshold)
	}
	if flushed := relay.FlushedBytes(); flushed < 100<<10 {
		t.Fatalf("flushed %d bytes, want >= threshold", flushed)
	}
}

func TestPreBufferEarlyEOF(t *testing.T) {
	data := []byte("short stream")
	source := io.NopCloser(bytes.NewReader(data))

	relay := NewPreBufferRelay(source, 1<<20, time.Minute, discardLogger())
	defer relay.Close()

	got, err := io.ReadAll(relay)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q, want %q", got, data)
	}
	if reason := relay.FlushReason(); reason != FlushEOF {
		t.Fatalf("flush reason = %q, want %q", reason, FlushEOF)
	}
}

func TestPreBufferTimeoutFlush(t *testing.T) {
	source := newScriptedSource()
	relay := NewPreBufferRelay(source, 1<<20, 50*time.Millisecond, discardLogger())
	defer relay.Close()

	payload := []byte("slow encoder output")
	source.data <- payload

	// The threshold is far away; only the timer can release these bytes.
	buf := make([]byte, 64)
	n, err := relay.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("got %q, want %q", buf[:n], payload)
	}
	if reason := relay.FlushReason(); reason != FlushTimeout {
		t.Fatalf("flush reason = %q, want %q", reason, FlushTimeout)
	}

	// Post-flush chunks pass straight through.
	more := []byte("more")
	source.data <- more
	n, err = relay.Read(buf)
	if err != nil {
		t.Fatalf("read after flush: %v", err)
	}
	if !bytes.Equal(buf[:n], more) {
		t.Fatalf("got %q, want %q", buf[:n], more)
	}
}

func TestPreBufferCloseReleasesSource(t *testing.T) {
	source := newScriptedSource()
	relay := NewPreBufferRelay(source, 1<<20, time.Minute, discardLogger())

	source.data <- []byte("buffered but never flushed")

	if err := relay.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for !source.wasClosed() {
		select {
		case <-deadline:
			t.Fatal("source not released after relay close")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if _, err := relay.Read(make([]byte, 16)); err == nil {
		t.Fatal("expected read error after close")
	}
}

func TestPreBufferCloseIdempotent(t *testing.T) {
	source := io.NopCloser(bytes.NewReader(nil))
	relay := NewPreBufferRelay(source, 1024, time.Minute, discardLogger())
	if err := relay.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := relay.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
