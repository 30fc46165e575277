package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"mediastream/internal/domain"
)

// encoderState is the supervision FSM of one encoder invocation.
//
//	Idle ──Start──▶ Piping ──Kill──▶ Killed
//
// Killed is terminal and is entered only on forced teardown (consumer
// disconnect, a failure surface). Natural process exit is not a Kill: it
// releases the feeding side but leaves the stdout read end open, so bytes
// still buffered in the pipe drain to the consumer before it sees EOF.
type encoderState int32

const (
	encoderIdle encoderState = iota
	encoderPiping
	encoderKilled
)

// stderrTailSize bounds how much trailing encoder stderr is retained.
const stderrTailSize = 4 << 10

// Encoder spawns and supervises the external encoding process.
type Encoder struct {
	binary string
	logger *slog.Logger
}

func NewEncoder(binary string, logger *slog.Logger) *Encoder {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{binary: bin, logger: logger}
}

// BuildEncoderArgs constructs the encoder argument vector for a profile and
// an optional demuxer hint. Pure function, no side effects.
//
// The flags encode playback compatibility constraints: piped input gets an
// explicit input format when the container is known, video output is capped
// at 720p with even dimensions, constrained to baseline H.264 and yuv420p
// for mobile browsers, fragmented so playback starts before the stream
// completes, and rate-capped for predictable network behavior. MP3 output
// carries a Xing duration header, ID3v2.3 tags and no bit reservoir so
// frames are self-contained.
func BuildEncoderArgs(profile domain.TranscodeProfile, demuxerHint string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-stats",
		"-threads", "0",
	}
	if demuxerHint != "" {
		args = append(args, "-f", demuxerHint)
	}
	args = append(args, "-i", "pipe:0")

	switch profile.OutputFormat {
	case "mp4":
		args = append(args,
			"-map", "0:v:0",
			"-map", "0:a:0?",
			"-vf", fmt.Sprintf("scale=-2:'min(%d,ih)'", profile.MaxHeight),
			"-c:v", profile.VideoCodec,
			"-preset", profile.Preset,
			"-tune", "zerolatency",
			"-crf", strconv.Itoa(profile.CRF),
			"-profile:v", "baseline",
			"-level", "3.0",
			"-pix_fmt", "yuv420p",
			"-maxrate", profile.VideoMaxRate,
			"-bufsize", profile.VideoBufSize,
			"-g", strconv.Itoa(profile.GOPSize),
			"-sc_threshold", "0",
			"-c:a", profile.AudioCodec,
			"-b:a", profile.AudioBitrate,
			"-ac", "2",
			"-movflags", "frag_keyframe+empty_moov+default_base_moof",
			"-f", "mp4",
		)
	case "mp3":
		args = append(args,
			"-map", "0:a:0",
			"-c:a", profile.AudioCodec,
			"-b:a", profile.AudioBitrate,
			"-ar", strconv.Itoa(profile.SampleRate),
			"-write_xing", "1",
			"-id3v2_version", "3",
			"-reservoir", "0",
			"-f", "mp3",
		)
	default:
		args = append(args, "-f", profile.OutputFormat)
	}

	return append(args, "pipe:1")
}

// EncoderSession owns one live encoder process and its three pipes.
type EncoderSession struct {
	cmd    *exec.Cmd
	logger *slog.Logger

	state       atomic.Int32
	killOnce    sync.Once
	releaseOnce sync.Once

	source io.ReadCloser
	stdin  *os.File // parent's write end
	stdout *os.File // parent's read end
	stderr *os.File // parent's read end

	mimeType string

	done    chan struct{}
	exitErr error

	tailMu sync.Mutex
	tail   []byte

	progressSec atomic.Uint64 // float64 bits
}

// Start builds the argument vector, spawns the encoder and wires its I/O.
// Spawn failure is returned synchronously; it never surfaces as a delayed
// stream error. On success the source reader is owned by the session and
// closed during teardown.
func (e *Encoder) Start(source io.ReadCloser, profile domain.TranscodeProfile, demuxerHint string) (*EncoderSession, error) {
	args := BuildEncoderArgs(profile, demuxerHint)

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, err
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, err
	}

	cmd := exec.Command(e.binary, args...)
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	s := &EncoderSession{
		cmd:      cmd,
		logger:   e.logger,
		source:   source,
		stdin:    stdinW,
		stdout:   stdoutR,
		stderr:   stderrR,
		mimeType: profile.OutputMime,
		done:     make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		e.logger.Error("encoder spawn failed",
			slog.String("binary", e.binary),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	// Child owns its ends now.
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	s.state.Store(int32(encoderPiping))
	e.logger.Info("encoder started",
		slog.String("profile", profile.Name),
		slog.String("demuxer", demuxerHint),
	)

	go s.pipeStdin()
	go s.drainStderr()
	go s.awaitExit()

	return s, nil
}

// Output returns the encoded byte stream. Closing it disconnects the
// consumer and tears the session down.
func (s *EncoderSession) Output() io.ReadCloser {
	return &encoderOutput{session: s}
}

func (s *EncoderSession) MimeType() string { return s.mimeType }

// Done is closed once the process has exited and teardown completed.
func (s *EncoderSession) Done() <-chan struct{} { return s.done }

// Err returns the process exit error, nil while running or on clean exit.
func (s *EncoderSession) Err() error {
	select {
	case <-s.done:
		return s.exitErr
	default:
		return nil
	}
}

// StderrTail returns the retained trailing slice of encoder stderr.
func (s *EncoderSession) StderrTail() string {
	s.tailMu.Lock()
	defer s.tailMu.Unlock()
	return strings.TrimSpace(string(s.tail))
}

// ProgressSec reports the last encoding timestamp parsed from stderr.
func (s *EncoderSession) ProgressSec() float64 {
	return math.Float64frombits(s.progressSec.Load())
}

// Kill tears the session down: the process is killed, the output pipe is
// closed and the source stream is released. Safe to call from any goroutine,
// any number of times; signals racing to trigger teardown collapse here.
//
// Closing stdout here discards anything the encoder has produced but the
// consumer has not read. That is correct only because Kill means the consumer
// is gone; the natural-exit path goes through release instead.
func (s *EncoderSession) Kill() {
	s.killOnce.Do(func() {
		s.state.Store(int32(encoderKilled))
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		s.release()
		_ = s.stdout.Close()
	})
}

// release drops the feeding side: the stdin write end and the source stream.
func (s *EncoderSession) release() {
	s.releaseOnce.Do(func() {
		_ = s.stdin.Close()
		_ = s.source.Close()
	})
}

func (s *EncoderSession) killed() bool {
	return encoderState(s.state.Load()) == encoderKilled
}

// pipeStdin feeds the source stream into the encoder. A broken pipe here is
// the normal shape of abnormal termination (the encoder closed its input
// while the source was still writing) and is already covered by the
// teardown in progress, so it is logged below error level.
func (s *EncoderSession) pipeStdin() {
	_, err := io.Copy(s.stdin, s.source)
	_ = s.stdin.Close()
	if err == nil {
		return
	}
	if isPipeTeardown(err) || s.killed() {
		s.logger.Debug("encoder stdin closed during teardown", slog.String("error", err.Error()))
		return
	}
	s.logger.Warn("encoder source read failed", slog.String("error", err.Error()))
	s.Kill()
}

// drainStderr keeps a bounded tail of encoder diagnostics and extracts the
// progress timestamp from -stats lines.
func (s *EncoderSession) drainStderr() {
	buf := make([]byte, 2048)
	for {
		n, err := s.stderr.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			s.tailMu.Lock()
			s.tail = append(s.tail, chunk...)
			if len(s.tail) > stderrTailSize {
				s.tail = s.tail[len(s.tail)-stderrTailSize:]
			}
			s.tailMu.Unlock()
			if sec, ok := parseProgressTime(string(chunk)); ok {
				s.progressSec.Store(math.Float64bits(sec))
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *EncoderSession) awaitExit() {
	err := s.cmd.Wait()
	if err != nil && !s.killed() {
		s.logger.Warn("encoder exited with error",
			slog.String("error", err.Error()),
			slog.String("stderr", s.StderrTail()),
		)
	}
	s.exitErr = err
	// Only the feeding side is released here. The stdout read end stays open:
	// the child's write end closed with the process, so the consumer reads the
	// remaining buffered bytes and then gets a natural EOF.
	s.release()
	_ = s.stderr.Close()
	close(s.done)
}

// encoderOutput exposes the stdout pipe and maps consumer Close to Kill.
type encoderOutput struct {
	session *EncoderSession
}

func (o *encoderOutput) Read(p []byte) (int, error) {
	n, err := o.session.stdout.Read(p)
	if err != nil && errors.Is(err, os.ErrClosed) {
		// Teardown closed the pipe under the reader; report clean EOF.
		return n, io.EOF
	}
	return n, err
}

func (o *encoderOutput) Close() error {
	o.session.Kill()
	return nil
}

func isPipeTeardown(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}

// parseProgressTime extracts the trailing time=HH:MM:SS.cc marker from an
// encoder stats line.
func parseProgressTime(line string) (float64, bool) {
	idx := strings.LastIndex(line, "time=")
	if idx < 0 {
		return 0, false
	}
	value := line[idx+len("time="):]
	if end := strings.IndexAny(value, " \t\r\n"); end >= 0 {
		value = value[:end]
	}
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseFloat(parts[0], 64)
	m, err2 := strconv.ParseFloat(parts[1], 64)
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return h*3600 + m*60 + sec, true
}

