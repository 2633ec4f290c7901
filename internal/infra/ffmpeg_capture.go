package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/voicememo/internal/ports"
)

const (
	ffmpegReadChunk    = 4096
	maxFFmpegErrOutput = 180
)

var ErrCaptureActive = errors.New("capture already running for this take")

type FFmpegConfig struct {
	Path        string
	InputFormat string
	InputDevice string
}

type captureKey struct {
	session string
	take    int
}

type ffmpegProc struct {
	cmd    *exec.Cmd
	done   chan struct{}
	stderr strings.Builder

	interruptOnce sync.Once
}

// interrupt asks ffmpeg to finalize the container and exit.
func (p *ffmpegProc) interrupt() {
	p.interruptOnce.Do(func() {
		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			_ = p.cmd.Process.Kill()
		}
	})
}

// FFmpegCapture records from a local input device and streams webm/opus
// chunks from ffmpeg's stdout into the session's sink.
type FFmpegCapture struct {
	cfg FFmpegConfig
	log *logger.ZapLogger

	mu    sync.Mutex
	procs map[captureKey]*ffmpegProc
}

func NewFFmpegCapture(cfg FFmpegConfig, log *logger.ZapLogger) *FFmpegCapture {
	if cfg.Path == "" {
		cfg.Path = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "alsa"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return &FFmpegCapture{
		cfg:   cfg,
		log:   log,
		procs: make(map[captureKey]*ffmpegProc),
	}
}

var _ ports.CaptureFacility = (*FFmpegCapture)(nil)

// CheckPermission reports whether the ffmpeg binary can be run at all.
func (c *FFmpegCapture) CheckPermission(ctx context.Context) (bool, error) {
	if _, err := exec.LookPath(c.cfg.Path); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup ffmpeg: %w", err)
	}
	return true, nil
}

func (c *FFmpegCapture) args() []string {
	return []string{
		"-loglevel", "error",
		"-f", c.cfg.InputFormat,
		"-i", c.cfg.InputDevice,
		"-vn",
		"-ac", "1",
		"-c:a", "libopus",
		"-f", "webm",
		"pipe:1",
	}
}

// Start launches ffmpeg for a take. Older takes of the same session that are
// still finalizing are interrupted but not waited for.
func (c *FFmpegCapture) Start(ctx context.Context, sessionID string, take int, sink ports.FragmentSink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := captureKey{session: sessionID, take: take}
	if _, ok := c.procs[key]; ok {
		return ErrCaptureActive
	}
	for k, old := range c.procs {
		if k.session == sessionID && k.take < take {
			old.interrupt()
		}
	}

	cmd := exec.CommandContext(ctx, c.cfg.Path, c.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	p := &ffmpegProc{cmd: cmd, done: make(chan struct{})}
	cmd.Stderr = &limitedWriter{b: &p.stderr, max: maxFFmpegErrOutput}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}
	c.procs[key] = p

	go c.pump(key, p, stdout, sink)

	c.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "ffmpeg capture started",
		Fields:  map[string]any{"sessionID": sessionID, "take": take, "device": c.cfg.InputDevice},
	})
	return nil
}

func (c *FFmpegCapture) pump(key captureKey, p *ffmpegProc, stdout io.Reader, sink ports.FragmentSink) {
	defer close(p.done)

	start := time.Now()
	total := 0
	buf := make([]byte, ffmpegReadChunk)

	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			total += n
			sink(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				c.log.Log(logger.LogEntry{
					Level:   "warn",
					Message: "ffmpeg read failed",
					Error:   err,
					Fields:  map[string]any{"sessionID": key.session, "take": key.take},
				})
			}
			break
		}
	}

	waitErr := p.cmd.Wait()

	c.mu.Lock()
	if c.procs[key] == p {
		delete(c.procs, key)
	}
	c.mu.Unlock()

	fields := map[string]any{
		"sessionID": key.session,
		"take":      key.take,
		"bytes":     total,
		"dur":       time.Since(start).String(),
	}
	if out := p.stderr.String(); out != "" {
		fields["stderr"] = out
	}
	c.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "ffmpeg capture finished",
		Fields:  fields,
		Error:   waitErr,
	})
}

// Stop interrupts ffmpeg so it can flush the container, then waits for the
// remaining output to be delivered.
func (c *FFmpegCapture) Stop(sessionID string, take int) error {
	c.mu.Lock()
	p, ok := c.procs[captureKey{session: sessionID, take: take}]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	p.interrupt()
	<-p.done
	return nil
}

type limitedWriter struct {
	b   *strings.Builder
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if room := w.max - w.b.Len(); room > 0 {
		if len(p) > room {
			w.b.Write(p[:room])
		} else {
			w.b.Write(p)
		}
	}
	return len(p), nil
}
