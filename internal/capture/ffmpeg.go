package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

const (
	bmpHeaderSize = 14
	maxBMPSize    = 64 << 20
	stderrTail    = 4 << 10
)

// FFmpegSource spawns ffmpeg and reads the BMP frames it writes to stdout
type FFmpegSource struct {
	uri  string
	opts Options

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr *tailBuffer
}

// NewFFmpegSource creates an ffmpeg-backed source for a device index, RTSP/HTTP URL or file path
func NewFFmpegSource(uri string, opts Options) *FFmpegSource {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	return &FFmpegSource{uri: uri, opts: opts}
}

func (s *FFmpegSource) String() string {
	return "ffmpeg:" + redactURI(s.uri)
}

// Args returns the ffmpeg argument list for this source
func (s *FFmpegSource) Args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}

	switch {
	case isDeviceIndex(s.uri):
		args = append(args, "-f", "v4l2", "-i", "/dev/video"+s.uri)
	case strings.HasPrefix(s.uri, "rtsp://") || strings.HasPrefix(s.uri, "rtsps://"):
		args = append(args, "-rtsp_transport", "tcp", "-i", s.uri)
	case strings.Contains(s.uri, "://"):
		args = append(args, "-i", s.uri)
	default:
		// Recorded footage plays at its native rate, looping forever.
		args = append(args, "-re", "-stream_loop", "-1", "-i", s.uri)
	}

	if s.opts.Width > 0 && s.opts.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", s.opts.Width, s.opts.Height))
	}
	return append(args, "-an", "-c:v", "bmp", "-f", "image2pipe", "-")
}

// Open starts the ffmpeg process. The process is killed when ctx is done.
func (s *FFmpegSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return errors.New("ffmpeg source already open")
	}

	cmd := exec.CommandContext(ctx, s.opts.FFmpegPath, s.Args()...)
	stderr := &tailBuffer{limit: stderrTail}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.reader = bufio.NewReaderSize(stdout, 1<<20)
	s.stderr = stderr
	log.Printf("🎥 [CAPTURE] Started %s (pid %d)", s, cmd.Process.Pid)
	return nil
}

// Next reads the next frame. A desynchronized or closed stream ends the source.
func (s *FFmpegSource) Next(ctx context.Context) (Capture, error) {
	s.mu.Lock()
	reader := s.reader
	stderr := s.stderr
	s.mu.Unlock()

	if reader == nil {
		return Capture{}, fmt.Errorf("%w: not open", ErrSourceEnded)
	}

	data, err := readBMP(reader)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Capture{}, ctxErr
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Capture{}, fmt.Errorf("%w: %v (ffmpeg: %s)", ErrSourceEnded, err, msg)
		}
		return Capture{}, fmt.Errorf("%w: %v", ErrSourceEnded, err)
	}
	return Capture{Data: data, Timestamp: now()}, nil
}

// Close stops ffmpeg and reaps it
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return nil
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	s.cmd, s.stdout, s.reader = nil, nil, nil

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// readBMP reads one BMP image from an image2pipe stream
func readBMP(r *bufio.Reader) ([]byte, error) {
	header := make([]byte, bmpHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if header[0] != 'B' || header[1] != 'M' {
		return nil, errors.New("stream out of sync: missing BMP signature")
	}

	size := binary.LittleEndian.Uint32(header[2:6])
	if size <= bmpHeaderSize || size > maxBMPSize {
		return nil, fmt.Errorf("implausible BMP size %d", size)
	}

	buf := make([]byte, size)
	copy(buf, header)
	if _, err := io.ReadFull(r, buf[bmpHeaderSize:]); err != nil {
		return nil, err
	}
	return buf, nil
}

func isDeviceIndex(uri string) bool {
	n, err := strconv.Atoi(uri)
	return err == nil && n >= 0
}

func redactURI(uri string) string {
	at := strings.LastIndex(uri, "@")
	scheme := strings.Index(uri, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return uri
	}
	return uri[:scheme+3] + "***" + uri[at:]
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
