// Package capture reads frames from cameras and turns them into JPEGs of a fixed size.
package capture

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrBadFrame marks a single unreadable frame. The source stays usable.
	ErrBadFrame = errors.New("bad frame")
	// ErrSourceEnded marks a source that stopped producing frames and must be reopened.
	ErrSourceEnded = errors.New("source ended")
)

// Capture is one raw image as read from a source, before normalization
type Capture struct {
	Data      []byte
	Timestamp time.Time
}

// Source is a camera or camera-like frame supplier.
// Next blocks until a frame is available, ctx is done, or the source fails.
type Source interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (Capture, error)
	Close() error
	String() string
}

// Options configure how a source produces frames
type Options struct {
	Width      int
	Height     int
	FFmpegPath string        // defaults to "ffmpeg" on PATH
	Settle     time.Duration // directory sources: quiet period before a written file is read
}

var now = time.Now

// DirScheme prefixes URIs of directory snapshot sources
const DirScheme = "dir://"

// Open picks the source implementation for a camera URI.
// dir:// URIs watch a folder for snapshots; everything else is handed to ffmpeg.
func Open(uri string, opts Options) Source {
	if strings.HasPrefix(uri, DirScheme) {
		return NewDirectorySource(strings.TrimPrefix(uri, DirScheme), opts)
	}
	return NewFFmpegSource(uri, opts)
}

// IsFFmpegURI reports whether a camera URI will be served by ffmpeg
func IsFFmpegURI(uri string) bool {
	return !strings.HasPrefix(uri, DirScheme)
}
