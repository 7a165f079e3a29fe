package models

import (
	"time"
)

// Queue identifies one of the two bounded frame streams kept per room
type Queue string

const (
	QueueRealtime   Queue = "realtime"   // every captured frame, newest K kept
	QueueSubsampled Queue = "subsampled" // frames at least T apart, newest M kept
)

// Valid reports whether q names a known queue
func (q Queue) Valid() bool {
	return q == QueueRealtime || q == QueueSubsampled
}

// Frame is a single JPEG-encoded camera image as stored in a room's queues
type Frame struct {
	ID        string    `json:"id"`    // Stream entry ID assigned by the store
	Room      string    `json:"room"`  // Room the camera belongs to
	Index     int64     `json:"index"` // Monotonic capture counter for this producer run
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Data      []byte    `json:"-"` // JPEG bytes
}

// Size returns the encoded size in bytes
func (f *Frame) Size() int {
	return len(f.Data)
}
