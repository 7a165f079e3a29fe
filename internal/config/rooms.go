package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRoom is returned when a room file is missing required fields or has bad values
var ErrInvalidRoom = errors.New("invalid room config")

// Room defaults applied before validation
const (
	DefaultFrameWidth        = 640
	DefaultFrameHeight       = 360
	DefaultJPEGQuality       = 90
	DefaultRealtimeMaxLen    = 3
	DefaultSubsampledMaxLen  = 64
	DefaultSubsampleInterval = 2 * time.Second
	DefaultWatchInterval     = time.Second
	DefaultRealtimeFrames    = 3
	DefaultCooldown          = 30 * time.Second
	DefaultVideoFPS          = 2.0
)

// Frame modes for packing frames into an inference request
const (
	FrameModeImages = "images" // one image_url part per frame
	FrameModeVideo  = "video"  // a single video_url of concatenated frames
)

// RoomConfig is one room's YAML file
type RoomConfig struct {
	Name         string       `yaml:"name"`
	Camera       CameraConfig `yaml:"camera"`
	LLM          LLMConfig    `yaml:"llm"`
	Watch        WatchConfig  `yaml:"watch"`
	Instructions []string     `yaml:"instructions"`

	Path string `yaml:"-"` // File the room was loaded from
}

// CameraConfig describes the source and the two frame queues
type CameraConfig struct {
	URI               string        `yaml:"uri"` // "0" device index, rtsp/http URL, file path, or dir:///path
	FrameWidth        int           `yaml:"frame_width"`
	FrameHeight       int           `yaml:"frame_height"`
	JPEGQuality       int           `yaml:"jpeg_quality"`
	RealtimeMaxLen    int64         `yaml:"realtime_maxlen"`    // K
	SubsampledMaxLen  int64         `yaml:"subsampled_maxlen"`  // M
	SubsampleInterval time.Duration `yaml:"subsample_interval"` // T
}

// LLMConfig selects the served model
type LLMConfig struct {
	ModelName string `yaml:"model_name"`
}

// WatchConfig tunes the decision loop
type WatchConfig struct {
	Interval       time.Duration `yaml:"interval"`        // P
	RealtimeFrames int           `yaml:"realtime_frames"` // N
	HistoryFrames  int           `yaml:"history_frames"`  // extra subsampled context
	Cooldown       time.Duration `yaml:"cooldown"`        // C
	FrameMode      string        `yaml:"frame_mode"`
	FPS            float64       `yaml:"fps"`
}

// LoadRoom reads, defaults and validates a single room file
func LoadRoom(path string) (*RoomConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read room config %s: %w", path, err)
	}

	room, err := ParseRoom(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	room.Path = path
	return room, nil
}

// ParseRoom decodes a room document. Unknown keys are rejected.
func ParseRoom(data []byte) (*RoomConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var room RoomConfig
	if err := dec.Decode(&room); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoom, err)
	}

	room.applyDefaults()
	if err := room.Validate(); err != nil {
		return nil, err
	}
	return &room, nil
}

// LoadRooms loads every room named by paths. A directory contributes its *.yaml and *.yml files.
// Room names must be unique across all files.
func LoadRooms(paths []string) ([]*RoomConfig, error) {
	files, err := expandRoomPaths(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no room config files given", ErrInvalidRoom)
	}

	seen := make(map[string]string, len(files))
	rooms := make([]*RoomConfig, 0, len(files))
	for _, file := range files {
		room, err := LoadRoom(file)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[room.Name]; dup {
			return nil, fmt.Errorf("%w: room %q defined in both %s and %s", ErrInvalidRoom, room.Name, prev, file)
		}
		seen[room.Name] = file
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func expandRoomPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat room config %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("failed to list room configs in %s: %w", p, err)
		}
		var dirFiles []string
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
				continue
			}
			dirFiles = append(dirFiles, filepath.Join(p, e.Name()))
		}
		sort.Strings(dirFiles)
		files = append(files, dirFiles...)
	}
	return files, nil
}

func (r *RoomConfig) applyDefaults() {
	c := &r.Camera
	if c.FrameWidth == 0 {
		c.FrameWidth = DefaultFrameWidth
	}
	if c.FrameHeight == 0 {
		c.FrameHeight = DefaultFrameHeight
	}
	if c.JPEGQuality == 0 {
		c.JPEGQuality = DefaultJPEGQuality
	}
	if c.RealtimeMaxLen == 0 {
		c.RealtimeMaxLen = DefaultRealtimeMaxLen
	}
	if c.SubsampledMaxLen == 0 {
		c.SubsampledMaxLen = DefaultSubsampledMaxLen
	}
	if c.SubsampleInterval == 0 {
		c.SubsampleInterval = DefaultSubsampleInterval
	}

	w := &r.Watch
	if w.Interval == 0 {
		w.Interval = DefaultWatchInterval
	}
	if w.RealtimeFrames == 0 {
		w.RealtimeFrames = DefaultRealtimeFrames
	}
	if w.Cooldown == 0 {
		w.Cooldown = DefaultCooldown
	}
	if w.FrameMode == "" {
		w.FrameMode = FrameModeImages
	}
	if w.FPS == 0 {
		w.FPS = DefaultVideoFPS
	}
}

// Validate reports every problem with the room at once
func (r *RoomConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	} else if strings.ContainsAny(r.Name, ": \t\n*") {
		errs = append(errs, fmt.Errorf("name %q must not contain spaces, ':' or '*'", r.Name))
	}
	if strings.TrimSpace(r.Camera.URI) == "" {
		errs = append(errs, errors.New("camera.uri is required"))
	}
	if strings.TrimSpace(r.LLM.ModelName) == "" {
		errs = append(errs, errors.New("llm.model_name is required"))
	}

	instructions := 0
	for _, in := range r.Instructions {
		if strings.TrimSpace(in) != "" {
			instructions++
		}
	}
	if instructions == 0 {
		errs = append(errs, errors.New("instructions must contain at least one rule"))
	}

	if r.Camera.FrameWidth < 0 || r.Camera.FrameHeight < 0 {
		errs = append(errs, errors.New("camera frame size must be positive"))
	}
	if r.Camera.JPEGQuality < 1 || r.Camera.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("camera.jpeg_quality %d must be within 1..100", r.Camera.JPEGQuality))
	}
	if r.Camera.RealtimeMaxLen < 1 {
		errs = append(errs, errors.New("camera.realtime_maxlen must be positive"))
	}
	if r.Camera.SubsampledMaxLen < 1 {
		errs = append(errs, errors.New("camera.subsampled_maxlen must be positive"))
	}
	if r.Camera.SubsampleInterval < 0 {
		errs = append(errs, errors.New("camera.subsample_interval must be positive"))
	}
	if r.Watch.Interval < 0 {
		errs = append(errs, errors.New("watch.interval must be positive"))
	}
	if r.Watch.RealtimeFrames < 1 {
		errs = append(errs, errors.New("watch.realtime_frames must be positive"))
	}
	if r.Watch.HistoryFrames < 0 {
		errs = append(errs, errors.New("watch.history_frames must not be negative"))
	}
	if int64(r.Watch.HistoryFrames) > r.Camera.SubsampledMaxLen {
		errs = append(errs, fmt.Errorf("watch.history_frames %d exceeds camera.subsampled_maxlen %d",
			r.Watch.HistoryFrames, r.Camera.SubsampledMaxLen))
	}
	if r.Watch.Cooldown < 0 {
		errs = append(errs, errors.New("watch.cooldown must be positive"))
	}
	if r.Watch.FrameMode != FrameModeImages && r.Watch.FrameMode != FrameModeVideo {
		errs = append(errs, fmt.Errorf("watch.frame_mode %q must be %q or %q", r.Watch.FrameMode, FrameModeImages, FrameModeVideo))
	}
	if r.Watch.FPS < 0 {
		errs = append(errs, errors.New("watch.fps must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRoom, errors.Join(errs...))
	}
	return nil
}

// FrameWindow is the number of realtime frames read per tick, min(N, K)
func (r *RoomConfig) FrameWindow() int {
	if int64(r.Watch.RealtimeFrames) > r.Camera.RealtimeMaxLen {
		return int(r.Camera.RealtimeMaxLen)
	}
	return r.Watch.RealtimeFrames
}

// RuleList returns the non-blank instructions, trimmed
func (r *RoomConfig) RuleList() []string {
	rules := make([]string, 0, len(r.Instructions))
	for _, in := range r.Instructions {
		if s := strings.TrimSpace(in); s != "" {
			rules = append(rules, s)
		}
	}
	return rules
}

// DisplayURI returns the camera URI with any credentials removed
func (r *RoomConfig) DisplayURI() string {
	u, err := url.Parse(r.Camera.URI)
	if err != nil || u.User == nil {
		return r.Camera.URI
	}
	u.User = nil
	return u.String()
}
