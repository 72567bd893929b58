// Package config provides configuration management for the StudioLapse agent.
// Values come from built-in defaults, then an optional YAML file, then
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort         = 8797
	DefaultLogLevel     = "info"
	DefaultDataDir      = ".studiolapse"
	DefaultVideoCodec   = "mpeg4"
	DefaultVideoQuality = "4"
	DefaultAlbumName    = "StudioLapse"
	DefaultProbeTimeout = 120 // seconds

	// Environment variable names
	EnvConfigFile    = "STUDIOLAPSE_CONFIG"
	EnvPort          = "STUDIOLAPSE_PORT"
	EnvLogLevel      = "STUDIOLAPSE_LOG_LEVEL"
	EnvDataDir       = "STUDIOLAPSE_DATA_DIR"
	EnvFFmpegPath    = "STUDIOLAPSE_FFMPEG_PATH"
	EnvVideoCodec    = "STUDIOLAPSE_VIDEO_CODEC"
	EnvVideoQuality  = "STUDIOLAPSE_VIDEO_QUALITY"
	EnvWatermarkPath = "STUDIOLAPSE_WATERMARK_PATH"
	EnvLibraryDir    = "STUDIOLAPSE_LIBRARY_DIR"
	EnvAlbumName     = "STUDIOLAPSE_ALBUM"
	EnvLibraryAccess = "STUDIOLAPSE_LIBRARY_ACCESS"
	EnvHeadless      = "STUDIOLAPSE_HEADLESS"
	EnvDebugPaths    = "STUDIOLAPSE_DEBUG_PATHS"
	EnvInboxDir      = "STUDIOLAPSE_INBOX_DIR"
	EnvSaveClips     = "STUDIOLAPSE_SAVE_CLIPS"

	// Database filename
	DBFilename = "studiolapse.db"

	ConfigFilename = "config.yaml"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	CacheDir() string
	ScratchDir() string
	FFmpegPath() string
	VideoCodec() string
	VideoQuality() string
	ProbeTimeout() time.Duration
	WatermarkPath() string
	LibraryDir() string
	AlbumName() string
	LibraryAccess() bool
	Headless() bool
	DebugPaths() bool
	InboxDir() string
	SaveClips() bool
}

// File is the YAML configuration file layout. Zero values leave the
// default in place.
type File struct {
	Port     int    `yaml:"port,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`
	Headless *bool  `yaml:"headless,omitempty"`

	FFmpeg struct {
		BinaryPath      string `yaml:"binary_path,omitempty"`
		Codec           string `yaml:"codec,omitempty"`
		Quality         string `yaml:"quality,omitempty"`
		ProbeTimeoutSec int    `yaml:"probe_timeout_sec,omitempty"`
	} `yaml:"ffmpeg"`

	Export struct {
		WatermarkPath string `yaml:"watermark_path,omitempty"`
		ScratchDir    string `yaml:"scratch_dir,omitempty"`
	} `yaml:"export"`

	Library struct {
		Dir    string `yaml:"dir,omitempty"`
		Album  string `yaml:"album,omitempty"`
		Access *bool  `yaml:"access,omitempty"`
	} `yaml:"library"`

	Inbox struct {
		Dir       string `yaml:"dir,omitempty"`
		SaveClips *bool  `yaml:"save_clips,omitempty"`
	} `yaml:"inbox"`
}

// EnvConfig is the resolved configuration.
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	file     string

	ffmpegPath   string
	videoCodec   string
	videoQuality string
	probeTimeout time.Duration

	watermarkPath string
	scratchDir    string
	libraryDir    string
	albumName     string
	libraryAccess bool

	inboxDir  string
	saveClips bool

	headless   bool
	debugPaths bool
}

// New creates a new EnvConfig from defaults, the config file and
// environment variable overrides.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		dataDir:       defaultDataDir(),
		videoCodec:    DefaultVideoCodec,
		videoQuality:  DefaultVideoQuality,
		probeTimeout:  DefaultProbeTimeout * time.Second,
		albumName:     DefaultAlbumName,
		libraryAccess: true,
	}

	// Data directory first: it locates the default config file
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	path := os.Getenv(EnvConfigFile)
	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.dataDir, ConfigFilename)
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.file = path

	if f.Port != 0 {
		if err := validPort(f.Port); err != nil {
			return fmt.Errorf("invalid port in %s: %w", path, err)
		}
		c.port = f.Port
	}
	setString(&c.logLevel, f.LogLevel)
	if f.Headless != nil {
		c.headless = *f.Headless
	}
	setString(&c.ffmpegPath, f.FFmpeg.BinaryPath)
	setString(&c.videoCodec, f.FFmpeg.Codec)
	setString(&c.videoQuality, f.FFmpeg.Quality)
	if f.FFmpeg.ProbeTimeoutSec > 0 {
		c.probeTimeout = time.Duration(f.FFmpeg.ProbeTimeoutSec) * time.Second
	}
	setString(&c.watermarkPath, f.Export.WatermarkPath)
	setString(&c.scratchDir, f.Export.ScratchDir)
	setString(&c.libraryDir, f.Library.Dir)
	setString(&c.albumName, f.Library.Album)
	if f.Library.Access != nil {
		c.libraryAccess = *f.Library.Access
	}
	setString(&c.inboxDir, f.Inbox.Dir)
	if f.Inbox.SaveClips != nil {
		c.saveClips = *f.Inbox.SaveClips
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if err := validPort(port); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.ffmpegPath, os.Getenv(EnvFFmpegPath))
	setString(&c.videoCodec, os.Getenv(EnvVideoCodec))
	setString(&c.videoQuality, os.Getenv(EnvVideoQuality))
	setString(&c.watermarkPath, os.Getenv(EnvWatermarkPath))
	setString(&c.libraryDir, os.Getenv(EnvLibraryDir))
	setString(&c.albumName, os.Getenv(EnvAlbumName))
	setString(&c.inboxDir, os.Getenv(EnvInboxDir))

	for name, dst := range map[string]*bool{
		EnvLibraryAccess: &c.libraryAccess,
		EnvHeadless:      &c.headless,
		EnvDebugPaths:    &c.debugPaths,
		EnvSaveClips:     &c.saveClips,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = b
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return strings.ToLower(c.logLevel)
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// CacheDir holds materialized bundled assets.
func (c *EnvConfig) CacheDir() string {
	return filepath.Join(c.dataDir, "cache")
}

// ScratchDir holds concat manifests and encoder output before they are
// saved to the media library.
func (c *EnvConfig) ScratchDir() string {
	if c.scratchDir != "" {
		return filepath.Clean(c.scratchDir)
	}
	return filepath.Join(c.dataDir, "scratch")
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) VideoCodec() string {
	return c.videoCodec
}

func (c *EnvConfig) VideoQuality() string {
	return c.videoQuality
}

func (c *EnvConfig) ProbeTimeout() time.Duration {
	return c.probeTimeout
}

// WatermarkPath is an override for the bundled watermark; empty means use
// the bundled image.
func (c *EnvConfig) WatermarkPath() string {
	return c.watermarkPath
}

func (c *EnvConfig) LibraryDir() string {
	if c.libraryDir != "" {
		return c.libraryDir
	}
	return filepath.Join(c.dataDir, "library")
}

func (c *EnvConfig) AlbumName() string {
	return c.albumName
}

// LibraryAccess reports whether the media library may be written.
func (c *EnvConfig) LibraryAccess() bool {
	return c.libraryAccess
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) DebugPaths() bool {
	return c.debugPaths
}

// InboxDir is a folder watched for finished recordings, which are added
// to the selected project. Empty disables the inbox.
func (c *EnvConfig) InboxDir() string {
	return c.inboxDir
}

// SaveClips reports whether inbox clips are also saved to the album.
func (c *EnvConfig) SaveClips() bool {
	return c.saveClips
}

// FilePath returns the config file that was loaded, or "".
func (c *EnvConfig) FilePath() string {
	return c.file
}

// Effective renders the resolved configuration in the config file layout.
func (c *EnvConfig) Effective() ([]byte, error) {
	var f File
	f.Port = c.port
	f.LogLevel = c.LogLevel()
	headless := c.headless
	f.Headless = &headless
	f.FFmpeg.BinaryPath = c.ffmpegPath
	f.FFmpeg.Codec = c.videoCodec
	f.FFmpeg.Quality = c.videoQuality
	f.FFmpeg.ProbeTimeoutSec = int(c.probeTimeout / time.Second)
	f.Export.WatermarkPath = c.watermarkPath
	f.Export.ScratchDir = c.ScratchDir()
	f.Library.Dir = c.LibraryDir()
	f.Library.Album = c.albumName
	access := c.libraryAccess
	f.Library.Access = &access
	f.Inbox.Dir = c.inboxDir
	saveClips := c.saveClips
	f.Inbox.SaveClips = &saveClips
	return yaml.Marshal(&f)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func validPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
