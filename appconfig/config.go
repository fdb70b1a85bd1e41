package appconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/stevecastle/stereo180/deps"
	"github.com/stevecastle/stereo180/platform"
	"gopkg.in/yaml.v3"
)

// Config holds the pipeline settings: batching and encoding, stereo and
// projection parameters, the depth model, working paths and artifact upload.
type Config struct {
	Video      VideoConfig      `yaml:"video"`
	Processing ProcessingConfig `yaml:"processing"`
	Depth      DepthConfig      `yaml:"depth"`
	Paths      PathsConfig      `yaml:"paths"`
	FFmpeg     FFmpegConfig     `yaml:"ffmpeg"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
}

// VideoConfig controls batching and the encodes.
type VideoConfig struct {
	BatchSize  int    `yaml:"batch_size"`
	OutputFPS  int    `yaml:"output_fps"`
	Codec      string `yaml:"codec"`
	Bitrate    string `yaml:"bitrate"`
	HLSSeconds int    `yaml:"hls_time"`
}

// ProcessingConfig controls stereo synthesis and projection.
type ProcessingConfig struct {
	MaxShift          int     `yaml:"max_shift"`
	FieldOfView       float64 `yaml:"field_of_view"` // degrees
	OutputWidth       int     `yaml:"output_width"`
	InvertDepth       bool    `yaml:"invert_depth"`
	Workers           int     `yaml:"workers"`
	KeepIntermediates bool    `yaml:"keep_intermediates"`
}

// DepthConfig locates the MiDaS model and the ONNX Runtime library.
type DepthConfig struct {
	ModelPath            string `yaml:"model_path"`
	ORTSharedLibraryPath string `yaml:"ort_shared_library_path"`
	InputName            string `yaml:"input_name"`
	OutputName           string `yaml:"output_name"`
	InputSize            int    `yaml:"input_size"`
}

// PathsConfig locates the run working tree and the job database.
type PathsConfig struct {
	WorkDir string `yaml:"work_dir"`
	DBPath  string `yaml:"db_path"`
}

// FFmpegConfig optionally pins the directory holding ffmpeg and ffprobe.
type FFmpegConfig struct {
	BinDir string `yaml:"bin_dir"`
}

// ArtifactsConfig enables upload of final outputs to S3. Empty bucket disables it.
type ArtifactsConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// PipelineConfig holds run-level limits.
type PipelineConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

var (
	cfgMu sync.RWMutex
	cfg   = Default()
)

// DefaultConfigPath returns the default config.yaml location.
func DefaultConfigPath() string {
	return filepath.Join(platform.GetDataDir(), "config.yaml")
}

// DefaultDBPath returns the default job database path.
func DefaultDBPath() string {
	return filepath.Join(platform.GetDataDir(), "jobs.db")
}

// Default returns a Config populated with the pipeline defaults.
func Default() Config {
	return Config{
		Video: VideoConfig{
			BatchSize:  30,
			OutputFPS:  30,
			Codec:      "libx264",
			Bitrate:    "6M",
			HLSSeconds: 2,
		},
		Processing: ProcessingConfig{
			MaxShift:    20,
			FieldOfView: 140,
			OutputWidth: 2048,
			Workers:     runtime.NumCPU(),
		},
		Depth: DepthConfig{
			ModelPath:            deps.MidasModelPath(),
			ORTSharedLibraryPath: deps.OnnxRuntimeLibPath(),
			InputName:            "0",
			OutputName:           "797",
			InputSize:            256,
		},
		Paths: PathsConfig{
			WorkDir: platform.GetWorkDir(),
			DBPath:  DefaultDBPath(),
		},
	}
}

// Get returns a copy of the current in-memory config.
func Get() Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg
}

// Set replaces the in-memory config.
func Set(c Config) {
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
}

var envPattern = regexp.MustCompile(`\$\{([^:}]+):?([^}]*)\}`)

// substituteEnv replaces ${VAR} and ${VAR:default} with the variable's value,
// or the default when the variable is unset.
func substituteEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := envPattern.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(parts[1]); ok {
			return v
		}
		return parts[2]
	})
}

// expandNode applies env substitution to every scalar in a YAML tree.
func expandNode(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode {
		if expanded := substituteEnv(n.Value); expanded != n.Value {
			n.Value = expanded
			// Let the decoder re-resolve the tag so "${FPS:30}" decodes as an int.
			n.Tag = ""
			n.Style &^= yaml.DoubleQuotedStyle | yaml.SingleQuotedStyle
		}
		return
	}
	for _, c := range n.Content {
		expandNode(c)
	}
}

// Parse decodes YAML config bytes with env substitution, filling unset
// fields from defaults.
func Parse(data []byte) (Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	c := Config{}
	if len(root.Content) > 0 {
		expandNode(&root)
		if err := root.Decode(&c); err != nil {
			return Config{}, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	mergeDefaults(&c, Default())
	return c, nil
}

func mergeDefaults(c *Config, def Config) {
	if c.Video.BatchSize == 0 {
		c.Video.BatchSize = def.Video.BatchSize
	}
	if c.Video.OutputFPS == 0 {
		c.Video.OutputFPS = def.Video.OutputFPS
	}
	if c.Video.Codec == "" {
		c.Video.Codec = def.Video.Codec
	}
	if c.Video.Bitrate == "" {
		c.Video.Bitrate = def.Video.Bitrate
	}
	if c.Video.HLSSeconds == 0 {
		c.Video.HLSSeconds = def.Video.HLSSeconds
	}
	if c.Processing.MaxShift == 0 {
		c.Processing.MaxShift = def.Processing.MaxShift
	}
	if c.Processing.FieldOfView == 0 {
		c.Processing.FieldOfView = def.Processing.FieldOfView
	}
	if c.Processing.OutputWidth == 0 {
		c.Processing.OutputWidth = def.Processing.OutputWidth
	}
	if c.Processing.Workers <= 0 {
		c.Processing.Workers = def.Processing.Workers
	}
	if c.Depth.ModelPath == "" {
		c.Depth.ModelPath = def.Depth.ModelPath
	}
	if c.Depth.ORTSharedLibraryPath == "" {
		c.Depth.ORTSharedLibraryPath = def.Depth.ORTSharedLibraryPath
	}
	if c.Depth.InputName == "" {
		c.Depth.InputName = def.Depth.InputName
	}
	if c.Depth.OutputName == "" {
		c.Depth.OutputName = def.Depth.OutputName
	}
	if c.Depth.InputSize == 0 {
		c.Depth.InputSize = def.Depth.InputSize
	}
	if c.Paths.WorkDir == "" {
		c.Paths.WorkDir = def.Paths.WorkDir
	}
	if c.Paths.DBPath == "" {
		c.Paths.DBPath = def.Paths.DBPath
	}
}

// Validate reports settings the pipeline cannot run with. A field of view
// outside (0, 180) is accepted; the projection renders black for it.
func (c Config) Validate() error {
	var errs []error
	if c.Video.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("video.batch_size must be >= 1, got %d", c.Video.BatchSize))
	}
	if c.Video.OutputFPS < 1 {
		errs = append(errs, fmt.Errorf("video.output_fps must be >= 1, got %d", c.Video.OutputFPS))
	}
	if c.Processing.MaxShift < 0 {
		errs = append(errs, fmt.Errorf("processing.max_shift must be >= 0, got %d", c.Processing.MaxShift))
	}
	if c.Processing.OutputWidth < 2 || c.Processing.OutputWidth%2 != 0 {
		errs = append(errs, fmt.Errorf("processing.output_width must be even and >= 2, got %d", c.Processing.OutputWidth))
	}
	if c.Paths.WorkDir == "" {
		errs = append(errs, errors.New("paths.work_dir is required"))
	}
	return errors.Join(errs...)
}

// Load reads the config at path and updates the in-memory config. A missing
// file is created with default values. An empty path selects DefaultConfigPath.
func Load(path string) (Config, string, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, path, fmt.Errorf("failed to read config file at %s: %w", path, err)
		}
		def := Default()
		if err := Save(path, def); err != nil {
			return Config{}, path, fmt.Errorf("failed to create default config file: %w", err)
		}
		Set(def)
		return def, path, nil
	}

	c, err := Parse(data)
	if err != nil {
		return Config{}, path, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, path, fmt.Errorf("invalid config %s: %w", path, err)
	}

	Set(c)
	return c, path, nil
}

// Save writes c to path as YAML, creating the directory as needed.
func Save(path string, c Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
