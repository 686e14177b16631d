// Package config defines the settings of a synchronization run and loads
// them from TOML files.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/xaionaro-go/audiosync/pkg/alignment"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	"github.com/xaionaro-go/audiosync/pkg/ffmpeg"
	"github.com/xaionaro-go/audiosync/pkg/offset"
	"github.com/xaionaro-go/audiosync/pkg/syncer/implementations/chromarqa"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Method string

const (
	MethodChromaRQA = Method("chromarqa")
	MethodGCCPHAT   = Method("gccphat")
)

func (m Method) IsValid() bool {
	switch m {
	case MethodChromaRQA, MethodGCCPHAT:
		return true
	}
	return false
}

// Duration is a time.Duration represented as text ("2m", "90s") in files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	SampleRate audio.SampleRate `toml:"sample_rate"`
	FFTWindow  int              `toml:"fft_window"`
	HopSize    int              `toml:"hop_size"`

	// AnalysisDuration is the length of the prefixes of the tracks the
	// offset is estimated on; zero means the whole tracks.
	AnalysisDuration Duration `toml:"analysis_duration"`

	OutlierThreshold float64 `toml:"outlier_threshold"`
	LinkThreshold    float64 `toml:"link_threshold"`

	// Stretch allows single-frame stretch or compression in the alignment.
	Stretch bool `toml:"stretch"`
	// GapOnset and GapExtend are the gap penalties; negative values
	// forbid the corresponding transitions.
	GapOnset  float64 `toml:"gap_onset"`
	GapExtend float64 `toml:"gap_extend"`

	Method       Method `toml:"method"`
	FFmpegBinary string `toml:"ffmpeg_binary"`
}

func Default() Config {
	return Config{
		SampleRate:       44100,
		FFTWindow:        chromarqa.DefaultWindowSize,
		HopSize:          chromarqa.DefaultHopSize,
		AnalysisDuration: Duration(120 * time.Second),
		OutlierThreshold: offset.DefaultOutlierThreshold,
		LinkThreshold:    alignment.DefaultLinkThreshold,
		GapOnset:         float64(alignment.Disallowed),
		GapExtend:        float64(alignment.Disallowed),
		Method:           MethodChromaRQA,
		FFmpegBinary:     ffmpeg.DefaultBinary,
	}
}

// LoadFile reads the TOML file at path over the defaults. Unknown keys are
// rejected.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to open the config '%s': %w", path, err)
	}
	defer f.Close()

	decoder := toml.NewDecoder(f)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to parse the config '%s': %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config '%s': %w", path, err)
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	if cfg.SampleRate == 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidConfig)
	}
	if cfg.AnalysisDuration < 0 {
		return fmt.Errorf("%w: analysis duration must be non-negative, got %v", ErrInvalidConfig, time.Duration(cfg.AnalysisDuration))
	}
	if math.IsNaN(cfg.GapOnset) || math.IsNaN(cfg.GapExtend) {
		return fmt.Errorf("%w: gap penalties must be numbers", ErrInvalidConfig)
	}
	if math.IsNaN(cfg.OutlierThreshold) || math.IsNaN(cfg.LinkThreshold) {
		return fmt.Errorf("%w: thresholds must be numbers", ErrInvalidConfig)
	}
	if !cfg.Method.IsValid() {
		return fmt.Errorf("%w: unknown method '%s', expected '%s' or '%s'", ErrInvalidConfig, cfg.Method, MethodChromaRQA, MethodGCCPHAT)
	}
	if err := cfg.ChromaRQA().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (cfg Config) Alignment() alignment.Config {
	return alignment.Config{
		LinkThreshold: cfg.LinkThreshold,
		Gap: alignment.GapPolicy{
			Stretch: cfg.Stretch,
			Onset:   penalty(cfg.GapOnset),
			Extend:  penalty(cfg.GapExtend),
		},
	}
}

func (cfg Config) ChromaRQA() chromarqa.Config {
	c := chromarqa.DefaultConfig()
	c.WindowSize = cfg.FFTWindow
	c.HopSize = cfg.HopSize
	c.Alignment = cfg.Alignment()
	c.OutlierThreshold = cfg.OutlierThreshold
	return c
}

func penalty(v float64) alignment.Penalty {
	if v < 0 {
		return alignment.Disallowed
	}
	return alignment.Penalty(v)
}
