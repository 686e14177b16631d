package main

import (
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	"github.com/xaionaro-go/audiosync/pkg/config"
)

type flags struct {
	LoggerLevel        logger.Level
	NetPprofListenAddr string

	Video      string
	InstAudio  string
	MainAudio  string
	Output     string
	ConfigPath string

	FFTWindow        int
	HopSize          int
	SampleRate       uint32
	Duration         time.Duration
	Method           string
	LinkThreshold    float64
	OutlierThreshold float64
	Stretch          bool
	GapOnset         float64
	GapExtend        float64
	FFmpegBinary     string
}

func newFlags(fs *pflag.FlagSet) *flags {
	defaults := config.Default()
	f := &flags{
		LoggerLevel: logger.LevelInfo,
	}
	fs.Var(&f.LoggerLevel, "log-level", "Log level")
	fs.StringVar(&f.NetPprofListenAddr, "net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")

	fs.StringVarP(&f.Video, "video", "v", "", "path to the video file")
	fs.StringVarP(&f.InstAudio, "inst-audio", "i", "", "path to the instrument audio file (recorded in sync with the main audio)")
	fs.StringVarP(&f.MainAudio, "main-audio", "a", "", "path to the main audio file, which replaces the audio of the video")
	fs.StringVarP(&f.Output, "output", "o", "", "path to the resulting video file")
	fs.StringVar(&f.ConfigPath, "config", "", "path to a TOML config file; flags override its values")

	fs.IntVarP(&f.FFTWindow, "fft", "f", defaults.FFTWindow, "FFT window size, recommended to be a power of 2")
	fs.IntVar(&f.HopSize, "hop-length", defaults.HopSize, "the number of samples between successive frames")
	fs.Uint32Var(&f.SampleRate, "sampling-rate", uint32(defaults.SampleRate), "sampling rate of the analysis in Hz")
	fs.DurationVarP(&f.Duration, "duration", "d", time.Duration(defaults.AnalysisDuration), "duration of the audio to check for offsets; 0 means everything")
	fs.StringVar(&f.Method, "method", string(defaults.Method), fmt.Sprintf("synchronization method: '%s' or '%s'", config.MethodChromaRQA, config.MethodGCCPHAT))
	fs.Float64Var(&f.LinkThreshold, "link-threshold", defaults.LinkThreshold, "minimal similarity of two frames to be considered a match")
	fs.Float64Var(&f.OutlierThreshold, "outlier-threshold", defaults.OutlierThreshold, "per-frame offsets further than this amount of standard deviations from the mean are ignored")
	fs.BoolVar(&f.Stretch, "stretch", defaults.Stretch, "allow single-frame stretch or compression in the alignment (requires a non-negative --gap-onset)")
	fs.Float64Var(&f.GapOnset, "gap-onset", defaults.GapOnset, "penalty of opening a gap in the alignment; negative means disallowed")
	fs.Float64Var(&f.GapExtend, "gap-extend", defaults.GapExtend, "penalty of extending a gap in the alignment; negative means disallowed")
	fs.StringVar(&f.FFmpegBinary, "ffmpeg", defaults.FFmpegBinary, "path to the ffmpeg binary")
	return f
}

// Config returns the config file values (or the defaults) overridden by
// the flags explicitly set on the command line.
func (f *flags) Config(fs *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if f.ConfigPath != "" {
		var err error
		cfg, err = config.LoadFile(f.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
	}

	overrides := map[string]func(){
		"fft":               func() { cfg.FFTWindow = f.FFTWindow },
		"hop-length":        func() { cfg.HopSize = f.HopSize },
		"sampling-rate":     func() { cfg.SampleRate = audio.SampleRate(f.SampleRate) },
		"duration":          func() { cfg.AnalysisDuration = config.Duration(f.Duration) },
		"method":            func() { cfg.Method = config.Method(f.Method) },
		"link-threshold":    func() { cfg.LinkThreshold = f.LinkThreshold },
		"outlier-threshold": func() { cfg.OutlierThreshold = f.OutlierThreshold },
		"stretch":           func() { cfg.Stretch = f.Stretch },
		"gap-onset":         func() { cfg.GapOnset = f.GapOnset },
		"gap-extend":        func() { cfg.GapExtend = f.GapExtend },
		"ffmpeg":            func() { cfg.FFmpegBinary = f.FFmpegBinary },
	}
	for name, apply := range overrides {
		if fs.Changed(name) {
			apply()
		}
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (f *flags) Params(fs *pflag.FlagSet) (params, error) {
	cfg, err := f.Config(fs)
	if err != nil {
		return params{}, err
	}
	return params{
		Video:     f.Video,
		InstAudio: f.InstAudio,
		MainAudio: f.MainAudio,
		Output:    f.Output,
		Config:    cfg,
	}, nil
}
