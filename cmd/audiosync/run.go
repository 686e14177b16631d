package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/audiosync/pkg/alignment"
	"github.com/xaionaro-go/audiosync/pkg/audio/decode"
	"github.com/xaionaro-go/audiosync/pkg/audio/encode"
	"github.com/xaionaro-go/audiosync/pkg/chroma"
	"github.com/xaionaro-go/audiosync/pkg/config"
	"github.com/xaionaro-go/audiosync/pkg/ffmpeg"
	"github.com/xaionaro-go/audiosync/pkg/offset"
	"github.com/xaionaro-go/audiosync/pkg/shifter"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
	"github.com/xaionaro-go/audiosync/pkg/syncer/implementations/chromarqa"
	"github.com/xaionaro-go/audiosync/pkg/syncer/implementations/gccphat"
)

var ErrInputMissing = errors.New("input file is missing")

// lowConfidence is the confidence below which the result is reported as suspicious.
const lowConfidence = 0.5

type params struct {
	Video     string
	InstAudio string
	MainAudio string
	Output    string
	Config    config.Config
}

type report struct {
	Shift     syncer.ShiftResult
	MainAudio time.Duration
	Output    string
}

func (r report) String() string {
	action := "padded with silence"
	if r.Shift.Shift > 0 {
		action = "trimmed"
	}
	return fmt.Sprintf("Synced and combined successfully to %s: the main audio (%v) was %s by %.3fs, confidence %.3f",
		r.Output, r.MainAudio.Round(time.Millisecond), action, math.Abs(r.Shift.Shift), r.Shift.Confidence)
}

// validateInputs reports every missing input at once.
func validateInputs(p params) error {
	var mErr *multierror.Error
	for _, input := range []struct {
		name string
		path string
	}{
		{"video", p.Video},
		{"instrument audio", p.InstAudio},
		{"main audio", p.MainAudio},
	} {
		if input.path == "" {
			mErr = multierror.Append(mErr, fmt.Errorf("%w: the path of the %s file is not set", ErrInputMissing, input.name))
			continue
		}
		info, err := os.Stat(input.path)
		switch {
		case err != nil:
			mErr = multierror.Append(mErr, fmt.Errorf("%w: %s file '%s': %w", ErrInputMissing, input.name, input.path, err))
		case info.IsDir():
			mErr = multierror.Append(mErr, fmt.Errorf("%w: %s file '%s' is a directory", ErrInputMissing, input.name, input.path))
		}
	}
	if p.Output == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("the path of the output file is not set"))
	}
	return mErr.ErrorOrNil()
}

func newSyncer(cfg config.Config) (syncer.Syncer, error) {
	switch cfg.Method {
	case config.MethodChromaRQA:
		return chromarqa.NewSyncer(cfg.ChromaRQA())
	case config.MethodGCCPHAT:
		return gccphat.NewSyncer(), nil
	default:
		return nil, fmt.Errorf("%w: unknown method '%s'", config.ErrInvalidConfig, cfg.Method)
	}
}

func run(ctx context.Context, p params) (_ *report, _err error) {
	if err := validateInputs(p); err != nil {
		return nil, err
	}
	cfg := p.Config
	ff := ffmpeg.New(cfg.FFmpegBinary)

	tmpDir, err := os.MkdirTemp("", "audiosync-")
	if err != nil {
		return nil, fmt.Errorf("unable to create a temporary directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			_err = multierror.Append(_err, fmt.Errorf("unable to remove '%s': %w", tmpDir, err)).ErrorOrNil()
		}
	}()

	analysisOpts := decode.Options{
		SampleRate:  cfg.SampleRate,
		Channels:    1,
		MaxDuration: time.Duration(cfg.AnalysisDuration),
		Transcoder:  ff,
	}

	logger.Infof(ctx, "loading the instrument audio '%s'", p.InstAudio)
	instAudio, err := decode.Load(ctx, p.InstAudio, analysisOpts)
	if err != nil {
		return nil, fmt.Errorf("unable to load the instrument audio: %w", err)
	}

	logger.Infof(ctx, "extracting the audio of the video '%s'", p.Video)
	videoAudioPath := filepath.Join(tmpDir, "video.wav")
	if err := ff.ExtractAudio(ctx, p.Video, videoAudioPath); err != nil {
		return nil, err
	}
	videoAudio, err := decode.Load(ctx, videoAudioPath, analysisOpts)
	if err != nil {
		return nil, fmt.Errorf("unable to load the audio of the video: %w", err)
	}

	s, err := newSyncer(cfg)
	if err != nil {
		return nil, err
	}
	logger.Infof(ctx, "estimating the offset (%s) on %v of the video and %v of the instrument audio", cfg.Method, videoAudio.Duration(), instAudio.Duration())
	results, err := s.CalculateShiftBetween(ctx, videoAudio, instAudio)
	if err != nil {
		return nil, fmt.Errorf("unable to estimate the offset: %w", err)
	}
	shift := results[0]
	logger.Infof(ctx, "offset: %v", shift)
	if shift.Confidence < lowConfidence {
		logger.Warnf(ctx, "the confidence of the offset is low (%.3f); check the result", shift.Confidence)
	}

	logger.Infof(ctx, "loading the main audio '%s'", p.MainAudio)
	// native rate and channels; the bit depth is restored by the encoder
	mainAudio, err := decode.Load(ctx, p.MainAudio, decode.Options{
		Transcoder: ff,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to load the main audio: %w", err)
	}

	synced := shifter.Shift(mainAudio, shift.Shift)
	syncedPath := filepath.Join(tmpDir, "synced.wav")
	if err := encode.WriteWAVFile(syncedPath, synced); err != nil {
		return nil, fmt.Errorf("unable to store the synced audio: %w", err)
	}

	logger.Infof(ctx, "muxing the synced audio into '%s'", p.Output)
	err = ff.Remux(ctx, ffmpeg.RemuxRequest{
		Video:    p.Video,
		Audio:    syncedPath,
		Output:   p.Output,
		Begin:    secondsToDuration(math.Abs(shift.Shift)),
		Duration: mainAudio.Duration(),
	})
	if err != nil {
		return nil, err
	}

	return &report{
		Shift:     shift,
		MainAudio: mainAudio.Duration(),
		Output:    p.Output,
	}, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

const (
	exitCodeGeneric = 1 + iota
	exitCodeInputMissing
	exitCodeInsufficientAudio
	exitCodeNoAlignment
	exitCodeExternalTool
)

func exitCode(err error) int {
	switch {
	case errors.Is(err, ErrInputMissing):
		return exitCodeInputMissing
	case errors.Is(err, chroma.ErrInsufficientAudio):
		return exitCodeInsufficientAudio
	case errors.Is(err, alignment.ErrEmptyAlignment), errors.Is(err, offset.ErrUnstableEstimate):
		return exitCodeNoAlignment
	case errors.Is(err, ffmpeg.ErrExternalTool):
		return exitCodeExternalTool
	default:
		return exitCodeGeneric
	}
}
