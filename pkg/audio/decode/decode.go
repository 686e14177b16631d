// Package decode loads audio files into SampleBuffers.
package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	"github.com/xaionaro-go/audiosync/pkg/audio/registry"
	"github.com/xaionaro-go/audiosync/pkg/audio/resampler"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/datacounter"

	_ "github.com/xaionaro-go/audiosync/pkg/audio/decoders/mp3"
	_ "github.com/xaionaro-go/audiosync/pkg/audio/decoders/vorbis"
	"github.com/xaionaro-go/audiosync/pkg/audio/decoders/wav"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Transcoder converts an arbitrary media file into a WAV file.
type Transcoder interface {
	TranscodeToWAV(ctx context.Context, inPath, outPath string) error
}

type Options struct {
	// SampleRate is the sample rate of the result; zero keeps the native one.
	SampleRate audio.SampleRate
	// Channels is the channel count of the result; zero keeps the native one.
	Channels audio.Channel
	// MaxDuration limits the amount of decoded audio; zero means no limit.
	MaxDuration time.Duration
	// Transcoder is used for files none of the registered decoders accepts.
	Transcoder Transcoder
}

// Load decodes the audio file at path.
func Load(
	ctx context.Context,
	path string,
	opts Options,
) (audio.SampleBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return audio.SampleBuffer{}, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	defer f.Close()

	var mErr *multierror.Error
	for _, factory := range registry.DecoderFactoriesFor(filepath.Ext(path)) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return audio.SampleBuffer{}, fmt.Errorf("unable to rewind '%s': %w", path, err)
		}
		stream, err := factory.NewDecoder(f)
		if err != nil {
			logger.Debugf(ctx, "decoder %T does not accept '%s': %v", factory, path, err)
			mErr = multierror.Append(mErr, fmt.Errorf("%T: %w", factory, err))
			continue
		}
		buf, err := Read(ctx, stream, opts)
		if err != nil {
			return audio.SampleBuffer{}, fmt.Errorf("unable to decode '%s': %w", path, err)
		}
		return buf, nil
	}

	if opts.Transcoder == nil {
		if err := mErr.ErrorOrNil(); err != nil {
			return audio.SampleBuffer{}, fmt.Errorf("%w: '%s': %w", ErrUnsupportedFormat, path, err)
		}
		return audio.SampleBuffer{}, fmt.Errorf("%w: '%s'", ErrUnsupportedFormat, path)
	}
	return loadTranscoded(ctx, path, opts)
}

func loadTranscoded(
	ctx context.Context,
	path string,
	opts Options,
) (audio.SampleBuffer, error) {
	tmpDir, err := os.MkdirTemp("", "audiosync-decode-")
	if err != nil {
		return audio.SampleBuffer{}, fmt.Errorf("unable to create a temporary directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logger.Errorf(ctx, "unable to remove '%s': %v", tmpDir, err)
		}
	}()

	wavPath := filepath.Join(tmpDir, "audio.wav")
	logger.Debugf(ctx, "transcoding '%s' into '%s'", path, wavPath)
	if err := opts.Transcoder.TranscodeToWAV(ctx, path, wavPath); err != nil {
		return audio.SampleBuffer{}, fmt.Errorf("unable to transcode '%s': %w", path, err)
	}

	f, err := os.Open(wavPath)
	if err != nil {
		return audio.SampleBuffer{}, fmt.Errorf("unable to open the transcoded file: %w", err)
	}
	defer f.Close()

	stream, err := wav.NewStream(f)
	if err != nil {
		return audio.SampleBuffer{}, fmt.Errorf("unable to parse the transcoded file: %w", err)
	}
	return Read(ctx, stream, opts)
}

// Read converts the whole stream according to opts. The Transcoder of opts
// is ignored.
func Read(
	ctx context.Context,
	stream types.PCMStream,
	opts Options,
) (audio.SampleBuffer, error) {
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = stream.SampleRate()
	}
	channels := opts.Channels
	if channels == 0 {
		channels = stream.Channels()
	}
	maxFrames := 0
	if opts.MaxDuration > 0 {
		maxFrames = audio.FramesForDuration(sampleRate, opts.MaxDuration)
	}

	startTS := time.Now()
	counter := datacounter.NewReaderCounter(stream)
	buf, err := resampler.ReadAll(resampler.FormatOf(stream), counter, sampleRate, channels, maxFrames)
	if err != nil {
		return audio.SampleBuffer{}, err
	}
	buf.SourceFormat = stream.PCMFormat()
	logger.Debugf(ctx,
		"decoded %d bytes of %v %dch %dHz into %d frames of %dch %dHz (%v), took %v",
		counter.Count(), stream.PCMFormat(), stream.Channels(), stream.SampleRate(),
		buf.Frames(), channels, sampleRate, buf.Duration(), time.Since(startTS),
	)
	return buf, nil
}
