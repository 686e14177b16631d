// Package ffmpeg wraps the invocations of the ffmpeg binary: extracting the
// audio track of a video, transcoding arbitrary media into WAV, and muxing a
// new audio track into a video.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
)

const (
	DefaultBinary = "ffmpeg"

	DefaultAudioCodec   = "aac"
	DefaultAudioBitrate = "160k"
)

var ErrExternalTool = errors.New("external tool failure")

// CommandRunner executes the binary and returns its combined output.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, binary, args...).CombinedOutput()
}

type FFmpeg struct {
	Binary string
	run    CommandRunner
}

// New returns a wrapper of the given ffmpeg binary (DefaultBinary if empty).
func New(binary string) *FFmpeg {
	if binary == "" {
		binary = DefaultBinary
	}
	return &FFmpeg{
		Binary: binary,
		run:    defaultCommandRunner,
	}
}

// WithCommandRunner replaces the way the binary is executed.
func (f *FFmpeg) WithCommandRunner(r CommandRunner) *FFmpeg {
	if r != nil {
		f.run = r
	}
	return f
}

// ExtractAudio writes the audio of the video into outPath; the output
// format follows the extension of outPath.
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	if err := f.execute(ctx, outPath, ExtractAudioArgs(videoPath, outPath)); err != nil {
		return fmt.Errorf("unable to extract the audio of '%s': %w", videoPath, err)
	}
	return nil
}

// TranscodeToWAV converts the audio of any media file ffmpeg understands
// into a WAV file.
func (f *FFmpeg) TranscodeToWAV(ctx context.Context, inPath, outPath string) error {
	if err := f.execute(ctx, outPath, TranscodeToWAVArgs(inPath, outPath)); err != nil {
		return fmt.Errorf("unable to transcode '%s': %w", inPath, err)
	}
	return nil
}

// RemuxRequest describes replacing the audio of a video.
type RemuxRequest struct {
	Video  string
	Audio  string
	Output string

	// Begin is the position the output starts at.
	Begin time.Duration
	// Duration is the length of the output.
	Duration time.Duration

	// Codec is DefaultAudioCodec if empty.
	Codec string
	// Bitrate is DefaultAudioBitrate if empty.
	Bitrate string
}

func (req RemuxRequest) Validate() error {
	var missing []string
	if req.Video == "" {
		missing = append(missing, "video")
	}
	if req.Audio == "" {
		missing = append(missing, "audio")
	}
	if req.Output == "" {
		missing = append(missing, "output")
	}
	if len(missing) > 0 {
		return fmt.Errorf("the path of %s is not set", strings.Join(missing, ", "))
	}
	if req.Begin < 0 || req.Duration < 0 {
		return fmt.Errorf("negative begin (%v) or duration (%v)", req.Begin, req.Duration)
	}
	return nil
}

// Args returns the ffmpeg arguments: the video stream of req.Video is
// copied as is, the audio stream is taken from req.Audio and re-encoded.
func (req RemuxRequest) Args() []string {
	codec := req.Codec
	if codec == "" {
		codec = DefaultAudioCodec
	}
	bitrate := req.Bitrate
	if bitrate == "" {
		bitrate = DefaultAudioBitrate
	}
	args := []string{
		"-y",
		"-i", req.Video,
		"-i", req.Audio,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", codec,
		"-ss", formatSeconds(req.Begin),
	}
	if req.Duration > 0 {
		args = append(args, "-t", formatSeconds(req.Duration))
	}
	return append(args, "-b:a", bitrate, req.Output)
}

func (f *FFmpeg) Remux(ctx context.Context, req RemuxRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid remux request: %w", err)
	}
	if err := f.execute(ctx, req.Output, req.Args()); err != nil {
		return fmt.Errorf("unable to mux '%s' into '%s': %w", req.Audio, req.Video, err)
	}
	return nil
}

func ExtractAudioArgs(videoPath, outPath string) []string {
	return []string{"-y", "-loglevel", "quiet", "-i", videoPath, outPath}
}

func TranscodeToWAVArgs(inPath, outPath string) []string {
	return []string{"-y", "-loglevel", "error", "-i", inPath, "-vn", "-c:a", "pcm_s16le", "-f", "wav", outPath}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func (f *FFmpeg) execute(ctx context.Context, outPath string, args []string) error {
	cmdLine := f.Binary + " " + strings.Join(args, " ")
	logger.Debugf(ctx, "running: %s", cmdLine)

	startTS := time.Now()
	output, err := f.run(ctx, f.Binary, args...)
	logger.Debugf(ctx, "'%s' finished in %v: %v", cmdLine, time.Since(startTS), err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: '%s': %w: %s", ErrExternalTool, cmdLine, err, strings.TrimSpace(string(output)))
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("%w: '%s' did not produce '%s': %w: %s", ErrExternalTool, cmdLine, outPath, err, strings.TrimSpace(string(output)))
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: '%s' produced an empty '%s': %s", ErrExternalTool, cmdLine, outPath, strings.TrimSpace(string(output)))
	}
	return nil
}
