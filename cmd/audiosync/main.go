// audiosync replaces the audio track of a video with an external recording,
// keeping them in sync.
//
// The offset is estimated between the audio of the video and an instrument
// track recorded in sync with the main audio (for example a stem of the
// same multitrack session), so the main audio does not need to sound like
// the camera's recording.
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
)

func main() {
	f := newFlags(pflag.CommandLine)
	pflag.Parse()

	l := logrus.Default().WithLevel(f.LoggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if f.NetPprofListenAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(f.NetPprofListenAddr, nil)) })
	}

	p, err := f.Params(pflag.CommandLine)
	if err != nil {
		exit(ctx, err)
	}

	r, err := run(ctx, p)
	if err != nil {
		exit(ctx, err)
	}
	fmt.Println(r)
}

func exit(ctx context.Context, err error) {
	logger.Errorf(ctx, "%v", err)
	belt.Flush(ctx)
	os.Exit(exitCode(err))
}
