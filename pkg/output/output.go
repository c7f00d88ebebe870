// Package output renders the events raised by a command, either as human
// readable lines as they happen or as a single JSON report at the end.
package output

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	"github.com/muesli/termenv"
	"github.com/rs/zerolog"

	"github.com/forestnode-io/upnpstack/pkg/events"
)

type key struct{}

func getOutput(ctx context.Context) *output {
	o, _ := ctx.Value(key{}).(*output)
	if o == nil {
		panic("no output set")
	}
	return o
}

type output struct {
	events <-chan events.Event

	Format     string
	FormatOpts map[string]struct{}

	stdout io.Writer
	te     *termenv.Output
	quiet  atomic.Bool

	report Report

	doneChan chan struct{}
}

// WithOutput attaches an output writing to stdout to ctx.
func WithOutput(ctx context.Context) context.Context {
	return WithWriter(ctx, os.Stdout)
}

func WithWriter(ctx context.Context, w io.Writer) context.Context {
	o := output{
		FormatOpts: make(map[string]struct{}),
		stdout:     w,
		te:         termenv.NewOutput(w),
		doneChan:   make(chan struct{}),
	}
	return context.WithValue(ctx, key{}, &o)
}

// SetEventsChan is an events.SetEventChanFunc.
func SetEventsChan(ctx context.Context, ec <-chan events.Event) {
	getOutput(ctx).events = ec
}

func SetFormat(ctx context.Context, f Format) {
	o := getOutput(ctx)
	o.Format = f.Format
	for _, opt := range f.Opts {
		o.FormatOpts[opt] = struct{}{}
	}
}

// Quiet stops reporting events. Commands that write their own output
// call it once output is running.
func Quiet(ctx context.Context) {
	getOutput(ctx).quiet.Store(true)
}

// Init starts rendering events. It returns immediately.
func Init(ctx context.Context) {
	o := getOutput(ctx)
	go o.run(ctx)
}

// Wait blocks until the events channel has been drained.
func Wait(ctx context.Context) {
	<-getOutput(ctx).doneChan
}

func (o *output) run(ctx context.Context) {
	log := zerolog.Ctx(ctx)
	defer close(o.doneChan)

	if o.events == nil {
		log.Debug().
			Msg("output has no events channel")
		return
	}

	switch {
	case o.quiet.Load():
		log.Debug().
			Msg("output running in quiet mode")
		for range o.events {
		}
	case o.Format == "json":
		log.Debug().
			Msg("output running in json mode")
		runJSON(ctx, o)
	default:
		log.Debug().
			Msg("output running in human mode")
		runHuman(ctx, o)
	}

	log.Debug().
		Msg("output system shut down")
}
