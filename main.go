package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/forestnode-io/upnpstack/pkg/commands/root"
	"github.com/forestnode-io/upnpstack/pkg/events"
	"github.com/forestnode-io/upnpstack/pkg/log"
)

func main() {
	ctx := context.Background()
	ctx = events.WithEvents(ctx)

	status := events.ExitCodeGenericFailure
	defer func() {
		if r := recover(); r != nil {
			panic(r)
		}
		if ec := events.GetExitCode(ctx); -1 < ec {
			status = ec
		}
		os.Exit(status)
	}()

	sigs := []os.Signal{
		os.Interrupt,
	}
	if _, isUnix := unixOS[runtime.GOOS]; isUnix {
		sigs = append(sigs, syscall.SIGTERM, syscall.SIGHUP)
	}
	ctx, cancel := signal.NotifyContext(ctx, sigs...)
	defer cancel()

	ctx, cleanup, err := log.Logging(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	defer cleanup()

	_ = root.ExecuteContext(ctx)
}

// copied from https://github.com/golang/go/blob/ebb572d82f97d19d0016a49956eb1fddc658eb76/src/go/build/syslist.go#L38
var unixOS = map[string]struct{}{
	"aix":       {},
	"android":   {},
	"darwin":    {},
	"dragonfly": {},
	"freebsd":   {},
	"hurd":      {},
	"illumos":   {},
	"ios":       {},
	"linux":     {},
	"netbsd":    {},
	"openbsd":   {},
	"solaris":   {},
}
