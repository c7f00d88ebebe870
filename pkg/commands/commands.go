// Package commands holds what the upnpstack subcommands share.
package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/forestnode-io/upnpstack/pkg/configuration"
	"github.com/forestnode-io/upnpstack/pkg/metrics"
)

const shutdownTimeout = 500 * time.Millisecond

// UsageError is returned for invalid invocations; the root command prints
// the usage for it.
type UsageError struct {
	Err error
}

func (u *UsageError) Error() string {
	return u.Err.Error()
}

func (u *UsageError) Unwrap() error {
	return u.Err
}

func UsageErrorF(format string, a ...any) error {
	return &UsageError{Err: fmt.Errorf(format, a...)}
}

func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}

// Metrics returns a recorder if metrics are enabled, nil otherwise. If
// serve is true, /metrics is served on the configured address until ctx
// is done.
func Metrics(ctx context.Context, config *configuration.Metrics, serve bool) (*metrics.Metrics, error) {
	if !config.Enabled {
		return nil, nil
	}
	m := metrics.New(prometheus.NewRegistry())
	if !serve {
		return m, nil
	}

	l, err := net.Listen("tcp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("error listening for metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Err(err).
				Msg("metrics server failed")
		}
	}()
	zerolog.Ctx(ctx).Info().
		Str("address", l.Addr().String()).
		Msg("serving metrics")

	return m, nil
}
