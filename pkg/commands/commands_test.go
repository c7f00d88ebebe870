package commands

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestnode-io/upnpstack/pkg/configuration"
)

func TestUsageError(t *testing.T) {
	err := UsageErrorF("bad argument %q: %w", "x", errors.New("nope"))
	assert.True(t, IsUsageError(err))
	assert.EqualError(t, err, `bad argument "x": nope`)

	assert.False(t, IsUsageError(errors.New("plain")))
}

func TestLocalEndpoint(t *testing.T) {
	e, err := LocalEndpoint(&configuration.SSDP{})
	require.NoError(t, err)
	assert.False(t, e.Addr.IsValid())

	e, err = LocalEndpoint(&configuration.SSDP{LocalAddr: "192.168.1.10"})
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("192.168.1.10"), e.Addr)

	_, err = LocalEndpoint(&configuration.SSDP{LocalAddr: "not-an-ip"})
	assert.Error(t, err)
}

func TestMetricsDisabled(t *testing.T) {
	m, err := Metrics(context.Background(), &configuration.Metrics{}, true)
	require.NoError(t, err)
	assert.Nil(t, m)
}
