package root

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestnode-io/upnpstack/pkg/configuration"
	"github.com/forestnode-io/upnpstack/pkg/events"
	"github.com/forestnode-io/upnpstack/pkg/output"
)

func execute(t *testing.T, args ...string) (string, context.Context, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	ctx := events.WithEvents(context.Background())
	ctx = output.WithWriter(ctx, io.Discard)

	addTemplateFuncs()
	root := newRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	events.Stop(ctx)
	if root.outputStarted {
		output.Wait(ctx)
	}
	return buf.String(), ctx, err
}

func TestSubCommands(t *testing.T) {
	cmd := CobraCommand()
	var names []string
	for _, sc := range cmd.Commands() {
		names = append(names, sc.Name())
	}
	assert.ElementsMatch(t, []string{"discover", "invoke", "subscribe", "serve", "config", "version"}, names)

	usage := cmd.UsageString()
	assert.Contains(t, usage, "SSDP Flags:")
	assert.Contains(t, usage, "--search-target")
	assert.Contains(t, usage, "--metrics-address")
}

func TestConfigFlagAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 50000\n"), 0600))

	out, ctx, err := execute(t, "--config", path, "--friendly-name", "den", "config", "get")
	require.NoError(t, err)
	assert.Equal(t, events.ExitCodeSuccess, events.GetExitCode(ctx))

	config, err := configuration.ReadYAML(bytes.NewReader([]byte(out)))
	require.NoError(t, err)
	assert.Equal(t, 50000, config.Server.Port)
	assert.Equal(t, "den", config.Server.FriendlyName)
}

func TestInvalidConfiguration(t *testing.T) {
	_, ctx, err := execute(t, "--mx", "9", "config", "get")
	require.Error(t, err)
	assert.Equal(t, events.ExitCodeGenericFailure, events.GetExitCode(ctx))
}

func TestInvokeUsage(t *testing.T) {
	_, _, err := execute(t, "invoke", "only-target")
	assert.Error(t, err)
}
