package output

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestnode-io/upnpstack/pkg/events"
	"github.com/forestnode-io/upnpstack/pkg/upnp"
)

func render(t *testing.T, format string, raise ...events.Event) string {
	t.Helper()
	var buf bytes.Buffer
	ctx := events.WithEvents(context.Background())
	ctx = WithWriter(ctx, &buf)

	var f Format
	require.NoError(t, f.Set(format))
	SetFormat(ctx, f)
	events.RegisterEventListener(ctx, SetEventsChan)
	Init(ctx)

	for _, e := range raise {
		events.Raise(ctx, e)
	}
	events.Stop(ctx)
	Wait(ctx)
	return buf.String()
}

var (
	renderer = &events.RootDevice{
		Change:      events.RootDeviceAdded,
		UUID:        "renderer",
		UPnPVersion: "UPnP/1.1",
		Location:    "http://192.168.1.10/desc.xml",
		Distance:    "site-local",
		Devices: map[string][]string{
			"renderer": {"urn:schemas-upnp-org:service:RenderingControl:1"},
		},
	}
	server = &events.RootDevice{
		Change:      events.RootDeviceAdded,
		UUID:        "server",
		UPnPVersion: "UPnP/1.0",
	}
)

func TestHuman(t *testing.T) {
	out := render(t, "human",
		renderer,
		&events.ActionResult{Action: "GetVolume", Out: map[string]any{"CurrentVolume": uint16(40)}},
		&events.ActionResult{Action: "GetVolume", Fault: upnp.NewError(702, "Invalid InstanceID")},
		&events.StateChange{SID: "uuid:1", Service: "RenderingControl", SEQ: 3, Values: map[string]any{"Volume": "40", "Mute": "0"}},
	)

	assert.Contains(t, out, "uuid:1 seq 3\n  Mute=0\n  Volume=40\n")
	assert.Contains(t, out, "uuid:renderer UPnP/1.1 http://192.168.1.10/desc.xml (site-local)")
	assert.Contains(t, out, "    urn:schemas-upnp-org:service:RenderingControl:1\n")
	assert.Contains(t, out, "CurrentVolume=40\n")
	assert.Contains(t, out, "GetVolume failed with UPnP error 702: Invalid InstanceID\n")
}

func TestJSON(t *testing.T) {
	removed := *server
	removed.Change = events.RootDeviceRemoved

	out := render(t, "json=compact",
		server,
		renderer,
		&removed,
		&events.Listening{UUID: "me", DescriptionURL: "http://127.0.0.1/desc.xml"},
		&events.StateChange{SID: "uuid:1", Service: "RenderingControl", Values: map[string]any{"LastChange": "<Event/>"}},
	)

	var report Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.RootDevices, 1)
	assert.Equal(t, "renderer", report.RootDevices[0].UUID)
	require.NotNil(t, report.Listening)
	assert.Equal(t, "me", report.Listening.UUID)
	require.Len(t, report.StateChanges, 1)
	assert.Equal(t, "<Event/>", report.StateChanges[0].Values["LastChange"])
	assert.NotContains(t, out, "\n  ")
}

func TestQuiet(t *testing.T) {
	var buf bytes.Buffer
	ctx := events.WithEvents(context.Background())
	ctx = WithWriter(ctx, &buf)
	Quiet(ctx)
	events.RegisterEventListener(ctx, SetEventsChan)
	Init(ctx)

	events.Raise(ctx, renderer)
	events.Stop(ctx)
	Wait(ctx)
	assert.Empty(t, buf.String())
}

func TestFormatFlag(t *testing.T) {
	var f Format
	require.NoError(t, f.Set("json=compact,extra"))
	assert.Equal(t, "json", f.Format)
	assert.Equal(t, []string{"compact", "extra"}, f.Opts)
	assert.Equal(t, "json=compact,extra", f.String())

	require.NoError(t, f.Set("human"))
	assert.Equal(t, "", f.Format)
	assert.Nil(t, f.Opts)

	assert.Error(t, f.Set("yaml"))
}

func TestQuietAfterInit(t *testing.T) {
	var buf bytes.Buffer
	ctx := events.WithEvents(context.Background())
	ctx = WithWriter(ctx, &buf)

	SetFormat(ctx, Format{Format: "json"})
	events.RegisterEventListener(ctx, SetEventsChan)
	Init(ctx)
	Quiet(ctx)

	events.Raise(ctx, renderer)
	events.Stop(ctx)
	Wait(ctx)
	assert.Empty(t, buf.String())
}
