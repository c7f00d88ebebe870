package gena

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
)

func eventedService(t *testing.T) *upnp.Service {
	t.Helper()
	svc := upnp.NewService(upnp.DomainSchemasUPnPOrg, "RenderingControl", 1, "RenderingControl")
	require.NoError(t, svc.AddStateVariable(upnp.NewEventedStateVariable("LastChange", upnp.DataTypeString)))
	require.NoError(t, svc.AddStateVariable(upnp.NewEventedStateVariable("Volume", upnp.DataTypeUI2)))
	require.NoError(t, svc.AddStateVariable(&upnp.StateVariable{Name: "A_ARG_TYPE_Channel", Type: upnp.DataTypeString}))
	return svc
}

func TestPropertySetRoundTrip(t *testing.T) {
	svc := eventedService(t)
	lastChange, _ := svc.StateVariable("LastChange")
	volume, _ := svc.StateVariable("Volume")

	body, err := EncodePropertySet([]Property{
		{Variable: lastChange, Value: `<Event val="1"/>`},
		{Variable: volume, Value: uint16(30)},
	}, true)
	require.NoError(t, err)
	assert.Contains(t, body, `<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">`)
	assert.Contains(t, body, `<e:property><Volume>30</Volume></e:property>`)
	assert.Contains(t, body, `&lt;Event val=`)

	values, err := ParsePropertySet(strings.NewReader(body), "utf-8", svc, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"LastChange": `<Event val="1"/>`,
		"Volume":     uint16(30),
	}, values)
}

func TestEncodePropertySetWrongValue(t *testing.T) {
	svc := eventedService(t)
	volume, _ := svc.StateVariable("Volume")
	_, err := EncodePropertySet([]Property{{Variable: volume, Value: "loud"}}, false)
	require.ErrorIs(t, err, upnp.ErrValueType)
}

func TestParsePropertySet(t *testing.T) {
	svc := eventedService(t)

	values, err := ParsePropertySet(strings.NewReader(`<?xml version="1.0"?>
<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">
  <e:property><Volume>7</Volume></e:property>
  <e:property><Brightness>3</Brightness></e:property>
  <e:property><A_ARG_TYPE_Channel>Master</A_ARG_TYPE_Channel></e:property>
  <other/>
</e:propertyset>`), "", svc, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Volume": uint16(7)}, values)

	for name, body := range map[string]string{
		"empty":           "",
		"wrong namespace": `<propertyset><property><Volume>7</Volume></property></propertyset>`,
		"wrong root":      `<e:property xmlns:e="urn:schemas-upnp-org:event-1-0"/>`,
		"bad value":       `<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0"><e:property><Volume>loud</Volume></e:property></e:propertyset>`,
		"truncated":       `<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0"><e:property><Volume>7</Volume>`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePropertySet(strings.NewReader(body), "", svc, false)
			assert.Error(t, err)
		})
	}
}
