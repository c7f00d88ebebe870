package upnp

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderingControl(t *testing.T, opts ...ActionOption) *Service {
	t.Helper()
	s := NewService(DomainSchemasUPnPOrg, "RenderingControl", 1, "RenderingControl")
	require.NoError(t, s.AddAction(NewAction("GetVolume",
		[]*Argument{NewInArgument("InstanceID", DataTypeUI4), NewInArgument("Channel", DataTypeString)},
		[]*Argument{NewOutArgument("CurrentVolume", DataTypeUI2)},
		opts...)))
	require.NoError(t, s.AddAction(NewAction("SetMute",
		[]*Argument{NewInArgument("InstanceID", DataTypeUI4), NewInArgument("DesiredMute", DataTypeBoolean)},
		nil,
		opts...)))
	return s
}

func TestServiceURNs(t *testing.T) {
	s := NewService("schemas.team-mediaportal.com", "ContentDirectory", 2, "ContentDirectory")
	assert.Equal(t, "urn:schemas-team-mediaportal-com:service:ContentDirectory:2", s.TypeVersionURN())
	assert.Equal(t, "urn:team-mediaportal-com:serviceId:ContentDirectory", s.ServiceIDURN())

	a := NewAction("Browse", nil, nil)
	require.NoError(t, s.AddAction(a))
	assert.Same(t, s, a.Service())
	assert.Equal(t, "urn:schemas-team-mediaportal-com:service:ContentDirectory:2#Browse", a.URN())

	require.ErrorIs(t, s.AddAction(NewAction("Browse", nil, nil)), ErrDuplicateAction)
}

func TestServiceActionsKeepOrder(t *testing.T) {
	s := renderingControl(t)
	actions := s.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, "GetVolume", actions[0].Name())
	assert.Equal(t, "SetMute", actions[1].Name())

	_, ok := s.Action("GetMute")
	assert.False(t, ok)
}

func TestSCPDRoundTrip(t *testing.T) {
	s := renderingControl(t)

	var buf bytes.Buffer
	require.NoError(t, s.WriteSCPD(&buf))
	assert.Contains(t, buf.String(), `xmlns="urn:schemas-upnp-org:service-1-0"`)

	doc, err := ReadSCPD(&buf)
	require.NoError(t, err)
	require.Len(t, doc.StateVariables, 4)

	parsed, err := ServiceFromSCPD(DomainSchemasUPnPOrg, "RenderingControl", 1, "RenderingControl", doc)
	require.NoError(t, err)

	a, ok := parsed.Action("GetVolume")
	require.True(t, ok)
	require.Len(t, a.InArguments(), 2)
	require.Len(t, a.OutArguments(), 1)
	assert.Equal(t, "InstanceID", a.InArguments()[0].Name)
	assert.Same(t, DataTypeUI4, a.InArguments()[0].Type)
	assert.Equal(t, "A_ARG_TYPE_InstanceID", a.InArguments()[0].RelatedStateVariable)
	assert.Same(t, DataTypeUI2, a.OutArguments()[0].Type)
	assert.Equal(t, DirectionOut, a.OutArguments()[0].Direction)
}

func TestSCPDEventedVariables(t *testing.T) {
	s := renderingControl(t)
	require.NoError(t, s.AddStateVariable(NewEventedStateVariable("LastChange", DataTypeString)))
	require.ErrorIs(t, s.AddStateVariable(NewEventedStateVariable("LastChange", DataTypeString)), ErrDuplicateStateVariable)
	assert.False(t, s.NeedsUPnP11Eventing())

	var buf bytes.Buffer
	require.NoError(t, s.WriteSCPD(&buf))
	doc, err := ReadSCPD(&buf)
	require.NoError(t, err)
	require.Len(t, doc.StateVariables, 5)
	assert.Equal(t, "LastChange", doc.StateVariables[0].Name)
	assert.Equal(t, "yes", doc.StateVariables[0].SendEvents)
	assert.Equal(t, "no", doc.StateVariables[1].SendEvents)

	parsed, err := ServiceFromSCPD(DomainSchemasUPnPOrg, "RenderingControl", 1, "RenderingControl", doc)
	require.NoError(t, err)
	evented := parsed.EventedStateVariables()
	require.Len(t, evented, 1)
	assert.Equal(t, "LastChange", evented[0].Name)
	assert.Same(t, DataTypeString, evented[0].Type)

	require.NoError(t, s.AddStateVariable(NewEventedStateVariable("Item", NewExtendedDataType("item", func() any { return new(mediaItem) }))))
	assert.True(t, s.NeedsUPnP11Eventing())
}

func TestServiceFromSCPDUnknownVariable(t *testing.T) {
	doc, err := ReadSCPD(bytes.NewBufferString(`<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <actionList>
    <action>
      <name>GetVolume</name>
      <argumentList>
        <argument><name>Volume</name><direction>out</direction><relatedStateVariable>Volume</relatedStateVariable></argument>
      </argumentList>
    </action>
  </actionList>
  <serviceStateTable/>
</scpd>`))
	require.NoError(t, err)

	_, err = ServiceFromSCPD(DomainSchemasUPnPOrg, "RenderingControl", 1, "RenderingControl", doc)
	require.ErrorIs(t, err, ErrInvalidSCPD)
}

func TestPendingCall(t *testing.T) {
	var handled []any
	h := ResultHandlerFuncs{
		OnResult: func(_ *Action, out []any, state any) {
			handled = append(handled, state.(*PendingCall).State)
		},
	}
	s := renderingControl(t, WithResultHandler(h))
	a, _ := s.Action("GetVolume")

	pc := NewPendingCall("call-1")
	a.ActionResultPresent([]any{uint16(42)}, pc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := pc.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{uint16(42)}, out)

	pc = NewPendingCall(nil)
	a.ActionErrorResultPresent(NewError(ErrorCodeActionFailed, DescriptionActionFailed), pc)
	_, err = pc.Wait(ctx)
	var upnpErr *Error
	require.ErrorAs(t, err, &upnpErr)
	assert.Equal(t, ErrorCodeActionFailed, upnpErr.Code)

	assert.Equal(t, []any{"call-1"}, handled)
}
