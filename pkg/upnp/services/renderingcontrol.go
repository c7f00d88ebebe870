// Package services implements UPnP services hosted by the serve command.
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
)

const (
	RenderingControlType    = "RenderingControl"
	RenderingControlVersion = 1
	RenderingControlID      = "RenderingControl"

	ChannelMaster = "Master"
	MaxVolume     = 100

	// NamespaceRCSEvent is the namespace of LastChange documents.
	NamespaceRCSEvent = "urn:schemas-upnp-org:metadata-1-0/RCS/"
)

const ErrorCodeInvalidInstanceID uint32 = 702

// Publisher receives changes of evented state variables.
type Publisher interface {
	Publish(svc *upnp.Service, values map[string]any)
}

// RenderingControl keeps volume and mute per channel of instance 0 in
// memory. Changes are evented through LastChange.
type RenderingControl struct {
	mu        sync.Mutex
	volume    map[string]uint16
	mute      map[string]bool
	svc       *upnp.Service
	publisher Publisher
}

func NewRenderingControl() *RenderingControl {
	return &RenderingControl{
		volume: map[string]uint16{ChannelMaster: 50},
		mute:   map[string]bool{ChannelMaster: false},
	}
}

// Service describes the actions and evented variables of rc.
func (rc *RenderingControl) Service() (*upnp.Service, error) {
	svc := upnp.NewService(upnp.DomainSchemasUPnPOrg, RenderingControlType, RenderingControlVersion, RenderingControlID)
	if err := svc.AddStateVariable(upnp.NewEventedStateVariable("LastChange", upnp.DataTypeString)); err != nil {
		return nil, err
	}

	instanceID := func() *upnp.Argument {
		a := upnp.NewInArgument("InstanceID", upnp.DataTypeUI4)
		a.RelatedStateVariable = "A_ARG_TYPE_InstanceID"
		return a
	}
	channel := func() *upnp.Argument {
		a := upnp.NewInArgument("Channel", upnp.DataTypeString)
		a.RelatedStateVariable = "A_ARG_TYPE_Channel"
		return a
	}
	related := func(a *upnp.Argument, v string) *upnp.Argument {
		a.RelatedStateVariable = v
		return a
	}

	actions := []*upnp.Action{
		upnp.NewAction("GetVolume",
			[]*upnp.Argument{instanceID(), channel()},
			[]*upnp.Argument{related(upnp.NewOutArgument("CurrentVolume", upnp.DataTypeUI2), "Volume")},
			upnp.WithInvoker(rc.getVolume)),
		upnp.NewAction("SetVolume",
			[]*upnp.Argument{instanceID(), channel(), related(upnp.NewInArgument("DesiredVolume", upnp.DataTypeUI2), "Volume")},
			nil,
			upnp.WithInvoker(rc.setVolume)),
		upnp.NewAction("GetMute",
			[]*upnp.Argument{instanceID(), channel()},
			[]*upnp.Argument{related(upnp.NewOutArgument("CurrentMute", upnp.DataTypeBoolean), "Mute")},
			upnp.WithInvoker(rc.getMute)),
		upnp.NewAction("SetMute",
			[]*upnp.Argument{instanceID(), channel(), related(upnp.NewInArgument("DesiredMute", upnp.DataTypeBoolean), "Mute")},
			nil,
			upnp.WithInvoker(rc.setMute)),
	}
	for _, a := range actions {
		if err := svc.AddAction(a); err != nil {
			return nil, err
		}
	}

	rc.mu.Lock()
	rc.svc = svc
	rc.mu.Unlock()
	return svc, nil
}

// PublishTo sends the current state and every later change to p. It must
// be called after Service.
func (rc *RenderingControl) PublishTo(p Publisher) {
	rc.mu.Lock()
	rc.publisher = p
	svc := rc.svc
	var lastChange strings.Builder
	for ch := range rc.volume {
		fmt.Fprintf(&lastChange, `<Volume channel="%s" val="%d"/>`, ch, rc.volume[ch])
		fmt.Fprintf(&lastChange, `<Mute channel="%s" val="%s"/>`, ch, boolValue(rc.mute[ch]))
	}
	rc.mu.Unlock()

	if svc != nil {
		p.Publish(svc, map[string]any{"LastChange": lastChangeEvent(lastChange.String())})
	}
}

// changed must be called with rc.mu held. It returns a function that
// publishes the change once rc.mu is released.
func (rc *RenderingControl) changed(element string) func() {
	p, svc := rc.publisher, rc.svc
	if p == nil || svc == nil {
		return func() {}
	}
	return func() {
		p.Publish(svc, map[string]any{"LastChange": lastChangeEvent(element)})
	}
}

func lastChangeEvent(elements string) string {
	return `<Event xmlns="` + NamespaceRCSEvent + `"><InstanceID val="0">` + elements + `</InstanceID></Event>`
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (rc *RenderingControl) getVolume(ctx context.Context, _ *upnp.CallContext, in []any) ([]any, error) {
	ch, err := target(in)
	if err != nil {
		return nil, err
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return []any{rc.volume[ch]}, nil
}

func (rc *RenderingControl) setVolume(ctx context.Context, _ *upnp.CallContext, in []any) ([]any, error) {
	ch, err := target(in)
	if err != nil {
		return nil, err
	}
	v, ok := in[2].(uint16)
	if !ok || v > MaxVolume {
		return nil, upnp.NewError(upnp.ErrorCodeArgumentValueInvalid, "Argument Value Invalid")
	}
	rc.mu.Lock()
	rc.volume[ch] = v
	publish := rc.changed(fmt.Sprintf(`<Volume channel="%s" val="%d"/>`, ch, v))
	rc.mu.Unlock()
	publish()

	zerolog.Ctx(ctx).Info().
		Str("channel", ch).
		Uint16("volume", v).
		Msg("volume changed")
	return nil, nil
}

func (rc *RenderingControl) getMute(ctx context.Context, _ *upnp.CallContext, in []any) ([]any, error) {
	ch, err := target(in)
	if err != nil {
		return nil, err
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return []any{rc.mute[ch]}, nil
}

func (rc *RenderingControl) setMute(ctx context.Context, _ *upnp.CallContext, in []any) ([]any, error) {
	ch, err := target(in)
	if err != nil {
		return nil, err
	}
	m, ok := in[2].(bool)
	if !ok {
		return nil, upnp.NewError(upnp.ErrorCodeArgumentValueInvalid, "Argument Value Invalid")
	}
	rc.mu.Lock()
	rc.mute[ch] = m
	publish := rc.changed(fmt.Sprintf(`<Mute channel="%s" val="%s"/>`, ch, boolValue(m)))
	rc.mu.Unlock()
	publish()

	zerolog.Ctx(ctx).Info().
		Str("channel", ch).
		Bool("mute", m).
		Msg("mute changed")
	return nil, nil
}

// target validates InstanceID and Channel, the first two in arguments of
// every action.
func target(in []any) (string, error) {
	if id, ok := in[0].(uint32); !ok || id != 0 {
		return "", upnp.NewError(ErrorCodeInvalidInstanceID, "Invalid InstanceID")
	}
	ch, ok := in[1].(string)
	if !ok || ch != ChannelMaster {
		return "", upnp.NewError(upnp.ErrorCodeArgumentValueInvalid, "Invalid Channel")
	}
	return ch, nil
}
