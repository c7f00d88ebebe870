package soap

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func describeRequest(args string) string {
	return envelope(`<u:Describe xmlns:u="` + renderingControlURN + `">` + args + `</u:Describe>`)
}

const validDescribeArgs = `<InstanceID>0</InstanceID><Channel>Master</Channel><Mute>0</Mute><Item xsi:nil="true" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"/>`

func requireFault(t *testing.T, outcome Outcome, code uint32) {
	t.Helper()
	fault, ok := outcome.(Fault)
	require.True(t, ok, "expected a fault, got %T", outcome)
	assert.Equal(t, http.StatusInternalServerError, fault.Status())
	assert.Equal(t, code, fault.Code)

	parsed, err := ParseFault(strings.NewReader(fault.Body()), "")
	require.NoError(t, err)
	assert.Equal(t, code, parsed.Code)
	assert.Equal(t, fault.Description, parsed.Description)
}

func TestHandleRequestInvalidAction(t *testing.T) {
	s := newService(t, &recorder{}, nil)
	doc := envelope(`<u:Explode xmlns:u="` + renderingControlURN + `"/>`)

	outcome := HandleRequest(context.Background(), s, strings.NewReader(doc), "", true, nil)
	requireFault(t, outcome, upnp.ErrorCodeInvalidAction)
	assert.Equal(t, upnp.DescriptionInvalidAction, outcome.(Fault).Description)
}

func TestHandleRequestInvalidArgs(t *testing.T) {
	tests := map[string]string{
		"swapped":       `<Channel>Master</Channel><InstanceID>0</InstanceID><Mute>0</Mute><Item/>`,
		"renamed":       `<InstanceID>0</InstanceID><Channel>Master</Channel><Muted>0</Muted><Item/>`,
		"too few":       `<InstanceID>0</InstanceID><Channel>Master</Channel>`,
		"too many":      validDescribeArgs + `<Extra>1</Extra>`,
		"none":          ``,
		"invalid value": `<InstanceID>zero</InstanceID><Channel>Master</Channel><Mute>0</Mute><Item/>`,
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			s := newService(t, rec, nil)

			outcome := HandleRequest(context.Background(), s, strings.NewReader(describeRequest(args)), "", true, nil)
			requireFault(t, outcome, upnp.ErrorCodeInvalidArgs)
			assert.Nil(t, rec.in)
		})
	}
}

func TestHandleRequestValid(t *testing.T) {
	rec := &recorder{}
	s := newService(t, rec, nil)

	outcome := HandleRequest(context.Background(), s, strings.NewReader(describeRequest(validDescribeArgs)), "", false, nil)
	require.IsType(t, Success{}, outcome)
	assert.Equal(t, []any{uint32(0), "Master", false, nil}, rec.in)
	assert.True(t, strings.HasPrefix(outcome.Body(), envelopeStart))
}

func TestHandleRequestInvokerErrors(t *testing.T) {
	tests := []struct {
		name        string
		invoke      upnp.Invoker
		code        uint32
		description string
	}{
		{
			name: "domain error",
			invoke: func(context.Context, *upnp.CallContext, []any) ([]any, error) {
				return nil, upnp.NewError(714, "No such object")
			},
			code:        714,
			description: "No such object",
		},
		{
			name: "wrapped domain error",
			invoke: func(context.Context, *upnp.CallContext, []any) ([]any, error) {
				return nil, errors.Join(errors.New("lookup"), upnp.NewError(701, "Transition not available"))
			},
			code:        701,
			description: "Transition not available",
		},
		{
			name: "failure",
			invoke: func(context.Context, *upnp.CallContext, []any) ([]any, error) {
				return nil, errors.New("database is closed")
			},
			code:        upnp.ErrorCodeActionFailed,
			description: upnp.DescriptionActionFailed,
		},
		{
			name: "panic",
			invoke: func(context.Context, *upnp.CallContext, []any) ([]any, error) {
				panic("nil map")
			},
			code:        upnp.ErrorCodeActionFailed,
			description: upnp.DescriptionActionFailed,
		},
		{
			name: "out count",
			invoke: func(context.Context, *upnp.CallContext, []any) ([]any, error) {
				return []any{int32(1), int32(2)}, nil
			},
			code:        upnp.ErrorCodeActionFailed,
			description: upnp.DescriptionActionFailed,
		},
		{
			name: "out type",
			invoke: func(context.Context, *upnp.CallContext, []any) ([]any, error) {
				return []any{"loud"}, nil
			},
			code:        upnp.ErrorCodeActionFailed,
			description: upnp.DescriptionActionFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newService(t, &recorder{}, tt.invoke)
			doc, err := EncodeCall(action(t, s, "GetVolume"), nil, upnp.UPnP11)
			require.NoError(t, err)

			outcome := HandleRequest(context.Background(), s, strings.NewReader(doc), "", true, nil)
			requireFault(t, outcome, tt.code)
			assert.Equal(t, tt.description, outcome.(Fault).Description)
			assert.NotContains(t, outcome.Body(), "database")
		})
	}
}

func TestHandleRequestMalformed(t *testing.T) {
	tests := map[string]string{
		"empty":           ``,
		"not xml":         `GET / HTTP/1.1`,
		"truncated":       describeRequest(validDescribeArgs)[:120],
		"no envelope":     `<Body><u:GetVolume xmlns:u="urn:x"/></Body>`,
		"empty body":      envelope(``),
		"foreign element": `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Trailer/></s:Envelope>`,
		"broken argument": describeRequest(`<InstanceID>0</Instance>`),
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			s := newService(t, &recorder{}, nil)

			outcome := HandleRequest(context.Background(), s, strings.NewReader(doc), "", true, nil)
			require.IsType(t, MalformedRequest{}, outcome)
			assert.Equal(t, http.StatusBadRequest, outcome.Status())
			assert.Empty(t, outcome.Body())
		})
	}
}

func TestHandleRequestForceSimpleResult(t *testing.T) {
	item := &mediaItem{ID: "1", Title: "a"}
	s := upnp.NewService(upnp.DomainSchemasUPnPOrg, "ContentDirectory", 1, "ContentDirectory")
	require.NoError(t, s.AddAction(upnp.NewAction("GetItem", nil,
		[]*upnp.Argument{upnp.NewOutArgument("Item", mediaItemType)},
		upnp.WithInvoker(func(context.Context, *upnp.CallContext, []any) ([]any, error) {
			return []any{item}, nil
		}))))
	a, _ := s.Action("GetItem")

	doc, err := EncodeCall(a, nil, upnp.UPnP11)
	require.NoError(t, err)

	outcome := HandleRequest(context.Background(), s, strings.NewReader(doc), "", true, nil)
	assert.Contains(t, outcome.Body(), `<Item><Item id="1"><Title>a</Title></Item></Item>`)

	outcome = HandleRequest(context.Background(), s, strings.NewReader(doc), "", false, nil)
	assert.Contains(t, outcome.Body(), `<Item>&lt;Item id=&#34;1&#34;&gt;&lt;Title&gt;a&lt;/Title&gt;&lt;/Item&gt;</Item>`)
}

// brokenType panics while serializing values.
type brokenType struct{}

func (brokenType) Name() string { return "broken" }

func (brokenType) SoapSerialize(any, bool) (string, error) {
	panic("marshaler bug")
}

func (brokenType) SoapParse(*xml.Decoder, xml.StartElement, bool) (any, error) {
	return nil, errors.New("not supported")
}

func TestHandleRequestImplementationBugs(t *testing.T) {
	t.Run("typed nil error", func(t *testing.T) {
		s := newService(t, &recorder{}, func(context.Context, *upnp.CallContext, []any) ([]any, error) {
			var err *upnp.Error
			return nil, err
		})
		doc, err := EncodeCall(action(t, s, "GetVolume"), nil, upnp.UPnP11)
		require.NoError(t, err)

		outcome := HandleRequest(context.Background(), s, strings.NewReader(doc), "", true, nil)
		requireFault(t, outcome, upnp.ErrorCodeActionFailed)
		assert.Equal(t, upnp.DescriptionActionFailed, outcome.(Fault).Description)
	})

	t.Run("panicking serializer", func(t *testing.T) {
		s := upnp.NewService(upnp.DomainSchemasUPnPOrg, "RenderingControl", 1, "RenderingControl")
		require.NoError(t, s.AddAction(upnp.NewAction("GetVolume",
			nil,
			[]*upnp.Argument{upnp.NewOutArgument("Volume", brokenType{})},
			upnp.WithInvoker(func(context.Context, *upnp.CallContext, []any) ([]any, error) {
				return []any{1}, nil
			}))))
		doc, err := EncodeCall(action(t, s, "GetVolume"), nil, upnp.UPnP11)
		require.NoError(t, err)

		outcome := HandleRequest(context.Background(), s, strings.NewReader(doc), "", true, nil)
		requireFault(t, outcome, upnp.ErrorCodeActionFailed)
	})
}
