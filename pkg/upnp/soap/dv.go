package soap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/rs/zerolog"
)

// Outcome is the result of handling one action request: a Success, a
// Fault or a MalformedRequest.
type Outcome interface {
	// Status is the HTTP status code the outcome is sent with.
	Status() int
	// Body is the response document, empty for malformed requests.
	Body() string

	outcome()
}

type Success struct {
	Document string
}

func (Success) Status() int { return http.StatusOK }
func (s Success) Body() string { return s.Document }
func (Success) outcome() {}

type Fault struct {
	Code        uint32
	Description string
	Document    string
}

func newFault(code uint32, description string) Fault {
	return Fault{
		Code:        code,
		Description: description,
		Document:    CreateFaultDocument(code, description),
	}
}

func (Fault) Status() int { return http.StatusInternalServerError }
func (f Fault) Body() string { return f.Document }
func (Fault) outcome() {}

type MalformedRequest struct {
	Err error
}

func (MalformedRequest) Status() int { return http.StatusBadRequest }
func (MalformedRequest) Body() string { return "" }
func (MalformedRequest) outcome() {}

var errNoInvoker = errors.New("action has no implementation")

// HandleRequest parses an action request for service, invokes the action
// and returns the response to send. It never panics.
func HandleRequest(ctx context.Context, service *upnp.Service, body io.Reader, charsetLabel string, subscriberSupportsUPnP11 bool, call *upnp.CallContext) (outcome Outcome) {
	log := zerolog.Ctx(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Debug().
				Interface("panic", r).
				Msg("error handling action request")
			outcome = MalformedRequest{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	outcome, err := handleRequest(ctx, service, body, charsetLabel, subscriberSupportsUPnP11, call)
	if err != nil {
		log.Debug().Err(err).
			Str("service", service.TypeVersionURN()).
			Msg("malformed action request")
		return MalformedRequest{Err: err}
	}
	return outcome
}

func handleRequest(ctx context.Context, service *upnp.Service, body io.Reader, charsetLabel string, supportsUPnP11 bool, call *upnp.CallContext) (Outcome, error) {
	forceSimple := !supportsUPnP11

	dec, err := NewDecoder(body, charsetLabel)
	if err != nil {
		return nil, err
	}
	if err := readBody(dec, nil); err != nil {
		return nil, err
	}

	start, ok, err := nextChild(dec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedEnvelope)
	}

	action, ok := service.Action(start.Name.Local)
	if !ok {
		return newFault(upnp.ErrorCodeInvalidAction, upnp.DescriptionInvalidAction), nil
	}

	formal := action.InArguments()
	in := make([]any, 0, len(formal))
	for {
		child, ok, err := nextChild(dec)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if len(in) == len(formal) || child.Name.Local != formal[len(in)].Name {
			return newFault(upnp.ErrorCodeInvalidArgs, upnp.DescriptionInvalidArgs), nil
		}
		v, err := readArgument(dec, child, formal[len(in)], forceSimple)
		if err != nil {
			if isSyntaxError(err) {
				return nil, err
			}
			zerolog.Ctx(ctx).Debug().Err(err).
				Str("action", action.Name()).
				Msg("invalid argument value")
			return newFault(upnp.ErrorCodeInvalidArgs, upnp.DescriptionInvalidArgs), nil
		}
		in = append(in, v)
	}
	if len(in) != len(formal) {
		return newFault(upnp.ErrorCodeInvalidArgs, upnp.DescriptionInvalidArgs), nil
	}

	return invoke(ctx, action, in, call, forceSimple), nil
}

// invoke runs action and serializes its result. Any failure past argument
// parsing, panics included, is an Action Failed fault.
func invoke(ctx context.Context, action *upnp.Action, in []any, call *upnp.CallContext, forceSimple bool) (outcome Outcome) {
	log := zerolog.Ctx(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Interface("panic", r).
				Str("action", action.Name()).
				Msg("error invoking action")
			outcome = newFault(upnp.ErrorCodeActionFailed, upnp.DescriptionActionFailed)
		}
	}()

	out, err := safeInvoke(ctx, action, in, call)
	if err != nil {
		var upnpErr *upnp.Error
		if errors.As(err, &upnpErr) && upnpErr != nil {
			return newFault(upnpErr.Code, upnpErr.Description)
		}
		log.Warn().Err(err).
			Str("action", action.Name()).
			Msg("error invoking action")
		return newFault(upnp.ErrorCodeActionFailed, upnp.DescriptionActionFailed)
	}

	if len(out) != len(action.OutArguments()) {
		log.Warn().
			Str("action", action.Name()).
			Int("expected", len(action.OutArguments())).
			Int("got", len(out)).
			Msg("action returned wrong number of out parameters")
		return newFault(upnp.ErrorCodeActionFailed, upnp.DescriptionActionFailed)
	}

	doc, err := CreateResultDocument(action, out, forceSimple)
	if err != nil {
		log.Warn().Err(err).
			Str("action", action.Name()).
			Msg("error serializing action result")
		return newFault(upnp.ErrorCodeActionFailed, upnp.DescriptionActionFailed)
	}
	return Success{Document: doc}
}

func safeInvoke(ctx context.Context, action *upnp.Action, in []any, call *upnp.CallContext) (out []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in action %s: %v", action.Name(), r)
		}
	}()

	invoker := action.Invoker()
	if invoker == nil {
		return nil, errNoInvoker
	}
	return invoker(ctx, call, in)
}

// CreateResultDocument returns the response document for a successful
// invocation of action.
func CreateResultDocument(action *upnp.Action, outValues []any, forceSimple bool) (string, error) {
	out := action.OutArguments()
	if len(outValues) != len(out) {
		return "", fmt.Errorf("%w: %s returns %d, got %d", ErrArgumentCount, action.Name(), len(out), len(outValues))
	}

	var b strings.Builder
	b.WriteString(envelopeStart)
	if err := writeActionElement(&b, action.Name()+responseSuffix, action.Service().TypeVersionURN(), out, outValues, forceSimple); err != nil {
		return "", err
	}
	b.WriteString(envelopeEnd)
	return b.String(), nil
}

// CreateFaultDocument returns a UPnP fault document.
func CreateFaultDocument(code uint32, description string) string {
	return envelope(fmt.Sprintf(
		`<s:Fault>`+
			`<faultcode>s:%s</faultcode>`+
			`<faultstring>%s</faultstring>`+
			`<detail>`+
			`<UPnPError xmlns="%s">`+
			`<errorCode>%d</errorCode>`+
			`<errorDescription>%s</errorDescription>`+
			`</UPnPError>`+
			`</detail>`+
			`</s:Fault>`,
		FaultCodeClient, FaultStringUPnP, upnp.NamespaceControl, code, escapeXML(description)))
}
