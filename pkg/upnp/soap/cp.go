package soap

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/rs/zerolog"
)

var (
	ErrArgumentCount     = errors.New("wrong number of arguments")
	ErrDuplicateArgument = errors.New("duplicate argument")
	ErrUnknownArgument   = errors.New("unknown argument")
	ErrMissingArgument   = errors.New("missing argument")
	ErrInvalidFault      = errors.New("invalid fault document")
)

// EncodeCall returns the SOAP request document for calling action with
// inValues. The output only depends on its inputs.
func EncodeCall(action *upnp.Action, inValues []any, version upnp.Version) (string, error) {
	in := action.InArguments()
	if len(inValues) != len(in) {
		return "", fmt.Errorf("%w: %s expects %d, got %d", ErrArgumentCount, action.Name(), len(in), len(inValues))
	}

	var b strings.Builder
	b.WriteString(envelopeStart)
	if err := writeActionElement(&b, action.Name(), action.Service().TypeVersionURN(), in, inValues, version.ForceSimpleValues()); err != nil {
		return "", fmt.Errorf("error encoding call to %s: %w", action.Name(), err)
	}
	b.WriteString(envelopeEnd)
	return b.String(), nil
}

// ParseResult parses a result document into the positional out values of
// action. Out arguments may appear in any order.
func ParseResult(body io.Reader, charsetLabel string, action *upnp.Action, version upnp.Version) ([]any, error) {
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
	if want := action.Name() + responseSuffix; start.Name.Local != want {
		return nil, fmt.Errorf("%w: %s, expected %s", ErrUnexpectedElement, start.Name.Local, want)
	}
	if svc := action.Service(); svc != nil && start.Name.Space != svc.TypeVersionURN() {
		return nil, fmt.Errorf("%w: %s in namespace %q, expected %q", ErrUnexpectedElement, start.Name.Local, start.Name.Space, svc.TypeVersionURN())
	}

	var (
		formal      = action.OutArguments()
		indices     = make(map[string]int, len(formal))
		out         = make([]any, len(formal))
		filled      = make([]bool, len(formal))
		count       int
		forceSimple = version.ForceSimpleValues()
	)
	for i, arg := range formal {
		indices[arg.Name] = i
	}

	for {
		child, ok, err := nextChild(dec)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		i, known := indices[child.Name.Local]
		if !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownArgument, child.Name.Local)
		}
		if filled[i] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateArgument, child.Name.Local)
		}
		v, err := readArgument(dec, child, formal[i], forceSimple)
		if err != nil {
			return nil, err
		}
		out[i] = v
		filled[i] = true
		count++
	}

	if count != len(formal) {
		for i, f := range filled {
			if !f {
				return nil, fmt.Errorf("%w: %s", ErrMissingArgument, formal[i].Name)
			}
		}
	}
	return out, nil
}

// HandleResult parses a result document and delivers the outcome through
// action's result callbacks. Parse failures are logged and delivered as
// an invalid server result. It reports whether the document was valid.
func HandleResult(ctx context.Context, body io.Reader, charsetLabel string, action *upnp.Action, clientState any, version upnp.Version) bool {
	log := zerolog.Ctx(ctx)

	data, ok := readAll(body)
	if !ok {
		log.Debug().
			Str("action", action.Name()).
			Msg("empty or unreadable result body")
		invalidServerResult(action, clientState)
		return false
	}

	out, err := ParseResult(bytes.NewReader(data), charsetLabel, action, version)
	if err != nil {
		log.Error().Err(err).
			Str("action", action.Name()).
			Msg("error parsing action result")
		invalidServerResult(action, clientState)
		return false
	}

	action.ActionResultPresent(out, clientState)
	return true
}

// ParseFault strictly parses a UPnP fault document.
func ParseFault(body io.Reader, charsetLabel string) (*upnp.Error, error) {
	dec, err := NewDecoder(body, charsetLabel)
	if err != nil {
		return nil, err
	}
	bindings := make(map[string]string)
	if err := readBody(dec, bindings); err != nil {
		return nil, err
	}

	fault, ok, err := nextChild(dec)
	if err != nil {
		return nil, err
	}
	if !ok || !isSOAPElement(fault, "Fault") {
		return nil, fmt.Errorf("%w: missing Fault element", ErrInvalidFault)
	}
	bindNamespaces(bindings, fault)

	var (
		codeSeen, stringSeen bool
		upnpErr              *upnp.Error
	)
	for {
		child, ok, err := nextChild(dec)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		switch child.Name.Local {
		case "faultcode":
			text, err := readText(dec, child)
			if err != nil {
				return nil, err
			}
			prefix, local, found := strings.Cut(strings.TrimSpace(text), ":")
			if !found {
				prefix, local = "", prefix
			}
			// only ancestors and faultcode itself are in scope
			scope := withNamespaces(bindings, child)
			if scope[prefix] != upnp.NamespaceSOAPEnvelope || local != FaultCodeClient {
				return nil, fmt.Errorf("%w: faultcode %q", ErrInvalidFault, text)
			}
			codeSeen = true
		case "faultstring":
			text, err := readText(dec, child)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(text) != FaultStringUPnP {
				return nil, fmt.Errorf("%w: faultstring %q", ErrInvalidFault, text)
			}
			stringSeen = true
		case "detail":
			if !codeSeen || !stringSeen {
				return nil, fmt.Errorf("%w: detail before faultcode and faultstring", ErrInvalidFault)
			}
			upnpErr, err = readUPnPError(dec)
			if err != nil {
				return nil, err
			}
		case "faultactor":
			if err := dec.Skip(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: %s in Fault", ErrUnexpectedElement, child.Name.Local)
		}
	}

	if upnpErr == nil {
		return nil, fmt.Errorf("%w: missing detail", ErrInvalidFault)
	}
	return upnpErr, nil
}

func readUPnPError(dec *xml.Decoder) (*upnp.Error, error) {
	start, ok, err := nextChild(dec)
	if err != nil {
		return nil, err
	}
	if !ok || start.Name.Local != "UPnPError" || start.Name.Space != upnp.NamespaceControl {
		return nil, fmt.Errorf("%w: missing UPnPError detail", ErrInvalidFault)
	}

	var (
		upnpErr  upnp.Error
		haveCode bool
	)
	for {
		child, ok, err := nextChild(dec)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		text, err := readText(dec, child)
		if err != nil {
			return nil, err
		}
		switch child.Name.Local {
		case "errorCode":
			code, err := strconv.ParseUint(strings.TrimSpace(text), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: errorCode %q", ErrInvalidFault, text)
			}
			upnpErr.Code = uint32(code)
			haveCode = true
		case "errorDescription":
			upnpErr.Description = text
		default:
			return nil, fmt.Errorf("%w: %s in UPnPError", ErrUnexpectedElement, child.Name.Local)
		}
	}
	if !haveCode {
		return nil, fmt.Errorf("%w: missing errorCode", ErrInvalidFault)
	}

	// detail may carry nothing else
	if _, ok, err := nextChild(dec); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: trailing detail content", ErrInvalidFault)
	}
	return &upnpErr, nil
}

// HandleErrorResult parses a fault document and delivers it through
// action's error callback. Documents that are not a valid UPnP fault are
// delivered as an invalid server result, the parse error is only logged.
// It reports whether the document was a valid fault.
func HandleErrorResult(ctx context.Context, body io.Reader, charsetLabel string, action *upnp.Action, clientState any) bool {
	log := zerolog.Ctx(ctx)

	data, ok := readAll(body)
	if !ok {
		invalidServerResult(action, clientState)
		return false
	}

	upnpErr, err := ParseFault(bytes.NewReader(data), charsetLabel)
	if err != nil {
		log.Error().Err(err).
			Str("action", action.Name()).
			Msg("error parsing fault document")
		invalidServerResult(action, clientState)
		return false
	}

	action.ActionErrorResultPresent(upnpErr, clientState)
	return true
}

// ActionFailed delivers a generic action failure with the given
// description.
func ActionFailed(action *upnp.Action, clientState any, description string) {
	action.ActionErrorResultPresent(upnp.NewError(upnp.ErrorCodeActionFailed, description), clientState)
}

func invalidServerResult(action *upnp.Action, clientState any) {
	ActionFailed(action, clientState, upnp.DescriptionInvalidServerResult)
}

func readAll(body io.Reader) ([]byte, bool) {
	if body == nil {
		return nil, false
	}
	data, err := io.ReadAll(body)
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return nil, false
	}
	return data, true
}

func readText(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var s string
	if err := dec.DecodeElement(&s, &start); err != nil {
		return "", err
	}
	return s, nil
}
