package upnp

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
)

type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

func (d Direction) String() string {
	if d == DirectionOut {
		return "out"
	}
	return "in"
}

// Argument is a formal parameter of an action.
type Argument struct {
	Name                 string
	Direction            Direction
	Type                 DataType
	RelatedStateVariable string
}

func NewInArgument(name string, dt DataType) *Argument {
	return &Argument{Name: name, Direction: DirectionIn, Type: dt}
}

func NewOutArgument(name string, dt DataType) *Argument {
	return &Argument{Name: name, Direction: DirectionOut, Type: dt}
}

func (a *Argument) SoapSerializeArgument(value any, forceSimple bool) (string, error) {
	s, err := a.Type.SoapSerialize(value, forceSimple)
	if err != nil {
		return "", fmt.Errorf("argument %q: %w", a.Name, err)
	}
	return s, nil
}

func (a *Argument) SoapParseArgument(dec *xml.Decoder, start xml.StartElement, forceSimple bool) (any, error) {
	v, err := a.Type.SoapParse(dec, start, forceSimple)
	if err != nil {
		return nil, fmt.Errorf("argument %q: %w", a.Name, err)
	}
	return v, nil
}

// CallContext describes the HTTP request an action is invoked for on the
// device side.
type CallContext struct {
	RemoteAddr string
	LocalAddr  string
	UserAgent  string
	Header     http.Header
}

// Invoker implements an action on the device side. Returning an *Error
// relays it to the caller as a UPnP fault, any other error is reported as
// a generic action failure.
type Invoker func(ctx context.Context, call *CallContext, in []any) ([]any, error)

// ResultHandler receives the outcome of control point action calls. It
// may be called from any goroutine.
type ResultHandler interface {
	ActionResultPresent(action *Action, outParams []any, clientState any)
	ActionErrorResultPresent(action *Action, err *Error, clientState any)
}

// Action is an immutable descriptor of a remotely invocable operation.
type Action struct {
	name         string
	inArguments  []*Argument
	outArguments []*Argument
	service      *Service

	invoker Invoker
	results ResultHandler
}

type ActionOption func(*Action)

func WithInvoker(invoker Invoker) ActionOption {
	return func(a *Action) {
		a.invoker = invoker
	}
}

func WithResultHandler(h ResultHandler) ActionOption {
	return func(a *Action) {
		a.results = h
	}
}

func NewAction(name string, in, out []*Argument, opts ...ActionOption) *Action {
	a := Action{
		name:         name,
		inArguments:  in,
		outArguments: out,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return &a
}

func (a *Action) Name() string {
	return a.name
}

func (a *Action) InArguments() []*Argument {
	return a.inArguments
}

func (a *Action) OutArguments() []*Argument {
	return a.outArguments
}

// Service returns the service the action was added to.
func (a *Action) Service() *Service {
	return a.service
}

// URN is the SOAPACTION header value for the action.
func (a *Action) URN() string {
	return a.service.TypeVersionURN() + "#" + a.name
}

func (a *Action) Invoker() Invoker {
	return a.invoker
}

// ActionResultPresent delivers the out parameters of a call. A
// *PendingCall client state is completed before the action's result
// handler runs.
func (a *Action) ActionResultPresent(outParams []any, clientState any) {
	if pc, ok := clientState.(*PendingCall); ok {
		pc.complete(outParams, nil)
	}
	if a.results != nil {
		a.results.ActionResultPresent(a, outParams, clientState)
	}
}

// ActionErrorResultPresent delivers the error outcome of a call.
func (a *Action) ActionErrorResultPresent(err *Error, clientState any) {
	if pc, ok := clientState.(*PendingCall); ok {
		pc.complete(nil, err)
	}
	if a.results != nil {
		a.results.ActionErrorResultPresent(a, err, clientState)
	}
}

// ResultHandlerFuncs adapts a pair of functions to ResultHandler.
type ResultHandlerFuncs struct {
	OnResult func(action *Action, outParams []any, clientState any)
	OnError  func(action *Action, err *Error, clientState any)
}

func (h ResultHandlerFuncs) ActionResultPresent(action *Action, outParams []any, clientState any) {
	if h.OnResult != nil {
		h.OnResult(action, outParams, clientState)
	}
}

func (h ResultHandlerFuncs) ActionErrorResultPresent(action *Action, err *Error, clientState any) {
	if h.OnError != nil {
		h.OnError(action, err, clientState)
	}
}
