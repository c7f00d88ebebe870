package upnp

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateAction        = errors.New("duplicate action")
	ErrDuplicateStateVariable = errors.New("duplicate state variable")
)

// StateVariable is a variable of a service. Changes of evented variables
// are sent to subscribers.
type StateVariable struct {
	Name    string
	Type    DataType
	Evented bool
}

func NewEventedStateVariable(name string, dt DataType) *StateVariable {
	return &StateVariable{Name: name, Type: dt, Evented: true}
}

// Service groups the actions of one UPnP service type. Actions are looked
// up by name, declaration order is kept for description documents.
type Service struct {
	Domain    string
	Type      string
	Version   int
	ServiceID string

	actions map[string]*Action
	order   []string

	variables map[string]*StateVariable
	varOrder  []string
}

func NewService(domain, serviceType string, version int, serviceID string) *Service {
	return &Service{
		Domain:    domain,
		Type:      serviceType,
		Version:   version,
		ServiceID: serviceID,
		actions:   make(map[string]*Action),
		variables: make(map[string]*StateVariable),
	}
}

// TypeVersionURN is the XML namespace of the service's actions, e.g.
// urn:schemas-upnp-org:service:RenderingControl:1.
func (s *Service) TypeVersionURN() string {
	return fmt.Sprintf("urn:%s:service:%s:%d", strings.ReplaceAll(s.Domain, ".", "-"), s.Type, s.Version)
}

// ServiceIDURN is the serviceId as written in device descriptions. The
// "schemas-" prefix of the domain is dropped, so schemas-upnp-org services
// get urn:upnp-org:serviceId:<id>.
func (s *Service) ServiceIDURN() string {
	domain := strings.TrimPrefix(strings.ReplaceAll(s.Domain, ".", "-"), "schemas-")
	return fmt.Sprintf("urn:%s:serviceId:%s", domain, s.ServiceID)
}

// AddAction attaches a to the service. Actions must be added before the
// service is shared between goroutines.
func (s *Service) AddAction(a *Action) error {
	if _, ok := s.actions[a.name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, a.name)
	}
	a.service = s
	s.actions[a.name] = a
	s.order = append(s.order, a.name)
	return nil
}

func (s *Service) Action(name string) (*Action, bool) {
	a, ok := s.actions[name]
	return a, ok
}

// Actions returns the actions in the order they were added.
func (s *Service) Actions() []*Action {
	actions := make([]*Action, len(s.order))
	for i, name := range s.order {
		actions[i] = s.actions[name]
	}
	return actions
}

// AddStateVariable declares sv. Variables related to action arguments
// need not be declared unless they are evented.
func (s *Service) AddStateVariable(sv *StateVariable) error {
	if _, ok := s.variables[sv.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStateVariable, sv.Name)
	}
	s.variables[sv.Name] = sv
	s.varOrder = append(s.varOrder, sv.Name)
	return nil
}

func (s *Service) StateVariable(name string) (*StateVariable, bool) {
	sv, ok := s.variables[name]
	return sv, ok
}

// EventedStateVariables returns the evented variables in the order they
// were added.
func (s *Service) EventedStateVariables() []*StateVariable {
	var evented []*StateVariable
	for _, name := range s.varOrder {
		if sv := s.variables[name]; sv.Evented {
			evented = append(evented, sv)
		}
	}
	return evented
}

// NeedsUPnP11Eventing reports whether an evented variable has a type UPnP
// 1.0 subscribers cannot receive.
func (s *Service) NeedsUPnP11Eventing() bool {
	for _, sv := range s.EventedStateVariables() {
		if _, ok := sv.Type.(*ExtendedDataType); ok {
			return true
		}
	}
	return false
}
