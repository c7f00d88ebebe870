package upnp

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/huin/goupnp/scpd"
	"golang.org/x/net/html/charset"
)

var ErrInvalidSCPD = errors.New("invalid service description")

// ServiceFromSCPD builds a control point side service from a parsed
// service description. Arguments get the data type of their related state
// variable, unknown data types are an error.
func ServiceFromSCPD(domain, serviceType string, version int, serviceID string, doc *scpd.SCPD, opts ...ActionOption) (*Service, error) {
	doc.Clean()

	s := NewService(domain, serviceType, version, serviceID)
	for i := range doc.Actions {
		sa := &doc.Actions[i]

		var in, out []*Argument
		for j := range sa.Arguments {
			sarg := &sa.Arguments[j]
			sv := doc.GetStateVariable(sarg.RelatedStateVariable)
			if sv == nil {
				return nil, fmt.Errorf("%w: action %s argument %s references unknown state variable %q",
					ErrInvalidSCPD, sa.Name, sarg.Name, sarg.RelatedStateVariable)
			}
			dt, ok := SimpleDataTypeByName(sv.DataType.Name)
			if !ok {
				return nil, fmt.Errorf("%w: state variable %s has unsupported data type %q",
					ErrInvalidSCPD, sv.Name, sv.DataType.Name)
			}

			arg := Argument{
				Name:                 sarg.Name,
				Type:                 dt,
				RelatedStateVariable: sv.Name,
			}
			switch {
			case sarg.IsInput():
				arg.Direction = DirectionIn
				in = append(in, &arg)
			case sarg.IsOutput():
				arg.Direction = DirectionOut
				out = append(out, &arg)
			default:
				return nil, fmt.Errorf("%w: argument %s has direction %q", ErrInvalidSCPD, sarg.Name, sarg.Direction)
			}
		}

		if err := s.AddAction(NewAction(sa.Name, in, out, opts...)); err != nil {
			return nil, err
		}
	}

	// evented variables of other types can't be decoded and are left out
	for i := range doc.StateVariables {
		sv := &doc.StateVariables[i]
		if sv.SendEvents != "yes" {
			continue
		}
		dt, ok := SimpleDataTypeByName(sv.DataType.Name)
		if !ok {
			continue
		}
		if err := s.AddStateVariable(NewEventedStateVariable(sv.Name, dt)); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// ReadSCPD decodes a service description document.
func ReadSCPD(r io.Reader) (*scpd.SCPD, error) {
	var doc scpd.SCPD
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("error decoding service description: %w", err)
	}
	return &doc, nil
}

// SCPD generates the service description of s. Declared state variables
// come first, arguments without a related state variable get an
// A_ARG_TYPE_<name> variable.
func (s *Service) SCPD() *scpd.SCPD {
	doc := scpd.SCPD{
		SpecVersion: scpd.SpecVersion{Major: 1, Minor: 1},
	}

	seen := make(map[string]bool)
	for _, name := range s.varOrder {
		sv := s.variables[name]
		sendEvents := "no"
		if sv.Evented {
			sendEvents = "yes"
		}
		seen[name] = true
		doc.StateVariables = append(doc.StateVariables, scpd.StateVariable{
			Name:       name,
			SendEvents: sendEvents,
			Multicast:  "no",
			DataType:   scpd.DataType{Name: sv.Type.Name()},
		})
	}
	addVar := func(a *Argument) string {
		name := a.RelatedStateVariable
		if name == "" {
			name = "A_ARG_TYPE_" + a.Name
		}
		if !seen[name] {
			seen[name] = true
			doc.StateVariables = append(doc.StateVariables, scpd.StateVariable{
				Name:       name,
				SendEvents: "no",
				Multicast:  "no",
				DataType:   scpd.DataType{Name: a.Type.Name()},
			})
		}
		return name
	}

	for _, a := range s.Actions() {
		sa := scpd.Action{Name: a.name}
		for _, arg := range a.inArguments {
			sa.Arguments = append(sa.Arguments, scpd.Argument{
				Name:                 arg.Name,
				Direction:            "in",
				RelatedStateVariable: addVar(arg),
			})
		}
		for _, arg := range a.outArguments {
			sa.Arguments = append(sa.Arguments, scpd.Argument{
				Name:                 arg.Name,
				Direction:            "out",
				RelatedStateVariable: addVar(arg),
			})
		}
		doc.Actions = append(doc.Actions, sa)
	}

	return &doc
}

// WriteSCPD writes the service description of s as an XML document.
func (s *Service) WriteSCPD(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	start := xml.StartElement{Name: xml.Name{Space: scpd.SCPDXMLNamespace, Local: "scpd"}}
	if err := enc.EncodeElement(s.SCPD(), start); err != nil {
		return fmt.Errorf("error encoding service description: %w", err)
	}
	return enc.Flush()
}
