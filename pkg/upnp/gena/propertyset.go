package gena

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/soap"
)

var ErrInvalidPropertySet = errors.New("invalid property set")

// Property is the value of one evented state variable.
type Property struct {
	Variable *upnp.StateVariable
	Value    any
}

// EncodePropertySet writes the body of a NOTIFY message.
func EncodePropertySet(props []Property, forceSimple bool) (string, error) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<e:propertyset xmlns:e="` + NamespaceEvent + `">`)
	for _, p := range props {
		content, err := p.Variable.Type.SoapSerialize(p.Value, forceSimple)
		if err != nil {
			return "", fmt.Errorf("state variable %q: %w", p.Variable.Name, err)
		}
		b.WriteString("<e:property><" + p.Variable.Name + ">")
		b.WriteString(content)
		b.WriteString("</" + p.Variable.Name + "></e:property>")
	}
	b.WriteString(`</e:propertyset>`)
	return b.String(), nil
}

// ParsePropertySet reads the body of a NOTIFY message. Values are decoded
// with the types of the evented variables of svc, variables svc does not
// declare are skipped.
func ParsePropertySet(body io.Reader, charsetLabel string, svc *upnp.Service, forceSimple bool) (map[string]any, error) {
	dec, err := soap.NewDecoder(body, charsetLabel)
	if err != nil {
		return nil, err
	}

	root, err := firstElement(dec)
	if err != nil {
		return nil, err
	}
	if root.Name.Space != NamespaceEvent || root.Name.Local != "propertyset" {
		return nil, fmt.Errorf("%w: root element %s", ErrInvalidPropertySet, root.Name.Local)
	}

	values := make(map[string]any)
	for {
		prop, ok, err := nextChild(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPropertySet, err)
		}
		if !ok {
			return values, nil
		}
		if prop.Name.Space != NamespaceEvent || prop.Name.Local != "property" {
			if err := dec.Skip(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidPropertySet, err)
			}
			continue
		}

		for {
			v, ok, err := nextChild(dec)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidPropertySet, err)
			}
			if !ok {
				break
			}
			sv, known := svc.StateVariable(v.Name.Local)
			if !known || !sv.Evented {
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("%w: %w", ErrInvalidPropertySet, err)
				}
				continue
			}
			value, err := sv.Type.SoapParse(dec, v, forceSimple)
			if err != nil {
				return nil, fmt.Errorf("%w: state variable %q: %w", ErrInvalidPropertySet, sv.Name, err)
			}
			values[sv.Name] = value
		}
	}
}

func firstElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, fmt.Errorf("%w: %w", ErrInvalidPropertySet, err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, nil
		}
	}
}

// nextChild returns the next child element of the element being read. ok
// is false once the end of that element has been consumed.
func nextChild(dec *xml.Decoder) (xml.StartElement, bool, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return xml.StartElement{}, false, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t, true, nil
		case xml.EndElement:
			return xml.StartElement{}, false, nil
		}
	}
}
