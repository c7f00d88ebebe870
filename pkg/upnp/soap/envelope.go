// Package soap encodes and decodes UPnP control messages: action calls,
// their results and UPnP faults, for both the control point and the device
// side.
package soap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"golang.org/x/net/html/charset"
)

const (
	xmlDeclaration = `<?xml version="1.0" encoding="utf-8"?>`

	envelopeStart = xmlDeclaration +
		`<s:Envelope xmlns:s="` + upnp.NamespaceSOAPEnvelope + `" s:encodingStyle="` + upnp.NamespaceSOAPEncoding + `">` +
		`<s:Body>`
	envelopeEnd = `</s:Body></s:Envelope>`

	FaultCodeClient  = "Client"
	FaultStringUPnP  = "UPnPError"
	ContentType      = `text/xml; charset="utf-8"`
	responseSuffix   = "Response"
	nullMarkerFormat = `<%s xmlns:xsi="` + upnp.NamespaceXSI + `" xsi:nil="true"/>`
)

var (
	ErrMalformedEnvelope = errors.New("malformed SOAP envelope")
	ErrUnexpectedElement = errors.New("unexpected element")
)

func envelope(body string) string {
	return envelopeStart + body + envelopeEnd
}

// writeArgument appends one argument element. A nil value is written as
// the SOAP null marker.
func writeArgument(b *strings.Builder, arg *upnp.Argument, value any, forceSimple bool) error {
	if value == nil {
		fmt.Fprintf(b, nullMarkerFormat, arg.Name)
		return nil
	}
	content, err := arg.SoapSerializeArgument(value, forceSimple)
	if err != nil {
		return err
	}
	b.WriteString("<" + arg.Name + ">")
	b.WriteString(content)
	b.WriteString("</" + arg.Name + ">")
	return nil
}

// writeActionElement writes <u:name xmlns:u="urn">args</u:name>, self
// closed when there are no arguments.
func writeActionElement(b *strings.Builder, name, urn string, args []*upnp.Argument, values []any, forceSimple bool) error {
	if len(args) == 0 {
		fmt.Fprintf(b, `<u:%s xmlns:u="%s"/>`, name, escapeXML(urn))
		return nil
	}
	fmt.Fprintf(b, `<u:%s xmlns:u="%s">`, name, escapeXML(urn))
	for i, arg := range args {
		if err := writeArgument(b, arg, values[i], forceSimple); err != nil {
			return err
		}
	}
	fmt.Fprintf(b, `</u:%s>`, name)
	return nil
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// NewDecoder returns a decoder for r. charsetLabel is the charset of the
// HTTP content type, if any. Without it the XML declaration decides.
func NewDecoder(r io.Reader, charsetLabel string) (*xml.Decoder, error) {
	if charsetLabel == "" {
		dec := xml.NewDecoder(r)
		dec.CharsetReader = charset.NewReaderLabel
		return dec, nil
	}
	if !strings.EqualFold(charsetLabel, "utf-8") {
		cr, err := charset.NewReaderLabel(charsetLabel, r)
		if err != nil {
			return nil, fmt.Errorf("unsupported charset %q: %w", charsetLabel, err)
		}
		r = cr
	}
	// the content is UTF-8 now, whatever the declaration says
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return dec, nil
}

// nextChild returns the next child element of the element being read. ok
// is false once the end of that element has been consumed.
func nextChild(dec *xml.Decoder) (start xml.StartElement, ok bool, err error) {
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

// readBody consumes the envelope start, an optional header and the body
// start element. bindings collects the namespace prefixes declared on the
// way.
func readBody(dec *xml.Decoder, bindings map[string]string) error {
	var root xml.StartElement
	for {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		if t, ok := tok.(xml.StartElement); ok {
			root = t
			break
		}
	}
	if !isSOAPElement(root, "Envelope") {
		return fmt.Errorf("%w: root element is %s", ErrMalformedEnvelope, root.Name.Local)
	}
	bindNamespaces(bindings, root)

	for {
		child, ok, err := nextChild(dec)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: missing body", ErrMalformedEnvelope)
		}
		switch {
		case isSOAPElement(child, "Header"):
			if err := dec.Skip(); err != nil {
				return err
			}
		case isSOAPElement(child, "Body"):
			bindNamespaces(bindings, child)
			return nil
		default:
			return fmt.Errorf("%w: %s in envelope", ErrUnexpectedElement, child.Name.Local)
		}
	}
}

func isSOAPElement(start xml.StartElement, local string) bool {
	return start.Name.Space == upnp.NamespaceSOAPEnvelope && start.Name.Local == local
}

func bindNamespaces(bindings map[string]string, start xml.StartElement) {
	if bindings == nil {
		return
	}
	for _, attr := range start.Attr {
		switch {
		case attr.Name.Space == "xmlns":
			bindings[attr.Name.Local] = attr.Value
		case attr.Name.Space == "" && attr.Name.Local == "xmlns":
			bindings[""] = attr.Value
		}
	}
}

// withNamespaces returns a copy of bindings extended by the declarations
// on start.
func withNamespaces(bindings map[string]string, start xml.StartElement) map[string]string {
	scope := make(map[string]string, len(bindings)+len(start.Attr))
	for k, v := range bindings {
		scope[k] = v
	}
	bindNamespaces(scope, start)
	return scope
}

// isNull reports whether start carries the SOAP null marker.
func isNull(start xml.StartElement) bool {
	for _, attr := range start.Attr {
		if attr.Name.Local != "nil" && attr.Name.Local != "null" {
			continue
		}
		if attr.Name.Space != upnp.NamespaceXSI && attr.Name.Space != "xsi" && attr.Name.Space != "" {
			continue
		}
		v := strings.TrimSpace(attr.Value)
		return v == "true" || v == "1"
	}
	return false
}

// readArgument parses the value of an argument element, mapping the null
// marker to nil.
func readArgument(dec *xml.Decoder, start xml.StartElement, arg *upnp.Argument, forceSimple bool) (any, error) {
	if isNull(start) {
		if err := dec.Skip(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return arg.SoapParseArgument(dec, start, forceSimple)
}

func isSyntaxError(err error) bool {
	var syntaxErr *xml.SyntaxError
	return errors.As(err, &syntaxErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, ErrMalformedEnvelope)
}
