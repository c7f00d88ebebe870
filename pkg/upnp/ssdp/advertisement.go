package ssdp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
)

var ErrInvalidAdvertisement = errors.New("invalid advertisement")

const (
	HeaderBootID     = "BOOTID.UPNP.ORG"
	HeaderConfigID   = "CONFIGID.UPNP.ORG"
	HeaderSearchPort = "SEARCHPORT.UPNP.ORG"
	HeaderNextBootID = "NEXTBOOTID.UPNP.ORG"
)

// Advertisement is one SSDP NOTIFY or UPDATE message, or a search
// response, which is handled like an alive notification.
type Advertisement struct {
	NTS         string
	USN         string
	Location    string
	Server      string
	HTTPVersion upnp.HTTPVersion
	Header      http.Header

	// Date is when the message was sent, zero if unknown.
	Date time.Time

	Local  Endpoint
	Remote netip.AddrPort
}

// ParseRequest parses a multicast NOTIFY or UPDATE message.
func ParseRequest(raw []byte, local Endpoint, remote netip.AddrPort) (*Advertisement, error) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(terminate(raw))))
	if err != nil {
		return nil, fmt.Errorf("error reading SSDP request: %w", err)
	}
	if req.RequestURI != "*" {
		return nil, fmt.Errorf("%w: request target %q", ErrInvalidAdvertisement, req.RequestURI)
	}

	adv := Advertisement{
		Local:       local,
		Remote:      remote,
		HTTPVersion: upnp.HTTPVersion{Major: req.ProtoMajor, Minor: req.ProtoMinor},
		Header:      req.Header,
	}
	switch req.Method {
	case "NOTIFY":
		adv.NTS = req.Header.Get("NTS")
	case "UPDATE":
		adv.NTS = upnp.NTS_Update
	default:
		return nil, fmt.Errorf("%w: method %s", ErrInvalidAdvertisement, req.Method)
	}
	adv.fill()
	return &adv, nil
}

// ParseResponse parses a unicast response to an M-SEARCH request.
func ParseResponse(raw []byte, local Endpoint, remote netip.AddrPort) (*Advertisement, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(terminate(raw))), nil)
	if err != nil {
		return nil, fmt.Errorf("error reading SSDP response: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrInvalidAdvertisement, resp.StatusCode)
	}

	adv := SearchResponse(resp.Header, local, remote)
	adv.HTTPVersion = upnp.HTTPVersion{Major: resp.ProtoMajor, Minor: resp.ProtoMinor}
	if d, err := http.ParseTime(resp.Header.Get("DATE")); err == nil {
		adv.Date = d
	}
	return adv, nil
}

// SearchResponse builds an alive advertisement from the headers of a
// search response.
func SearchResponse(h http.Header, local Endpoint, remote netip.AddrPort) *Advertisement {
	adv := Advertisement{
		NTS:         upnp.NTS_Alive,
		HTTPVersion: upnp.HTTP11,
		Header:      h,
		Local:       local,
		Remote:      remote,
	}
	adv.fill()
	return &adv
}

func (a *Advertisement) fill() {
	a.USN = a.Header.Get("USN")
	a.Location = a.Header.Get("LOCATION")
	a.Server = a.Header.Get("SERVER")
}

// header returns the value of key and whether it was present at all.
func (a *Advertisement) header(key string) (string, bool) {
	vs, ok := a.Header[http.CanonicalHeaderKey(key)]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return strings.TrimSpace(vs[0]), true
}

// uint32Header parses an optional numeric header.
func (a *Advertisement) uint32Header(key string) (uint32, bool, error) {
	s, ok := a.header(key)
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s %q", ErrInvalidAdvertisement, key, s)
	}
	return uint32(v), true, nil
}

// MaxAge extracts the max-age directive of the CACHE-CONTROL header.
func MaxAge(cacheControl string) (int, bool) {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(directive, "=")
		if !ok || strings.TrimSpace(name) != "max-age" {
			continue
		}
		if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return v, true
		}
	}
	return 0, false
}

// ParseUSN splits "uuid:<device-UUID>::<type>". Bare "uuid:<device-UUID>"
// names are rejected, they carry no message type.
func ParseUSN(usn string) (deviceUUID, messageType string, ok bool) {
	if !strings.HasPrefix(usn, "uuid:") {
		return "", "", false
	}
	i := strings.Index(usn, "::")
	if i < len("uuid:")+1 {
		return "", "", false
	}
	return usn[len("uuid:"):i], usn[i+2:], true
}

// ParseTypeVersionURN splits "urn:<domain>:device:<type>:<version>" into
// the type URN without version and the version.
func ParseTypeVersionURN(urn string) (string, int, bool) {
	i := strings.LastIndex(urn, ":")
	if i < 0 {
		return "", 0, false
	}
	v, err := strconv.Atoi(urn[i+1:])
	if err != nil {
		return "", 0, false
	}
	return urn[:i], v, true
}

var endOfHeader = []byte("\r\n\r\n")

// terminate appends a missing empty line, some devices omit it.
func terminate(raw []byte) []byte {
	if bytes.HasSuffix(raw, endOfHeader) {
		return raw
	}
	trimmed := bytes.TrimRight(raw, "\r\n")
	out := make([]byte, 0, len(trimmed)+len(endOfHeader))
	return append(append(out, trimmed...), endOfHeader...)
}
