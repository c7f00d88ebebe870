package upnp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	VersionPrefix     = "UPnP/"
	HTTPVersionPrefix = "HTTP/"
)

var ErrInvalidVersion = errors.New("invalid version")

// Version is a UPnP architecture version as carried in SERVER and
// USER-AGENT headers, e.g. "UPnP/1.1".
type Version struct {
	VerMax int
	VerMin int
}

var (
	UPnP10 = Version{VerMax: 1, VerMin: 0}
	UPnP11 = Version{VerMax: 1, VerMin: 1}
)

// SupportsExtendedTypes reports whether a peer of this version accepts
// UPnP 1.1 extended data types.
func (v Version) SupportsExtendedTypes() bool {
	return v.VerMin >= 1
}

// ForceSimpleValues is the serialization switch threaded through every
// argument (de)serialization. Peers that don't support extended types
// get all values as plain strings.
func (v Version) ForceSimpleValues() bool {
	return !v.SupportsExtendedTypes()
}

func (v Version) String() string {
	return fmt.Sprintf("%s%d.%d", VersionPrefix, v.VerMax, v.VerMin)
}

// ParseVersion parses a "UPnP/<max>.<min>" token.
func ParseVersion(s string) (Version, error) {
	maj, min, err := parseDotted(s, VersionPrefix)
	if err != nil {
		return Version{}, err
	}
	return Version{VerMax: maj, VerMin: min}, nil
}

// HTTPVersion is the protocol version of an HTTP or HTTPU message.
type HTTPVersion struct {
	Major int
	Minor int
}

var HTTP11 = HTTPVersion{Major: 1, Minor: 1}

func (v HTTPVersion) String() string {
	return fmt.Sprintf("%s%d.%d", HTTPVersionPrefix, v.Major, v.Minor)
}

// ParseHTTPVersion parses a "HTTP/<major>.<minor>" token.
func ParseHTTPVersion(s string) (HTTPVersion, error) {
	maj, min, err := parseDotted(s, HTTPVersionPrefix)
	if err != nil {
		return HTTPVersion{}, err
	}
	return HTTPVersion{Major: maj, Minor: min}, nil
}

func parseDotted(s, prefix string) (int, int, error) {
	if !strings.HasPrefix(s, prefix) {
		return 0, 0, fmt.Errorf("%w: %q has no %q prefix", ErrInvalidVersion, s, prefix)
	}
	maj, min, ok := strings.Cut(s[len(prefix):], ".")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	major, err := strconv.Atoi(maj)
	if err != nil || major < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	minor, err := strconv.Atoi(min)
	if err != nil || minor < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	return major, minor, nil
}

// ProductTokens splits a SERVER or USER-AGENT header into its product
// tokens. Both the UDA 1.0 comma separated form and the space separated
// form are accepted.
func ProductTokens(header string) []string {
	var parts []string
	if strings.Contains(header, ", ") {
		parts = strings.Split(header, ", ")
	} else {
		parts = strings.Fields(header)
	}
	tokens := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// FindVersion returns the UPnP version carried in a SERVER or USER-AGENT
// header.
func FindVersion(header string) (Version, error) {
	for _, token := range ProductTokens(header) {
		if !strings.HasPrefix(token, VersionPrefix) {
			continue
		}
		token, _, _ = strings.Cut(token, " ")
		return ParseVersion(token)
	}
	return Version{}, fmt.Errorf("%w: no %s token in %q", ErrInvalidVersion, VersionPrefix, header)
}

// ParseUserAgentMinorVersion extracts the UPnP 1.x minor version from a
// control request's USER-AGENT header.
func ParseUserAgentMinorVersion(userAgent string) (int, error) {
	v, err := FindVersion(userAgent)
	if err != nil {
		return 0, err
	}
	if v.VerMax != 1 {
		return 0, fmt.Errorf("%w: unsupported major version in %q", ErrInvalidVersion, userAgent)
	}
	return v.VerMin, nil
}
