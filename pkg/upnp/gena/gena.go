// Package gena implements UPnP eventing: subscriptions to the evented state
// variables of a service and the NOTIFY messages carrying their values.
package gena

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	NamespaceEvent = "urn:schemas-upnp-org:event-1-0"

	NT_Event       = "upnp:event"
	NTS_PropChange = "upnp:propchange"

	MethodSubscribe   = "SUBSCRIBE"
	MethodUnsubscribe = "UNSUBSCRIBE"
	MethodNotify      = "NOTIFY"

	ContentType = `text/xml; charset="utf-8"`

	// DefaultTimeout is the subscription duration when SUBSCRIBE has no
	// TIMEOUT header.
	DefaultTimeout = 1800 * time.Second

	timeoutPrefix = "Second-"
)

var ErrInvalidHeader = errors.New("invalid header")

// ParseTimeout parses a TIMEOUT header of the form Second-<seconds>.
func ParseTimeout(s string) (time.Duration, error) {
	if len(s) <= len(timeoutPrefix) || !strings.EqualFold(s[:len(timeoutPrefix)], timeoutPrefix) {
		return 0, fmt.Errorf("%w: TIMEOUT %q", ErrInvalidHeader, s)
	}
	n, err := strconv.ParseUint(s[len(timeoutPrefix):], 10, 31)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: TIMEOUT %q", ErrInvalidHeader, s)
	}
	return time.Duration(n) * time.Second, nil
}

// FormatTimeout formats d as a TIMEOUT header, rounded up to full seconds.
func FormatTimeout(d time.Duration) string {
	seconds := int64((d + time.Second - 1) / time.Second)
	return timeoutPrefix + strconv.FormatInt(seconds, 10)
}

// ParseCallbacks parses a CALLBACK header, one or more URLs each enclosed
// in angle brackets.
func ParseCallbacks(s string) ([]*url.URL, error) {
	var urls []*url.URL
	rest := strings.TrimSpace(s)
	for rest != "" {
		if rest[0] != '<' {
			return nil, fmt.Errorf("%w: CALLBACK %q", ErrInvalidHeader, s)
		}
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return nil, fmt.Errorf("%w: CALLBACK %q", ErrInvalidHeader, s)
		}
		u, err := url.Parse(rest[1:end])
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("%w: CALLBACK url %q", ErrInvalidHeader, rest[1:end])
		}
		urls = append(urls, u)
		rest = strings.TrimSpace(rest[end+1:])
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: empty CALLBACK", ErrInvalidHeader)
	}
	return urls, nil
}

// FormatCallbacks is the CALLBACK header for urls.
func FormatCallbacks(urls ...string) string {
	var b strings.Builder
	for _, u := range urls {
		b.WriteString("<" + u + ">")
	}
	return b.String()
}

func ParseSEQ(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: SEQ %q", ErrInvalidHeader, s)
	}
	return uint32(n), nil
}

// NextSEQ is the event key following seq. 0 is only used for the initial
// event, the key wraps to 1.
func NextSEQ(seq uint32) uint32 {
	if seq == math.MaxUint32 {
		return 1
	}
	return seq + 1
}

// IsNewerSEQ reports whether seq follows last, allowing for wrapping. Keys
// more than half the key space ahead are considered stale.
func IsNewerSEQ(seq, last uint32) bool {
	if seq == 0 {
		return false
	}
	diff := seq - last
	return diff != 0 && diff < 1<<31
}
