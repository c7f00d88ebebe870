package network

import (
	"errors"
	"net"
	"testing"

	"github.com/matryer/is"
)

func TestHostAddressesLoopbackLast(t *testing.T) {
	is := is.New(t)

	addrs, err := HostAddresses()
	is.NoErr(err)

	seenLoopback := false
	for _, a := range addrs {
		is.True(a.Is4())
		if a.IsLoopback() {
			seenLoopback = true
			continue
		}
		is.True(!seenLoopback) // non loopback address after a loopback one
	}
}

func TestSourceIPLoopback(t *testing.T) {
	is := is.New(t)

	a, err := SourceIP(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000})
	is.NoErr(err)
	is.True(a.IsLoopback())
}

func TestPreferredAddress(t *testing.T) {
	is := is.New(t)

	a, err := PreferredAddress()
	if errors.Is(err, ErrNoAddress) {
		t.Skip("host has no IPv4 address")
	}
	is.NoErr(err)
	is.True(a.IsValid())
}
