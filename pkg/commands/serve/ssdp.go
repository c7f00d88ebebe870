package serve

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	gossdp "github.com/koron/go-ssdp"
	"github.com/rs/zerolog"

	network "github.com/forestnode-io/upnpstack/pkg/net"
	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/dv"
	"github.com/forestnode-io/upnpstack/pkg/version"
)

// Advertisement is one notification type announced for the device.
type Advertisement struct {
	NT  string
	USN string
}

// Advertisements lists the notifications of a root device without
// embedded devices: the root device, its UUID, its type and one per
// service type.
func Advertisements(device dv.DeviceInfo, svcs []*upnp.Service) []Advertisement {
	udn := "uuid:" + device.UUID
	ads := []Advertisement{
		{NT: upnp.NT_RootDevice, USN: udn + "::" + upnp.NT_RootDevice},
		{NT: udn, USN: udn},
		{NT: device.DeviceType, USN: udn + "::" + device.DeviceType},
	}
	for _, svc := range svcs {
		urn := svc.TypeVersionURN()
		ads = append(ads, Advertisement{NT: urn, USN: udn + "::" + urn})
	}
	return ads
}

// LocationProvider builds the description URL for the address a peer can
// reach us on. With host set that is always host.
func LocationProvider(host string, port int, path string) gossdp.LocationProviderFunc {
	return func(from net.Addr, ifi *net.Interface) string {
		h := host
		if h == "" {
			h = localAddress(from, ifi).String()
		}
		return "http://" + net.JoinHostPort(h, strconv.Itoa(port)) + path
	}
}

func localAddress(from net.Addr, ifi *net.Interface) netip.Addr {
	if from != nil {
		if a, err := network.SourceIP(from); err == nil {
			return a
		}
	}
	if ifi != nil {
		if a, err := network.InterfaceAddr(ifi); err == nil {
			return a
		}
	}
	if a, err := network.PreferredAddress(); err == nil {
		return a
	}
	return netip.AddrFrom4([4]byte{127, 0, 0, 1})
}

// Advertisers announces a device until closed.
type Advertisers struct {
	advertisers []*gossdp.Advertiser
	cancel      func()
	wg          sync.WaitGroup
}

// Advertise sends alive notifications for ads right away and then every
// maxAge/2 seconds. Searches matching an advertisement are answered.
func Advertise(ctx context.Context, ads []Advertisement, location gossdp.LocationProvider, maxAge int) (*Advertisers, error) {
	var a Advertisers
	for _, ad := range ads {
		adv, err := gossdp.Advertise(ad.NT, ad.USN, location, version.SSDPServer(), maxAge)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("error advertising %s: %w", ad.NT, err)
		}
		a.advertisers = append(a.advertisers, adv)
	}

	ctx, a.cancel = context.WithCancel(ctx)
	a.alive(ctx)

	interval := time.Duration(maxAge) * time.Second / 2
	if interval <= 0 {
		interval = time.Second
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.alive(ctx)
			}
		}
	}()

	return &a, nil
}

func (a *Advertisers) alive(ctx context.Context) {
	for _, adv := range a.advertisers {
		if err := adv.Alive(); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Msg("error sending alive notification")
		}
	}
}

// Close sends byebye notifications and stops answering searches.
func (a *Advertisers) Close(ctx context.Context) {
	a.cancel()
	a.wg.Wait()
	for _, adv := range a.advertisers {
		if err := adv.Bye(); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).
				Msg("error sending byebye notification")
		}
	}
	a.closeAll()
}

func (a *Advertisers) closeAll() {
	for _, adv := range a.advertisers {
		adv.Close()
	}
	a.advertisers = nil
}
