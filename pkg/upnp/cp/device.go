package cp

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/huin/goupnp"
	"golang.org/x/net/html/charset"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/ssdp"
)

var (
	ErrNoLink          = errors.New("root entry has no link")
	ErrServiceNotFound = errors.New("service not found")
	ErrUnknownAction   = errors.New("unknown action")
)

// Device is the description document of a root device.
type Device struct {
	Root     *goupnp.RootDevice
	Location *url.URL
	Version  upnp.Version

	client *Client
}

// Connect fetches the description of root over its preferred link.
func (c *Client) Connect(ctx context.Context, root *ssdp.RootEntry) (*Device, error) {
	link := root.PreferredLink()
	if link == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoLink, root.RootDeviceUUID)
	}
	return c.FetchDevice(ctx, link.DescriptionLocation(), root.UPnPVersion)
}

// FetchDevice fetches and parses the device description at location.
// Relative URLs in it are resolved against URLBase or location.
func (c *Client) FetchDevice(ctx context.Context, location string, version upnp.Version) (*Device, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("error parsing location url: %w", err)
	}

	body, err := c.get(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("error getting description: %w", err)
	}
	defer body.Close()

	var root goupnp.RootDevice
	dec := xml.NewDecoder(body)
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("error decoding description: %w", err)
	}

	base := loc
	if root.URLBaseStr != "" {
		if b, err := url.Parse(root.URLBaseStr); err == nil {
			base = b
		}
	}
	root.SetURLBase(base)

	return &Device{
		Root:     &root,
		Location: loc,
		Version:  version,
		client:   c,
	}, nil
}

// Services lists the services of the device and all embedded devices.
func (d *Device) Services() []*goupnp.Service {
	var services []*goupnp.Service
	d.Root.Device.VisitServices(func(s *goupnp.Service) {
		services = append(services, s)
	})
	return services
}

// Service fetches the description of the first service of type
// serviceTypeVersionURN and builds a callable service from it. opts are
// applied to every action.
func (d *Device) Service(ctx context.Context, serviceTypeVersionURN string, opts ...upnp.ActionOption) (*Service, error) {
	var found *goupnp.Service
	for _, s := range d.Services() {
		if s.ServiceType == serviceTypeVersionURN {
			found = s
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceTypeVersionURN)
	}
	if !found.SCPDURL.Ok || !found.ControlURL.Ok {
		return nil, fmt.Errorf("%w: %s has no SCPD or control URL", ErrServiceNotFound, serviceTypeVersionURN)
	}

	domain, serviceType, version, err := parseServiceURN(found.ServiceType)
	if err != nil {
		return nil, err
	}

	body, err := d.client.get(ctx, found.SCPDURL.URL.String())
	if err != nil {
		return nil, fmt.Errorf("error getting service description: %w", err)
	}
	defer body.Close()

	doc, err := upnp.ReadSCPD(body)
	if err != nil {
		return nil, err
	}

	svc, err := upnp.ServiceFromSCPD(domain, serviceType, version, serviceIDSuffix(found.ServiceId), doc, opts...)
	if err != nil {
		return nil, err
	}

	rs := Service{
		Service: svc,
		Endpoint: Endpoint{
			ControlURL: found.ControlURL.URL.String(),
			Version:    d.Version,
		},
		client: d.client,
	}
	if found.EventSubURL.Ok && found.EventSubURL.Str != "" {
		rs.EventURL = found.EventSubURL.URL.String()
	}
	return &rs, nil
}

// Service is a remote service whose actions can be invoked. EventURL is
// empty if the service has no evented variables.
type Service struct {
	*upnp.Service
	Endpoint Endpoint
	EventURL string

	client *Client
}

func (s *Service) Invoke(ctx context.Context, actionName string, in ...any) ([]any, error) {
	action, ok := s.Action(actionName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, actionName)
	}
	return s.client.Invoke(ctx, s.Endpoint, action, in...)
}

// ResolveControlURL resolves a control URL relative to the description
// location of link.
func ResolveControlURL(link *ssdp.LinkData, controlURL string) (string, error) {
	base, err := url.Parse(link.DescriptionLocation())
	if err != nil {
		return "", fmt.Errorf("error parsing description location: %w", err)
	}
	ref, err := url.Parse(controlURL)
	if err != nil {
		return "", fmt.Errorf("error parsing control url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Client) get(ctx context.Context, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if 400 <= resp.StatusCode {
		resp.Body.Close()
		return nil, fmt.Errorf("got error status code: %s", resp.Status)
	}
	return resp.Body, nil
}

// parseServiceURN splits urn:<domain>:service:<type>:<version>.
func parseServiceURN(urn string) (string, string, int, error) {
	parts := strings.Split(urn, ":")
	if len(parts) != 5 || parts[0] != "urn" || parts[2] != "service" {
		return "", "", 0, fmt.Errorf("%w: service type %q", upnp.ErrInvalidSCPD, urn)
	}
	v, err := strconv.Atoi(parts[4])
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: service type %q", upnp.ErrInvalidSCPD, urn)
	}
	return parts[1], parts[3], v, nil
}

func serviceIDSuffix(serviceID string) string {
	if i := strings.LastIndex(serviceID, ":"); i >= 0 {
		return serviceID[i+1:]
	}
	return serviceID
}
