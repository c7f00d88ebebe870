// Package cp calls actions of remote UPnP services over HTTP.
package cp

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forestnode-io/upnpstack/pkg/metrics"
	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/soap"
	"github.com/forestnode-io/upnpstack/pkg/version"
)

// DefaultTimeout bounds a single action call.
const DefaultTimeout = 30 * time.Second

// Endpoint is where the actions of a service are called and which UPnP
// version its device announced.
type Endpoint struct {
	ControlURL string
	Version    upnp.Version
}

type Client struct {
	http      *http.Client
	userAgent string
	timeout   time.Duration
	metrics   *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(opts ...Option) *Client {
	c := Client{
		http:      &http.Client{},
		userAgent: version.MachineInfo(),
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// InvokeAsync encodes the call and sends it in the background. The
// outcome is delivered through the action's result callbacks together
// with clientState. Only encoding errors are returned.
func (c *Client) InvokeAsync(ctx context.Context, ep Endpoint, action *upnp.Action, in []any, clientState any) error {
	message, err := soap.EncodeCall(action, in, ep.Version)
	if err != nil {
		return fmt.Errorf("error encoding call to %s: %w", action.Name(), err)
	}

	go c.call(ctx, ep, action, message, clientState)
	return nil
}

// Invoke calls action and waits for its outcome. UPnP errors reported by
// the device are returned as *upnp.Error.
func (c *Client) Invoke(ctx context.Context, ep Endpoint, action *upnp.Action, in ...any) ([]any, error) {
	pending := upnp.NewPendingCall(nil)
	if err := c.InvokeAsync(ctx, ep, action, in, pending); err != nil {
		return nil, err
	}
	return pending.Wait(ctx)
}

func (c *Client) call(ctx context.Context, ep Endpoint, action *upnp.Action, message string, clientState any) {
	var (
		log    = zerolog.Ctx(ctx)
		start  = time.Now()
		result = "failed"
	)
	defer func() {
		c.metrics.RecordCall(action.Name(), result, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.ControlURL, strings.NewReader(message))
	if err != nil {
		soap.ActionFailed(action, clientState, networkError(action, err))
		return
	}
	addSOAPRequestHeaders(req.Header, action, c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Err(err).
			Str("url", ep.ControlURL).
			Str("action", action.Name()).
			Msg("error making http call to service")
		soap.ActionFailed(action, clientState, networkError(action, err))
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusInternalServerError:
	default:
		soap.ActionFailed(action, clientState,
			fmt.Sprintf("Network error %d when invoking action '%s'", resp.StatusCode, action.Name()))
		return
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/xml" {
		soap.ActionFailed(action, clientState, "Invalid content type")
		return
	}

	body, err := decompress(resp)
	if err != nil {
		soap.ActionFailed(action, clientState, networkError(action, err))
		return
	}

	result = "invalid"
	if resp.StatusCode == http.StatusInternalServerError {
		if soap.HandleErrorResult(ctx, body, params["charset"], action, clientState) {
			result = "fault"
		}
		return
	}
	if soap.HandleResult(ctx, body, params["charset"], action, clientState, ep.Version) {
		result = "success"
	}
}

func addSOAPRequestHeaders(h http.Header, action *upnp.Action, userAgent string) {
	h.Set("Content-Type", soap.ContentType)
	h["SOAPACTION"] = []string{fmt.Sprintf(`"%s"`, action.URN())}
	h.Set("Accept-Encoding", "gzip")
	h.Set("User-Agent", userAgent)
}

// decompress returns the response body. Setting Accept-Encoding
// ourselves turns off the transparent decompression of net/http.
func decompress(resp *http.Response) (io.Reader, error) {
	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return resp.Body, nil
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading gzip body: %w", err)
	}
	return zr, nil
}

func networkError(action *upnp.Action, err error) string {
	return fmt.Sprintf("Network error when invoking action '%s': %v", action.Name(), err)
}
