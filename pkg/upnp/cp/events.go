package cp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/forestnode-io/upnpstack/pkg/upnp/gena"
)

// RenewalGap is how long before it expires a subscription is renewed.
const RenewalGap = 30 * time.Second

var (
	ErrNotEvented           = errors.New("service has no event subscription URL")
	ErrSubscriptionRejected = errors.New("subscription rejected")
)

// EventHandler receives the values of the evented variables sent with one
// event. Handlers of different subscriptions may run concurrently.
type EventHandler func(sub *Subscription, seq uint32, values map[string]any)

// Subscription is an event subscription to a remote service.
type Subscription struct {
	SID     string
	Service *Service

	handler  EventHandler
	expires  time.Time
	lastSEQ  uint32
	received bool
}

// Subscriptions holds the event subscriptions of a control point and
// receives their events at a single callback URL.
type Subscriptions struct {
	client   *Client
	callback *url.URL
	router   *mux.Router

	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewSubscriptions creates a subscription table whose Handler must be
// reachable by devices at callbackURL.
func (c *Client) NewSubscriptions(callbackURL string) (*Subscriptions, error) {
	u, err := url.Parse(callbackURL)
	if err != nil || u.Scheme != "http" || u.Host == "" {
		return nil, fmt.Errorf("invalid callback url %q", callbackURL)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	s := Subscriptions{
		client:   c,
		callback: u,
		router:   mux.NewRouter(),
		subs:     make(map[string]*Subscription),
	}
	s.router.Methods(gena.MethodNotify).Path(u.Path).HandlerFunc(s.handleNotify)
	return &s, nil
}

// Handler receives NOTIFY messages.
func (s *Subscriptions) Handler() http.Handler {
	return s.router
}

// Subscribe subscribes to the events of svc for timeout. The device may
// grant a different duration.
func (s *Subscriptions) Subscribe(ctx context.Context, svc *Service, timeout time.Duration, handler EventHandler) (*Subscription, error) {
	if svc.EventURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotEvented, svc.TypeVersionURN())
	}

	header := http.Header{}
	header["CALLBACK"] = []string{gena.FormatCallbacks(s.callback.String())}
	header["NT"] = []string{gena.NT_Event}
	header["TIMEOUT"] = []string{gena.FormatTimeout(timeout)}

	// NOTIFY for the new SID waits until it is in the table
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.client.eventRequest(ctx, gena.MethodSubscribe, svc.EventURL, header)
	if err != nil {
		return nil, err
	}
	sid := resp.Header.Get("SID")
	if sid == "" {
		return nil, fmt.Errorf("%w: response without SID", ErrSubscriptionRejected)
	}

	sub := Subscription{
		SID:     sid,
		Service: svc,
		handler: handler,
		expires: time.Now().Add(grantedTimeout(resp, timeout)),
	}
	s.subs[sid] = &sub
	return &sub, nil
}

// Renew extends sub by timeout. A subscription the device does not know
// anymore is dropped.
func (s *Subscriptions) Renew(ctx context.Context, sub *Subscription, timeout time.Duration) error {
	header := http.Header{}
	header["SID"] = []string{sub.SID}
	header["TIMEOUT"] = []string{gena.FormatTimeout(timeout)}

	resp, err := s.client.eventRequest(ctx, gena.MethodSubscribe, sub.Service.EventURL, header)
	if errors.Is(err, ErrSubscriptionRejected) {
		s.mu.Lock()
		delete(s.subs, sub.SID)
		s.mu.Unlock()
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	sub.expires = time.Now().Add(grantedTimeout(resp, timeout))
	s.mu.Unlock()
	return nil
}

// Unsubscribe cancels sub. Events for it are rejected from now on.
func (s *Subscriptions) Unsubscribe(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	delete(s.subs, sub.SID)
	s.mu.Unlock()

	header := http.Header{}
	header["SID"] = []string{sub.SID}
	_, err := s.client.eventRequest(ctx, gena.MethodUnsubscribe, sub.Service.EventURL, header)
	return err
}

// RenewDue renews the subscriptions expiring within RenewalGap of now.
func (s *Subscriptions) RenewDue(ctx context.Context, now time.Time, timeout time.Duration) {
	s.mu.Lock()
	var due []*Subscription
	for _, sub := range s.subs {
		if sub.expires.Sub(now) < RenewalGap {
			due = append(due, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range due {
		if err := s.Renew(ctx, sub, timeout); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("sid", sub.SID).
				Msg("error renewing event subscription")
		}
	}
}

// Run renews subscriptions until ctx is done, then cancels all of them.
func (s *Subscriptions) Run(ctx context.Context, timeout time.Duration) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.RenewDue(ctx, now, timeout)
		case <-ctx.Done():
			s.unsubscribeAll(zerolog.Ctx(ctx).WithContext(context.Background()))
			return
		}
	}
}

func (s *Subscriptions) unsubscribeAll(ctx context.Context) {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.client.timeout)
	defer cancel()
	for _, sub := range subs {
		if err := s.Unsubscribe(ctx, sub); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).
				Str("sid", sub.SID).
				Msg("error cancelling event subscription")
		}
	}
}

// Len returns the number of active subscriptions.
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Subscriptions) handleNotify(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	if r.Header.Get("NT") != gena.NT_Event || r.Header.Get("NTS") != gena.NTS_PropChange {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}
	sid := r.Header.Get("SID")
	s.mu.Lock()
	sub, ok := s.subs[sid]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}

	seq, err := gena.ParseSEQ(r.Header.Get("SEQ"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/xml" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	values, err := gena.ParsePropertySet(r.Body, params["charset"], sub.Service.Service, sub.Service.Endpoint.Version.VerMin < 1)
	if err != nil {
		log.Debug().Err(err).
			Str("sid", sid).
			Msg("rejecting event")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	stale := sub.received && !gena.IsNewerSEQ(seq, sub.lastSEQ)
	if !stale {
		if sub.received && seq != gena.NextSEQ(sub.lastSEQ) {
			log.Debug().
				Str("sid", sid).
				Uint32("seq", seq).
				Uint32("last", sub.lastSEQ).
				Msg("missed events")
		}
		sub.received = true
		sub.lastSEQ = seq
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
	if stale {
		log.Debug().
			Str("sid", sid).
			Uint32("seq", seq).
			Msg("ignoring old event")
		return
	}
	if sub.handler != nil {
		sub.handler(sub, seq, values)
	}
}

// eventRequest sends a SUBSCRIBE or UNSUBSCRIBE request. Any status but
// 200 is reported as ErrSubscriptionRejected.
func (c *Client) eventRequest(ctx context.Context, method, eventURL string, header http.Header) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, eventURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making %s request: %w", method, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionRejected, resp.Status)
	}
	return resp, nil
}

// grantedTimeout is the duration in the TIMEOUT header of resp, or
// requested if the device sent none.
func grantedTimeout(resp *http.Response, requested time.Duration) time.Duration {
	if d, err := gena.ParseTimeout(resp.Header.Get("TIMEOUT")); err == nil {
		return d
	}
	return requested
}
