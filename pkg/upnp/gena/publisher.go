package gena

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forestnode-io/upnpstack/pkg/metrics"
	"github.com/forestnode-io/upnpstack/pkg/upnp"
)

const (
	// NotifyTimeout bounds the delivery of one NOTIFY message.
	NotifyTimeout = 30 * time.Second

	// DefaultExpirationInterval is how often Run removes expired
	// subscriptions.
	DefaultExpirationInterval = 10 * time.Second

	queueSize = 16
)

// Subscription is the subscription of a control point to the events of a
// service.
type Subscription struct {
	SID       string
	Service   *upnp.Service
	Callbacks []*url.URL

	expires     time.Time
	forceSimple bool
	queue       chan []Property
	started     chan struct{}
	startOnce   sync.Once
}

func (sub *Subscription) start() {
	sub.startOnce.Do(func() {
		close(sub.started)
	})
}

// Publisher keeps the event subscriptions of the services of a device and
// sends them NOTIFY messages. Each subscription has its own sender, so a
// slow subscriber only delays its own events.
type Publisher struct {
	ctx     context.Context
	http    *http.Client
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.Mutex
	subs   map[string]*Subscription
	values map[*upnp.Service]map[string]any

	wg sync.WaitGroup
}

type PublisherOption func(*Publisher)

func WithHTTPClient(c *http.Client) PublisherOption {
	return func(p *Publisher) {
		p.http = c
	}
}

func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher creates a publisher whose senders log to and stop with ctx.
func NewPublisher(ctx context.Context, opts ...PublisherOption) *Publisher {
	p := Publisher{
		ctx:    ctx,
		http:   &http.Client{Timeout: NotifyTimeout},
		now:    time.Now,
		subs:   make(map[string]*Subscription),
		values: make(map[*upnp.Service]map[string]any),
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &p
}

// Subscribe adds a subscription to svc and queues the initial event with
// the current values of all evented variables. Nothing is sent before
// Start is called for the subscription.
func (p *Publisher) Subscribe(svc *upnp.Service, callbacks []*url.URL, timeout time.Duration, forceSimple bool) *Subscription {
	sub := &Subscription{
		SID:         "uuid:" + uuid.NewString(),
		Service:     svc,
		Callbacks:   callbacks,
		expires:     p.now().Add(timeout),
		forceSimple: forceSimple,
		queue:       make(chan []Property, queueSize),
		started:     make(chan struct{}),
	}

	p.mu.Lock()
	p.subs[sub.SID] = sub
	p.metrics.SetSubscriptions(len(p.subs))
	values := p.values[svc]
	var initial []Property
	for _, sv := range svc.EventedStateVariables() {
		if v, ok := values[sv.Name]; ok {
			initial = append(initial, Property{Variable: sv, Value: v})
		}
	}
	if len(initial) > 0 {
		p.enqueue(sub, initial)
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go p.deliver(sub)

	zerolog.Ctx(p.ctx).Debug().
		Str("sid", sub.SID).
		Str("service", svc.ServiceID).
		Stringer("callback", callbacks[0]).
		Msg("new event subscription")
	return sub
}

// Start lets the sender of sid deliver its events, once the subscriber
// has been told its SID.
func (p *Publisher) Start(sid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.subs[sid]; ok {
		sub.start()
	}
}

// Renew extends the subscription sid. It reports false if there is no
// such subscription.
func (p *Publisher) Renew(sid string, timeout time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subs[sid]
	if !ok {
		return false
	}
	sub.expires = p.now().Add(timeout)
	return true
}

// Unsubscribe cancels the subscription sid. Queued events are still sent.
func (p *Publisher) Unsubscribe(sid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subs[sid]
	if ok {
		p.remove(sub)
	}
	return ok
}

// Publish records new values of state variables of svc and sends the
// evented ones to the subscribers of svc.
func (p *Publisher) Publish(svc *upnp.Service, values map[string]any) {
	var props []Property
	for _, sv := range svc.EventedStateVariables() {
		if v, ok := values[sv.Name]; ok {
			props = append(props, Property{Variable: sv, Value: v})
		}
	}
	if len(props) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	current, ok := p.values[svc]
	if !ok {
		current = make(map[string]any)
		p.values[svc] = current
	}
	for _, prop := range props {
		current[prop.Variable.Name] = prop.Value
	}
	for _, sub := range p.subs {
		if sub.Service == svc {
			p.enqueue(sub, props)
		}
	}
}

// Expire removes subscriptions that were not renewed in time and returns
// how many were removed.
func (p *Publisher) Expire() int {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, sub := range p.subs {
		if now.After(sub.expires) {
			zerolog.Ctx(p.ctx).Debug().
				Str("sid", sub.SID).
				Msg("event subscription expired")
			p.remove(sub)
			n++
		}
	}
	return n
}

// Len returns the number of subscriptions.
func (p *Publisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Run expires subscriptions every interval until ctx is done, then drops
// all subscriptions and waits for their senders.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Expire()
		case <-ctx.Done():
			p.Close()
			return
		}
	}
}

// Close drops all subscriptions and waits for their senders to finish.
func (p *Publisher) Close() {
	p.mu.Lock()
	for _, sub := range p.subs {
		p.remove(sub)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// remove must be called with p.mu held.
func (p *Publisher) remove(sub *Subscription) {
	delete(p.subs, sub.SID)
	close(sub.queue)
	sub.start()
	p.metrics.SetSubscriptions(len(p.subs))
}

// enqueue must be called with p.mu held. It never blocks, events for a
// subscriber that is too far behind are dropped.
func (p *Publisher) enqueue(sub *Subscription, props []Property) {
	select {
	case sub.queue <- props:
	default:
		p.metrics.RecordNotification("dropped")
		zerolog.Ctx(p.ctx).Warn().
			Str("sid", sub.SID).
			Msg("event queue full, dropping event")
	}
}

func (p *Publisher) deliver(sub *Subscription) {
	defer p.wg.Done()
	<-sub.started
	var seq uint32
	for props := range sub.queue {
		body, err := EncodePropertySet(props, sub.forceSimple)
		if err != nil {
			zerolog.Ctx(p.ctx).Error().Err(err).
				Str("sid", sub.SID).
				Msg("error encoding event")
			continue
		}
		if p.notify(sub, seq, body) {
			p.metrics.RecordNotification("delivered")
		} else {
			p.metrics.RecordNotification("failed")
		}
		seq = NextSEQ(seq)
	}
}

// notify sends one event to the first callback URL that accepts it.
func (p *Publisher) notify(sub *Subscription, seq uint32, body string) bool {
	log := zerolog.Ctx(p.ctx)
	for _, cb := range sub.Callbacks {
		ctx, cancel := context.WithTimeout(p.ctx, NotifyTimeout)
		req, err := http.NewRequestWithContext(ctx, MethodNotify, cb.String(), strings.NewReader(body))
		if err != nil {
			cancel()
			continue
		}
		req.Header.Set("Content-Type", ContentType)
		req.Header["NT"] = []string{NT_Event}
		req.Header["NTS"] = []string{NTS_PropChange}
		req.Header["SID"] = []string{sub.SID}
		req.Header["SEQ"] = []string{strconv.FormatUint(uint64(seq), 10)}

		resp, err := p.http.Do(req)
		if err != nil {
			cancel()
			log.Debug().Err(err).
				Str("sid", sub.SID).
				Stringer("callback", cb).
				Msg("error sending event")
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		cancel()
		if resp.StatusCode == http.StatusOK {
			return true
		}
		log.Debug().
			Str("sid", sub.SID).
			Stringer("callback", cb).
			Int("status", resp.StatusCode).
			Msg("event rejected by subscriber")
	}
	return false
}
