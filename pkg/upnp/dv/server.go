// Package dv hosts UPnP services: SOAP control endpoints, event
// subscriptions and the device and service description documents.
package dv

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/huin/goupnp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/forestnode-io/upnpstack/pkg/metrics"
	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/gena"
	"github.com/forestnode-io/upnpstack/pkg/upnp/soap"
	"github.com/forestnode-io/upnpstack/pkg/version"
)

const shutdownTimeout = 500 * time.Millisecond

const (
	DefaultControlPrefix     = "/upnp/control"
	DefaultDescriptionPrefix = "/upnp/description"
	DefaultEventPrefix       = "/upnp/event"
)

// DeviceInfo describes the root device in its description document.
type DeviceInfo struct {
	UUID         string
	DeviceType   string
	FriendlyName string
	Manufacturer string
	ModelName    string
}

type Server struct {
	server  http.Server
	router  *mux.Router
	handler http.Handler
	mw      Middleware

	device   DeviceInfo
	services []*upnp.Service

	controlPrefix     string
	descriptionPrefix string
	eventPrefix       string
	serverHeader      string
	maxRequestSize    int64
	metrics           *metrics.Metrics
	cors              *cors.Cors
	events            *gena.Publisher
}

type Option func(*Server)

func WithControlPrefix(p string) Option {
	return func(s *Server) {
		s.controlPrefix = strings.TrimSuffix(p, "/")
	}
}

func WithDescriptionPrefix(p string) Option {
	return func(s *Server) {
		s.descriptionPrefix = strings.TrimSuffix(p, "/")
	}
}

func WithEventPrefix(p string) Option {
	return func(s *Server) {
		s.eventPrefix = strings.TrimSuffix(p, "/")
	}
}

func WithServerHeader(h string) Option {
	return func(s *Server) {
		s.serverHeader = h
	}
}

func WithMaxRequestSize(n int64) Option {
	return func(s *Server) {
		s.maxRequestSize = n
	}
}

// WithMetrics records control requests and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithCORS answers cross origin requests, preflights included, for
// browser based control points.
func WithCORS(opts cors.Options) Option {
	return func(s *Server) {
		s.cors = cors.New(opts)
	}
}

func NewServer(ctx context.Context, device DeviceInfo, opts ...Option) *Server {
	s := Server{
		router:            mux.NewRouter(),
		device:            device,
		controlPrefix:     DefaultControlPrefix,
		descriptionPrefix: DefaultDescriptionPrefix,
		eventPrefix:       DefaultEventPrefix,
		serverHeader:      version.MachineInfo(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	s.events = gena.NewPublisher(ctx, gena.WithMetrics(s.metrics))

	s.mw = LogMiddleware().
		Chain(RecoverMiddleware()).
		Chain(LimitReaderMiddleware(s.maxRequestSize))

	s.server.BaseContext = func(net.Listener) context.Context {
		return ctx
	}
	s.handler = s.router
	if s.cors != nil {
		s.handler = s.cors.Handler(s.router)
	}
	s.server.Handler = s.handler

	s.router.Methods(http.MethodGet).Path(s.DescriptionPath()).HandlerFunc(s.mw(s.handleDescription))
	if s.metrics != nil {
		s.router.Methods(http.MethodGet).Path("/metrics").Handler(s.metrics.Handler())
	}

	return &s
}

// AddService exposes svc. Services must be added before serving.
func (s *Server) AddService(svc *upnp.Service) {
	s.services = append(s.services, svc)
	s.router.Methods(http.MethodPost).Path(s.ControlPath(svc)).HandlerFunc(s.mw(s.handleControl(svc)))
	s.router.Methods(http.MethodGet).Path(s.SCPDPath(svc)).HandlerFunc(s.mw(s.handleSCPD(svc)))
	if len(svc.EventedStateVariables()) > 0 {
		s.router.Methods(gena.MethodSubscribe).Path(s.EventPath(svc)).HandlerFunc(s.mw(s.handleSubscribe(svc)))
		s.router.Methods(gena.MethodUnsubscribe).Path(s.EventPath(svc)).HandlerFunc(s.mw(s.handleUnsubscribe))
	}
}

// Events is where services publish changes of their evented variables.
func (s *Server) Events() *gena.Publisher {
	return s.events
}

func (s *Server) DescriptionPath() string {
	return s.descriptionPrefix + "/description.xml"
}

func (s *Server) ControlPath(svc *upnp.Service) string {
	return s.controlPrefix + "/" + svc.ServiceID
}

func (s *Server) SCPDPath(svc *upnp.Service) string {
	return s.descriptionPrefix + "/" + svc.ServiceID + ".xml"
}

func (s *Server) EventPath(svc *upnp.Service) string {
	return s.eventPrefix + "/" + svc.ServiceID
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve serves on l until ctx is done. Event subscriptions end with it.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	go s.events.Run(ctx, gena.DefaultExpirationInterval)

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr <- s.server.Shutdown(ctx)
	}()

	if err := cleanServerShutdownErr(s.server.Serve(l)); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return cleanServerShutdownErr(<-shutdownErr)
}

func cleanServerShutdownErr(err error) error {
	if errors.Is(err, http.ErrServerClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Description builds the root device description.
func (s *Server) Description() *goupnp.RootDevice {
	root := goupnp.RootDevice{
		SpecVersion: goupnp.SpecVersion{Major: 1, Minor: 1},
		Device: goupnp.Device{
			DeviceType:   s.device.DeviceType,
			FriendlyName: s.device.FriendlyName,
			Manufacturer: s.device.Manufacturer,
			ModelName:    s.device.ModelName,
			UDN:          "uuid:" + s.device.UUID,
		},
	}
	for _, svc := range s.services {
		ds := goupnp.Service{
			ServiceType: svc.TypeVersionURN(),
			ServiceId:   svc.ServiceIDURN(),
			SCPDURL:     goupnp.URLField{Str: s.SCPDPath(svc)},
			ControlURL:  goupnp.URLField{Str: s.ControlPath(svc)},
		}
		if len(svc.EventedStateVariables()) > 0 {
			ds.EventSubURL = goupnp.URLField{Str: s.EventPath(svc)}
		}
		root.Device.Services = append(root.Device.Services, ds)
	}
	return &root
}

func (s *Server) handleDescription(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString(xml.Header)
	enc := xml.NewEncoder(&b)
	enc.Indent("", "  ")
	start := xml.StartElement{Name: xml.Name{Space: goupnp.DeviceXMLNamespace, Local: "root"}}
	if err := enc.EncodeElement(s.Description(), start); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).
			Msg("error encoding device description")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeXML(w, r, http.StatusOK, b.String())
}

func (s *Server) handleSCPD(svc *upnp.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder
		if err := svc.WriteSCPD(&b); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).
				Str("service", svc.ServiceID).
				Msg("error encoding service description")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeXML(w, r, http.StatusOK, b.String())
	}
}

func (s *Server) handleControl(svc *upnp.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := http.StatusBadRequest
		defer func() {
			s.metrics.RecordControlRequest(svc.ServiceID, soapActionName(svc, r.Header), status, time.Since(start))
		}()

		minorVersion := 0
		if ua := r.Header.Get("User-Agent"); ua != "" {
			v, err := upnp.ParseUserAgentMinorVersion(ua)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).
					Str("user-agent", ua).
					Msg("rejecting control request")
				w.WriteHeader(status)
				return
			}
			minorVersion = v
		}

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "text/xml" {
			status = http.StatusUnsupportedMediaType
			w.WriteHeader(status)
			return
		}

		w.Header().Set("Date", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("Server", s.serverHeader)

		call := upnp.CallContext{
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.Header.Get("User-Agent"),
			Header:     r.Header,
		}
		if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
			call.LocalAddr = addr.String()
		}

		outcome := soap.HandleRequest(r.Context(), svc, r.Body, params["charset"], minorVersion >= 1, &call)
		status = outcome.Status()
		if _, ok := outcome.(soap.MalformedRequest); ok {
			w.WriteHeader(status)
			return
		}
		writeXML(w, r, status, outcome.Body())
	}
}

// handleSubscribe answers new subscriptions and renewals. A renewal
// carries SID, a new subscription CALLBACK and NT.
func (s *Server) handleSubscribe(svc *upnp.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := zerolog.Ctx(r.Context())

		timeout := gena.DefaultTimeout
		if h := r.Header.Get("TIMEOUT"); h != "" {
			d, err := gena.ParseTimeout(h)
			if err != nil {
				log.Debug().Err(err).
					Msg("rejecting subscription")
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			timeout = d
		}
		var callbacks []*url.URL
		if h := r.Header.Get("CALLBACK"); h != "" {
			urls, err := gena.ParseCallbacks(h)
			if err != nil {
				log.Debug().Err(err).
					Msg("rejecting subscription")
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			callbacks = urls
		}
		sid, nt := r.Header.Get("SID"), r.Header.Get("NT")

		if sid != "" {
			if callbacks != nil || nt != "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if !s.events.Renew(sid, timeout) {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			s.writeSubscribeHeaders(w, sid, timeout)
			w.WriteHeader(http.StatusOK)
			return
		}

		if nt != gena.NT_Event || callbacks == nil {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		for _, cb := range callbacks {
			if cb.Scheme != "http" {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
		}

		minorVersion := 0
		if ua := r.Header.Get("User-Agent"); ua != "" {
			v, err := upnp.ParseUserAgentMinorVersion(ua)
			if err != nil {
				log.Debug().Err(err).
					Str("user-agent", ua).
					Msg("rejecting subscription")
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			minorVersion = v
		}
		forceSimple := minorVersion < 1
		if forceSimple && svc.NeedsUPnP11Eventing() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		sub := s.events.Subscribe(svc, callbacks, timeout, forceSimple)
		s.writeSubscribeHeaders(w, sub.SID, timeout)
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// the initial event must not overtake the response
		s.events.Start(sub.SID)
	}
}

func (s *Server) writeSubscribeHeaders(w http.ResponseWriter, sid string, timeout time.Duration) {
	h := w.Header()
	h.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	h.Set("Server", s.serverHeader)
	h.Set("Content-Length", "0")
	h["SID"] = []string{sid}
	h["TIMEOUT"] = []string{gena.FormatTimeout(timeout)}
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get("SID")
	if sid == "" || r.Header.Get("CALLBACK") != "" || r.Header.Get("NT") != "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !s.events.Unsubscribe(sid) {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// writeXML writes body, gzip compressed if the client accepts it.
func writeXML(w http.ResponseWriter, r *http.Request, status int, body string) {
	w.Header().Set("Content-Type", soap.ContentType)

	var out io.Writer = w
	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		zw := gzip.NewWriter(w)
		defer zw.Close()
		out = zw
	}
	w.WriteHeader(status)
	if _, err := io.WriteString(out, body); err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).
			Msg("error writing response")
	}
}

// soapActionName extracts the action name from "<urn>#<name>". Names
// svc does not declare are reported as "unknown".
func soapActionName(svc *upnp.Service, h http.Header) string {
	v := strings.Trim(h.Get("SOAPACTION"), `"`)
	i := strings.LastIndex(v, "#")
	if i < 0 {
		return "unknown"
	}
	if _, ok := svc.Action(v[i+1:]); !ok {
		return "unknown"
	}
	return v[i+1:]
}
