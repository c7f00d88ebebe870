package dv

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/huin/goupnp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/cors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestnode-io/upnpstack/pkg/metrics"
	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/services"
	"github.com/forestnode-io/upnpstack/pkg/upnp/soap"
)

const testUserAgent = "linux/1.0 UPnP/1.1 test/1.0"

var testDevice = DeviceInfo{
	UUID:         "2fac1234-31f8-11b4-a222-08002b34c003",
	DeviceType:   "urn:schemas-upnp-org:device:MediaRenderer:1",
	FriendlyName: "test renderer",
	Manufacturer: "forestnode",
	ModelName:    "upnpstack",
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *upnp.Service, *httptest.Server) {
	t.Helper()
	svc, err := services.NewRenderingControl().Service()
	require.NoError(t, err)

	s := NewServer(context.Background(), testDevice, opts...)
	s.AddService(svc)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, svc, ts
}

func control(t *testing.T, ts *httptest.Server, path, body string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", soap.ContentType)
	req.Header.Set("User-Agent", testUserAgent)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getVolumeCall(t *testing.T, svc *upnp.Service, in ...any) string {
	t.Helper()
	a, ok := svc.Action("GetVolume")
	require.True(t, ok)
	doc, err := soap.EncodeCall(a, in, upnp.UPnP11)
	require.NoError(t, err)
	return doc
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestServerDescription(t *testing.T) {
	s, svc, ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + s.DescriptionPath())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, soap.ContentType, resp.Header.Get("Content-Type"))

	var root goupnp.RootDevice
	require.NoError(t, xml.NewDecoder(resp.Body).Decode(&root))
	assert.Equal(t, testDevice.DeviceType, root.Device.DeviceType)
	assert.Equal(t, "uuid:"+testDevice.UUID, root.Device.UDN)
	require.Len(t, root.Device.Services, 1)
	assert.Equal(t, svc.TypeVersionURN(), root.Device.Services[0].ServiceType)
	assert.Equal(t, svc.ServiceIDURN(), root.Device.Services[0].ServiceId)
	assert.Equal(t, s.ControlPath(svc), root.Device.Services[0].ControlURL.Str)
	assert.Equal(t, s.SCPDPath(svc), root.Device.Services[0].SCPDURL.Str)
	assert.Equal(t, s.EventPath(svc), root.Device.Services[0].EventSubURL.Str)
}

func TestServerSCPD(t *testing.T) {
	s, svc, ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + s.SCPDPath(svc))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc, err := upnp.ReadSCPD(resp.Body)
	require.NoError(t, err)
	assert.Len(t, doc.Actions, 4)
	assert.NotNil(t, doc.GetAction("SetVolume"))
}

func TestServerControl(t *testing.T) {
	s, svc, ts := newTestServer(t, WithServerHeader("test/1.0 UPnP/1.1 upnpstack/dev"))

	resp := control(t, ts, s.ControlPath(svc), getVolumeCall(t, svc, uint32(0), services.ChannelMaster), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "test/1.0 UPnP/1.1 upnpstack/dev", resp.Header.Get("Server"))
	assert.NotEmpty(t, resp.Header.Get("Date"))

	a, _ := svc.Action("GetVolume")
	out, err := soap.ParseResult(resp.Body, "", a, upnp.UPnP11)
	require.NoError(t, err)
	assert.Equal(t, []any{uint16(50)}, out)
}

func TestServerControlFaults(t *testing.T) {
	s, svc, ts := newTestServer(t)

	tests := map[string]struct {
		body string
		code uint32
	}{
		"invalid action": {
			body: `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>` +
				`<u:Explode xmlns:u="urn:schemas-upnp-org:service:RenderingControl:1"/></s:Body></s:Envelope>`,
			code: upnp.ErrorCodeInvalidAction,
		},
		"invalid args": {
			body: `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>` +
				`<u:GetVolume xmlns:u="urn:schemas-upnp-org:service:RenderingControl:1"><Channel>Master</Channel></u:GetVolume></s:Body></s:Envelope>`,
			code: upnp.ErrorCodeInvalidArgs,
		},
		"domain error": {
			body: getVolumeCall(t, svc, uint32(7), services.ChannelMaster),
			code: services.ErrorCodeInvalidInstanceID,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			resp := control(t, ts, s.ControlPath(svc), tc.body, nil)
			require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

			fault, err := soap.ParseFault(resp.Body, "")
			require.NoError(t, err)
			assert.Equal(t, tc.code, fault.Code)
		})
	}
}

func TestServerControlRejects(t *testing.T) {
	s, svc, ts := newTestServer(t)
	call := getVolumeCall(t, svc, uint32(0), services.ChannelMaster)

	t.Run("content type", func(t *testing.T) {
		resp := control(t, ts, s.ControlPath(svc), call, map[string]string{"Content-Type": "application/json"})
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})

	t.Run("user agent without upnp token", func(t *testing.T) {
		resp := control(t, ts, s.ControlPath(svc), call, map[string]string{"User-Agent": "curl/8.0"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := control(t, ts, s.ControlPath(svc), "<s:Envelope", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, readBody(t, resp))
	})

	t.Run("unknown service", func(t *testing.T) {
		resp := control(t, ts, DefaultControlPrefix+"/AVTransport", call, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestServerControlGzip(t *testing.T) {
	s, svc, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+s.ControlPath(svc),
		strings.NewReader(getVolumeCall(t, svc, uint32(0), services.ChannelMaster)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", soap.ContentType)
	req.Header.Set("User-Agent", testUserAgent)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	a, _ := svc.Action("GetVolume")
	out, err := soap.ParseResult(zr, "", a, upnp.UPnP11)
	require.NoError(t, err)
	assert.Equal(t, []any{uint16(50)}, out)
}

func TestServerMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s, svc, ts := newTestServer(t, WithMetrics(m))

	resp := control(t, ts, s.ControlPath(svc), getVolumeCall(t, svc, uint32(0), services.ChannelMaster),
		map[string]string{"SOAPACTION": `"urn:schemas-upnp-org:service:RenderingControl:1#GetVolume"`})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mresp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	body := readBody(t, mresp)
	assert.Contains(t, body, "upnp_control_requests_total")
	assert.Contains(t, body, `action="GetVolume"`)
}

func TestServerMetricsUnknownActions(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s, svc, ts := newTestServer(t, WithMetrics(m))
	call := getVolumeCall(t, svc, uint32(0), services.ChannelMaster)

	for i := 0; i < 20; i++ {
		resp := control(t, ts, s.ControlPath(svc), call,
			map[string]string{"SOAPACTION": fmt.Sprintf(`"urn:schemas-upnp-org:service:RenderingControl:1#Junk%d"`, i)})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := control(t, ts, s.ControlPath(svc), call, map[string]string{"SOAPACTION": "no separator"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 21.0, testutil.ToFloat64(m.ControlRequestsTotal.WithLabelValues(svc.ServiceID, "unknown", "OK")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ControlRequestsTotal))
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware()(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	fault, err := soap.ParseFault(rec.Body, "")
	require.NoError(t, err)
	assert.Equal(t, upnp.ErrorCodeActionFailed, fault.Code)
}

func TestLimitReaderMiddleware(t *testing.T) {
	var readErr error
	h := LimitReaderMiddleware(4)(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	})

	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	assert.Error(t, readErr)
}

func TestServeShutdown(t *testing.T) {
	s := NewServer(context.Background(), testDevice)
	ctx, cancel := context.WithCancel(context.Background())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, l)
	}()
	cancel()
	assert.NoError(t, <-done)
}

func TestServerCORS(t *testing.T) {
	s, svc, ts := newTestServer(t, WithCORS(cors.Options{
		AllowedOrigins: []string{"http://ui.example"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "SOAPACTION"},
	}))

	req, err := http.NewRequest(http.MethodOptions, ts.URL+s.ControlPath(svc), nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://ui.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "SOAPACTION")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://ui.example", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = control(t, ts, s.ControlPath(svc), getVolumeCall(t, svc, uint32(0), services.ChannelMaster),
		map[string]string{"Origin": "http://other.example"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
