package api_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/psuctl/internal/api"
	"codeberg.org/mutker/psuctl/internal/errors"
	"codeberg.org/mutker/psuctl/internal/psu"
	"codeberg.org/mutker/psuctl/internal/scpi"
	"codeberg.org/mutker/psuctl/internal/scpi/scpitest"
	"codeberg.org/mutker/psuctl/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ep = scpi.Endpoint{Host: "192.0.2.30", Port: scpi.DefaultPort}

type call struct {
	op      string
	ch      psu.Channel
	voltage string
	current string
}

// fakeController records calls and returns err from every operation.
type fakeController struct {
	psu.Controller

	mu     sync.Mutex
	calls  []call
	err    error
	status psu.Status
}

func (f *fakeController) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeController) EnableChannel(_ context.Context, _ scpi.Endpoint, ch psu.Channel, v, i string) error {
	return f.record(call{op: "enable", ch: ch, voltage: v, current: i})
}

func (f *fakeController) DisableChannel(_ context.Context, _ scpi.Endpoint, ch psu.Channel) error {
	return f.record(call{op: "disable", ch: ch})
}

func (f *fakeController) GetAllStatus(context.Context, scpi.Endpoint) (psu.Status, error) {
	return f.status, f.record(call{op: "status"})
}

type fakeReader struct {
	limit   int
	records []telemetry.Record
}

func (f *fakeReader) Recent(_ context.Context, limit int) ([]telemetry.Record, error) {
	f.limit = limit
	return f.records, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorDetail {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestEnable(t *testing.T) {
	ctrl := &fakeController{}
	h := api.NewServer(ctrl, ep).Handler()

	w := do(t, h, http.MethodPost, "/enable", `{"channel": 1, "voltage": 12.0, "current": 2.5}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Channel 1 enabled", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(api.RequestIDHeader))
	assert.Equal(t, []call{{op: "enable", ch: 1, voltage: "12.0", current: "2.5"}}, ctrl.calls)
}

func TestDisable(t *testing.T) {
	ctrl := &fakeController{}
	h := api.NewServer(ctrl, ep).Handler()

	w := do(t, h, http.MethodPost, "/disable", `{"channel": 3}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Channel 3 disabled", w.Body.String())
	assert.Equal(t, []call{{op: "disable", ch: 3}}, ctrl.calls)
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		body  string
		field string
	}{
		{name: "malformed json", path: "/enable", body: `{"channel":`},
		{name: "missing channel", path: "/disable", body: `{}`, field: "channel"},
		{name: "channel zero", path: "/disable", body: `{"channel": 0}`, field: "channel"},
		{name: "channel five", path: "/enable", body: `{"channel": 5, "voltage": 1, "current": 1}`, field: "channel"},
		{name: "missing voltage", path: "/enable", body: `{"channel": 1, "current": 1}`, field: "voltage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{}
			h := api.NewServer(ctrl, ep).Handler()

			w := do(t, h, http.MethodPost, tt.path, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, ctrl.calls)

			detail := decodeError(t, w)
			if tt.field == "" {
				assert.Equal(t, string(api.ErrInvalidBody), detail.Code)
				return
			}
			assert.Equal(t, string(api.ErrInvalidRequest), detail.Code)
			assert.Contains(t, detail.Details, tt.field)
		})
	}
}

func TestTransportErrorsMapToGatewayStatus(t *testing.T) {
	errFactory := errors.New()
	cause := stderrors.New("boom")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "connection", err: errFactory.Wrap(psu.ErrCommandFailed, errFactory.Wrap(scpi.ErrConnection, cause)), want: http.StatusBadGateway},
		{name: "timeout", err: errFactory.Wrap(psu.ErrCommandFailed, errFactory.Wrap(scpi.ErrTimeout, cause)), want: http.StatusGatewayTimeout},
		{name: "protocol", err: errFactory.Wrap(scpi.ErrProtocol, cause), want: http.StatusBadGateway},
		{name: "unknown", err: cause, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := api.NewServer(&fakeController{err: tt.err}, ep).Handler()

			w := do(t, h, http.MethodPost, "/disable", `{"channel": 2}`)
			assert.Equal(t, tt.want, w.Code)

			detail := decodeError(t, w)
			assert.Equal(t, w.Header().Get(api.RequestIDHeader), detail.RequestID)
		})
	}
}

func TestStatus(t *testing.T) {
	ctrl := &fakeController{status: psu.Status{
		{Channel: 1, ChannelStatus: psu.ChannelStatus{Voltage: "12.0", Current: "1.0"}},
		{Channel: 2, ChannelStatus: psu.ChannelStatus{Voltage: "0.0", Current: "0.0"}},
		{Channel: 3, ChannelStatus: psu.ChannelStatus{Voltage: "5.0", Current: "0.2"}},
		{Channel: 4, ChannelStatus: psu.ChannelStatus{Voltage: "3.3", Current: "0.1"}},
	}}
	h := api.NewServer(ctrl, ep).Handler()

	w := do(t, h, http.MethodGet, "/status", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{
		"Channel1":{"voltage":"12.0","current":"1.0"},
		"Channel2":{"voltage":"0.0","current":"0.0"},
		"Channel3":{"voltage":"5.0","current":"0.2"},
		"Channel4":{"voltage":"3.3","current":"0.1"}}`, w.Body.String())
}

func TestStatusPartialFailureAgainstInstrument(t *testing.T) {
	srv := scpitest.NewServer(t, func(cmd string) (string, bool) {
		if strings.HasPrefix(cmd, "MEASURE:CHANNEL2") {
			return "no newline", false
		}
		return "1.0\n", false
	})
	h := api.NewServer(psu.NewSupply(scpi.NewClient(scpi.WithTimeout(time.Second))), srv.Endpoint()).Handler()

	w := do(t, h, http.MethodGet, "/status", "")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	detail := decodeError(t, w)
	assert.Contains(t, detail.Message, "Channel2")

	doc, err := json.Marshal(detail.Details)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"Channel1":{"voltage":"1.0","current":"1.0"},
		"Channel2":{"voltage":"N/A","current":"N/A"},
		"Channel3":{"voltage":"1.0","current":"1.0"},
		"Channel4":{"voltage":"1.0","current":"1.0"}}`, string(doc))
}

func TestEnableAgainstInstrument(t *testing.T) {
	srv := scpitest.NewServer(t, scpitest.Fixed(""))
	h := api.NewServer(psu.NewSupply(scpi.NewClient()), srv.Endpoint()).Handler()

	w := do(t, h, http.MethodPost, "/enable", `{"channel": 4, "voltage": 3.30, "current": 1e-1}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Channel 4 enabled", w.Body.String())
	assert.Equal(t, []string{
		"SOURCE:CHANNEL4:VOLTAGE 3.30",
		"SOURCE:CHANNEL4:CURRENT 1e-1",
		"OUTPUT:CHANNEL4:STATE ON",
	}, srv.Commands())
}

func TestHealthAndRequestID(t *testing.T) {
	h := api.NewServer(&fakeController{}, ep).Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(api.RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(api.RequestIDHeader))
}

func TestTelemetry(t *testing.T) {
	reader := &fakeReader{records: []telemetry.Record{{Timestamp: 2, Voltage: "1", Current: "2", Power: "2"}}}
	h := api.NewServer(&fakeController{}, ep, api.WithTelemetry(reader)).Handler()

	w := do(t, h, http.MethodGet, "/telemetry?limit=5000", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1000, reader.limit)
	assert.JSONEq(t, `[{"timestamp":2,"voltage":"1","current":"2","power":"2"}]`, w.Body.String())

	w = do(t, h, http.MethodGet, "/telemetry?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTelemetryDisabled(t *testing.T) {
	h := api.NewServer(&fakeController{}, ep).Handler()

	w := do(t, h, http.MethodGet, "/telemetry", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(api.ErrNoTelemetry), decodeError(t, w).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "psuctl_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := api.NewServer(&fakeController{}, ep, api.WithGatherer(reg)).Handler()

	w := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "psuctl_test_total 1")
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- api.NewServer(&fakeController{}, ep).Serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeDrainsInFlightEnable(t *testing.T) {
	srv := scpitest.NewServer(t, func(cmd string) (string, bool) {
		if strings.Contains(cmd, "CURRENT") {
			time.Sleep(300 * time.Millisecond)
		}
		return "\n", false
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- api.NewServer(psu.NewSupply(scpi.NewClient()), srv.Endpoint()).Serve(ctx, ln)
	}()

	type result struct {
		status int
		body   string
		err    error
	}
	respCh := make(chan result, 1)
	go func() {
		resp, err := http.Post("http://"+ln.Addr().String()+"/enable", "application/json",
			strings.NewReader(`{"channel": 1, "voltage": 5, "current": 1}`))
		if err != nil {
			respCh <- result{err: err}
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		respCh <- result{status: resp.StatusCode, body: string(body)}
	}()

	require.Eventually(t, func() bool { return len(srv.Commands()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case res := <-respCh:
		require.NoError(t, res.err)
		assert.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, "Channel 1 enabled", res.body)
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight request did not complete")
	}

	assert.Equal(t, []string{
		"SOURCE:CHANNEL1:VOLTAGE 5",
		"SOURCE:CHANNEL1:CURRENT 1",
		"OUTPUT:CHANNEL1:STATE ON",
	}, srv.Commands())
	assert.NoError(t, <-done)
}
