package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joygram/flowOSD-sub000/internal/command"
	"github.com/joygram/flowOSD-sub000/internal/device"
	"github.com/joygram/flowOSD-sub000/internal/hotkey"
	"github.com/joygram/flowOSD-sub000/internal/hub"
	"github.com/joygram/flowOSD-sub000/internal/notify"
	"github.com/joygram/flowOSD-sub000/internal/stream"
)

type fixture struct {
	api     *Server
	srv     *httptest.Server
	boost   *stream.Subject[bool]
	invoked []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{boost: stream.NewBehavior(false)}

	loop := stream.NewLoop()
	reg := prometheus.NewRegistry()
	h := hub.New(loop, notify.SinkFunc(func(notify.Notification) {}), hub.NewJournal(), hub.NewMetrics(reg),
		zerolog.Nop(), hub.Options{Debounce: 10 * time.Millisecond})
	h.Start(hub.Sources{Boost: f.boost})

	dir := device.NewDirectory()
	dir.Register("acpi", struct{}{})
	dir.MarkAbsent("battery", errors.New("no battery"))

	cmds := command.NewDirectory()
	cmds.Register(command.New("boost", "Toggle CPU boost", func(p string) error {
		f.invoked = append(f.invoked, "boost:"+p)
		return nil
	}))
	cmds.Register(command.New("broken", "Always fails", func(string) error {
		return errors.New("device busy")
	}))
	cmds.Register(command.Settings("charge-limit", "Battery charge limit", func(string) error { return nil }))

	s := New(Deps{
		Hub:      h,
		Devices:  dir,
		Model:    map[string]string{"manufacturer": "ASUSTeK COMPUTER INC.", "model": "GV301QH"},
		Commands: cmds,
		Gatherer: reg,
		Exec:     loop,
	}, zerolog.Nop())
	f.api = s
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		f.srv.Close()
		h.Stop()
		loop.Close()
	})
	return f
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestState(t *testing.T) {
	f := newFixture(t)
	var st hub.State
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/state", &st))
	require.NotNil(t, st.Boost)
	assert.False(t, *st.Boost)
	assert.Nil(t, st.PerformanceMode, "absent stream omitted")
}

func TestDevices(t *testing.T) {
	f := newFixture(t)
	var resp struct {
		Model   map[string]string `json:"model"`
		Devices []device.Entry    `json:"devices"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/devices", &resp))
	assert.Equal(t, "GV301QH", resp.Model["model"])
	assert.Equal(t, []device.Entry{
		{Name: "acpi", Present: true},
		{Name: "battery", Reason: "no battery"},
	}, resp.Devices)
}

func TestCommandList(t *testing.T) {
	f := newFixture(t)
	var list []command.Info
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/commands", &list))
	var names []string
	for _, c := range list {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"boost", "broken"}, names)

	list = nil
	getJSON(t, f.srv.URL+"/api/commands?all=true", &list)
	assert.Len(t, list, 3)
}

func TestInvoke(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		path   string
		status int
	}{
		{"known", "/api/commands/boost?param=on", http.StatusOK},
		{"unknown", "/api/commands/aura", http.StatusNotFound},
		{"failing", "/api/commands/broken", http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(f.srv.URL+tc.path, "application/json", nil)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
	assert.Equal(t, []string{"boost:on"}, f.invoked)
}

func TestRoutesWithoutDeps(t *testing.T) {
	s := New(Deps{}, zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/state", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/diagnostics/raw", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/metrics", nil))
	var list []command.Info
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/commands", &list))
	assert.Empty(t, list)
}

func TestMetricsAndHistory(t *testing.T) {
	f := newFixture(t)
	f.boost.Publish(true)
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	body := new(strings.Builder)
	_, _ = bufio.NewReader(resp.Body).WriteTo(body)
	resp.Body.Close()
	assert.Contains(t, body.String(), `flowosd_notifications_total{stream="boost"} 1`)

	var h hub.History
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/history?range=24h", &h))
	require.Len(t, h.Events, 1)
	assert.Equal(t, "boost", h.Events[0].Stream)
}

func TestEventsStartWithSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	next := func(prefix string) string {
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, prefix) {
				return strings.TrimPrefix(line, prefix)
			}
		}
		t.Fatalf("stream ended before %q", prefix)
		return ""
	}

	assert.Equal(t, "state", next("event: "))
	var st hub.State
	require.NoError(t, json.Unmarshal([]byte(next("data: ")), &st))
	require.NotNil(t, st.Boost)

	f.boost.Publish(true)
	assert.Equal(t, "notification", next("event: "))
	var e hub.Event
	require.NoError(t, json.Unmarshal([]byte(next("data: ")), &e))
	assert.Equal(t, "boost", e.Stream)
	assert.Equal(t, "On", e.Text)
}

func TestBindHotkey(t *testing.T) {
	var saved map[string]hotkey.Binding
	s := New(Deps{Bind: func(key string, b hotkey.Binding) error {
		if saved == nil {
			saved = map[string]hotkey.Binding{}
		}
		saved[key] = b
		return nil
	}}, zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	put := func(path, body string) int {
		req, err := http.NewRequest(http.MethodPut, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, put("/api/hotkeys/Aura", `{"command":"launch","parameter":"calc.exe"}`))
	assert.Equal(t, http.StatusBadRequest, put("/api/hotkeys/NoSuchKey", `{"command":"boost"}`))
	assert.Equal(t, http.StatusBadRequest, put("/api/hotkeys/fan", `not json`))
	assert.Equal(t, map[string]hotkey.Binding{"Aura": {Command: "launch", Parameter: "calc.exe"}}, saved)
}

func TestServeStopsWithOpenEventStream(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- f.api.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	sc := bufio.NewScanner(resp.Body)
	require.True(t, sc.Scan())

	start := time.Now()
	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
