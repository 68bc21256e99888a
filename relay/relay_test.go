package relay_test

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aposazhennikov/radio-relay/relay"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func newManager(t *testing.T, opts relay.Options) *relay.Manager {
	t.Helper()
	m := relay.NewManager(opts, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	t.Cleanup(m.Close)
	return m
}

// streamingUpstream writes a chunk every few milliseconds until the client goes away.
func streamingUpstream(t *testing.T) (*httptest.Server, <-chan struct{}) {
	t.Helper()
	aborted := make(chan struct{})
	var once sync.Once

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		chunk := bytes.Repeat([]byte{0xFF}, 512)
		for {
			select {
			case <-r.Context().Done():
				once.Do(func() { close(aborted) })
				return
			case <-time.After(5 * time.Millisecond):
			}
			if _, err := w.Write(chunk); err != nil {
				once.Do(func() { close(aborted) })
				return
			}
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, aborted
}

func TestRelayStreamsUpstreamBytes(t *testing.T) {
	payload := []byte("ID3-not-really-mp3-but-bytes-are-bytes")
	gotMetadataHeader := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMetadataHeader <- r.Header.Get("Icy-MetaData")
		w.Header().Set("Content-Type", "audio/aacp")
		_, _ = w.Write(payload)
	}))
	defer upstream.Close()

	m := newManager(t, relay.Options{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)

	err := m.RelayAudioStream(rec, req, upstream.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes())
	assert.Equal(t, "1", <-gotMetadataHeader)

	h := rec.Header()
	assert.Equal(t, "audio/mpeg", h.Get("Content-Type"))
	assert.Equal(t, "no-store", h.Get("Cache-Control"))
	assert.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET", h.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Range", h.Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "keep-alive", h.Get("Connection"))
	assert.Empty(t, h.Get("Content-Length"))
	assert.True(t, rec.Flushed)
}

func TestRelayNon200IsBadGateway(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError, http.StatusPartialContent} {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte("audio that must not leak"))
		}))

		m := newManager(t, relay.Options{})
		rec := httptest.NewRecorder()
		err := m.RelayAudioStream(rec, httptest.NewRequest(http.MethodGet, "/api/stream", nil), upstream.URL)
		upstream.Close()

		require.ErrorIs(t, err, relay.ErrUpstreamUnavailable)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "Stream unavailable\n", rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "audio")
	}
}

func TestRelayTimeoutRespondsOnceAndCancelsUpstream(t *testing.T) {
	aborted := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(aborted)
	}))
	defer upstream.Close()

	m := newManager(t, relay.Options{ConnectTimeout: 50 * time.Millisecond})
	rec := httptest.NewRecorder()

	start := time.Now()
	err := m.RelayAudioStream(rec, httptest.NewRequest(http.MethodGet, "/api/stream", nil), upstream.URL)

	require.ErrorIs(t, err, relay.ErrUpstreamTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "Connection timeout\n", rec.Body.String())

	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream request was not cancelled after the timeout")
	}
}

func TestRelayTransportErrorIsBadGateway(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	deadURL := closed.URL
	closed.Close()

	m := newManager(t, relay.Options{})
	rec := httptest.NewRecorder()
	err := m.RelayAudioStream(rec, httptest.NewRequest(http.MethodGet, "/api/stream", nil), deadURL)

	require.ErrorIs(t, err, relay.ErrUpstreamTransport)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Upstream error\n", rec.Body.String())
}

func TestRelayRejectsNonHTTPUpstream(t *testing.T) {
	m := newManager(t, relay.Options{})
	rec := httptest.NewRecorder()
	err := m.RelayAudioStream(rec, httptest.NewRequest(http.MethodGet, "/api/stream", nil), "file:///etc/passwd")

	require.ErrorIs(t, err, relay.ErrUpstreamTransport)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRelayClientAbortBeforeUpstreamAnswers(t *testing.T) {
	aborted := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(aborted)
	}))
	defer upstream.Close()

	m := newManager(t, relay.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.RelayAudioStream(rec, req, upstream.URL)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, relay.ErrClientAbort)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not return after client abort")
	}

	assert.Zero(t, rec.Body.Len())
	assert.False(t, rec.Flushed)

	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream connection was not torn down")
	}
}

func TestRelayClientAbortMidStreamTearsDownUpstream(t *testing.T) {
	upstream, aborted := streamingUpstream(t)

	m := newManager(t, relay.Options{})
	relayDone := make(chan struct{})
	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(relayDone)
		_ = m.RelayAudioStream(w, r, upstream.URL)
	}))
	defer front.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, front.URL, nil)
	require.NoError(t, err)

	client := &http.Client{Transport: &http.Transport{}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf := make([]byte, 1024)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)

	cancel()
	_ = resp.Body.Close()
	client.CloseIdleConnections()

	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream kept streaming after the listener left")
	}
	select {
	case <-relayDone:
	case <-time.After(5 * time.Second):
		t.Fatal("relay handler did not return")
	}
}

func TestRelayStripsICYMetadata(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("icy-metaint", "4")
		w.Header().Set("icy-name", "Test FM")
		var body bytes.Buffer
		body.WriteString("AAAA")
		meta := "StreamTitle='Band - Song';"
		blocks := (len(meta) + 15) / 16
		body.WriteByte(byte(blocks))
		body.WriteString(meta)
		body.Write(make([]byte, blocks*16-len(meta)))
		body.WriteString("BBBB")
		body.WriteByte(0)
		body.WriteString("CC")
		_, _ = w.Write(body.Bytes())
	}))
	defer upstream.Close()

	var logs bytes.Buffer
	m := relay.NewManager(relay.Options{}, slog.New(slog.NewTextHandler(&logs, nil)), nil)
	defer m.Close()

	rec := httptest.NewRecorder()
	require.NoError(t, m.RelayAudioStream(rec, httptest.NewRequest(http.MethodGet, "/api/stream", nil), upstream.URL))

	assert.Equal(t, "AAAABBBBCC", rec.Body.String())
	assert.Contains(t, logs.String(), "Band - Song")
}

func TestRelayAcceptsShoutcastStatusLine(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	gotHeaders := make(chan string, 1)
	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		var head strings.Builder
		for {
			line, readErr := reader.ReadString('\n')
			head.WriteString(line)
			if readErr != nil || line == "\r\n" {
				break
			}
		}
		gotHeaders <- head.String()

		_, _ = conn.Write([]byte("ICY 200 OK\r\nicy-name: Old School\r\ncontent-type: audio/mpeg\r\n\r\nshoutcast-bytes"))
	}()

	m := newManager(t, relay.Options{})
	rec := httptest.NewRecorder()
	err = m.RelayAudioStream(rec, httptest.NewRequest(http.MethodGet, "/api/stream", nil), "http://"+ln.Addr().String()+"/;stream.mp3")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shoutcast-bytes", rec.Body.String())
	assert.Contains(t, strings.ToLower(<-gotHeaders), "icy-metadata: 1")
}

func TestRelayLogsStallWithoutStopping(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("first"))
		flusher.Flush()
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte("second"))
	}))
	defer upstream.Close()

	var logs bytes.Buffer
	m := relay.NewManager(relay.Options{
		StallThreshold:     30 * time.Millisecond,
		StallCheckInterval: 10 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(&logs, nil)), nil)
	defer m.Close()

	rec := httptest.NewRecorder()
	require.NoError(t, m.RelayAudioStream(rec, httptest.NewRequest(http.MethodGet, "/api/stream", nil), upstream.URL))

	assert.Equal(t, "firstsecond", rec.Body.String())
	assert.Equal(t, 1, strings.Count(logs.String(), "Stream appears to be stalled"))
}

func TestRelayUsesDefaultURL(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("default"))
	}))
	defer upstream.Close()

	m := newManager(t, relay.Options{DefaultURL: upstream.URL})
	assert.Equal(t, upstream.URL, m.DefaultURL())

	rec := httptest.NewRecorder()
	require.NoError(t, m.RelayAudioStream(rec, httptest.NewRequest(http.MethodGet, "/api/stream", nil), ""))
	assert.Equal(t, "default", rec.Body.String())
}

func TestResponseMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
		ok     bool
	}{
		{"timeout", &relay.UpstreamError{Kind: relay.ErrUpstreamTimeout, URL: "u"}, http.StatusGatewayTimeout, "Connection timeout", true},
		{"unavailable", &relay.UpstreamError{Kind: relay.ErrUpstreamUnavailable, URL: "u", StatusCode: 404}, http.StatusBadGateway, "Stream unavailable", true},
		{"transport", &relay.UpstreamError{Kind: relay.ErrUpstreamTransport, URL: "u", Err: io.ErrUnexpectedEOF}, http.StatusBadGateway, "Upstream error", true},
		{"abort", relay.ErrClientAbort, 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, ok := relay.Response(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.body, body)
			assert.Equal(t, tt.ok, ok)
		})
	}

	wrapped := &relay.UpstreamError{Kind: relay.ErrUpstreamTransport, URL: "u", Err: io.ErrUnexpectedEOF}
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
	assert.Contains(t, wrapped.Error(), "upstream error")
}
