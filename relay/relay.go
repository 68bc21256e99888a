// Package relay pipes live ICY/Shoutcast audio from an upstream origin to HTTP listeners.
// Each listener request owns exactly one upstream connection, which is released when the
// origin ends, fails, or the listener goes away.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aposazhennikov/radio-relay/logger"
	sentryhelper "github.com/aposazhennikov/radio-relay/sentry_helper"
)

const (
	relayBufferSize = 4096

	// DefaultStreamURL is relayed when a request names no upstream.
	DefaultStreamURL = "https://s2.free-shoutcast.com/stream/18068/;stream.mp3"

	defaultConnectTimeout     = 30 * time.Second
	defaultStallThreshold     = 30 * time.Second
	defaultStallCheckInterval = 10 * time.Second
)

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	DefaultURL         string
	ConnectTimeout     time.Duration
	StallThreshold     time.Duration
	StallCheckInterval time.Duration
	// Client overrides the ICY-aware upstream client, mostly for tests.
	Client *http.Client
}

// Manager relays upstream streams to listeners.
type Manager struct {
	defaultURL         string
	connectTimeout     time.Duration
	stallThreshold     time.Duration
	stallCheckInterval time.Duration
	client             *http.Client
	logger             *slog.Logger
	sentry             *sentryhelper.SentryHelper
}

// NewManager creates a relay Manager.
func NewManager(opts Options, log *slog.Logger, sentry *sentryhelper.SentryHelper) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if sentry == nil {
		sentry = sentryhelper.NewSentryHelper(false, log)
	}

	m := &Manager{
		defaultURL:         opts.DefaultURL,
		connectTimeout:     opts.ConnectTimeout,
		stallThreshold:     opts.StallThreshold,
		stallCheckInterval: opts.StallCheckInterval,
		client:             opts.Client,
		logger:             logger.WithComponent(log, "relay"),
		sentry:             sentry,
	}
	if m.defaultURL == "" {
		m.defaultURL = DefaultStreamURL
	}
	if m.connectTimeout <= 0 {
		m.connectTimeout = defaultConnectTimeout
	}
	if m.stallThreshold <= 0 {
		m.stallThreshold = defaultStallThreshold
	}
	if m.stallCheckInterval <= 0 {
		m.stallCheckInterval = defaultStallCheckInterval
	}
	if m.client == nil {
		m.client = &http.Client{Transport: newICYTransport()}
	}
	return m
}

// DefaultURL returns the upstream used when a request names none.
func (m *Manager) DefaultURL() string {
	return m.defaultURL
}

// Close releases idle upstream connections.
func (m *Manager) Close() {
	m.client.CloseIdleConnections()
}

// RelayAudioStream connects to upstreamURL (or the default) and streams it to w. Failures before
// the first byte are answered with 502/504; a listener abort is answered with nothing. The returned
// error is informational: the response has already been handled.
func (m *Manager) RelayAudioStream(w http.ResponseWriter, r *http.Request, upstreamURL string) error {
	if upstreamURL == "" {
		upstreamURL = m.defaultURL
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	resp, connectErr := m.connect(ctx, cancel, r, upstreamURL)
	relayRequestsTotal.WithLabelValues(resultLabel(connectErr)).Inc()
	if connectErr != nil {
		m.reportConnectError(w, r, upstreamURL, connectErr)
		return connectErr
	}
	defer resp.Body.Close()

	info := parseStreamInfo(resp.Header)
	logger.LogRelayEvent(m.logger, slog.LevelInfo, "Upstream connected", upstreamURL, r.RemoteAddr,
		slog.String("icy_name", info.Name),
		slog.Int("icy_bitrate", info.Bitrate),
		slog.Int("icy_metaint", info.MetaInt))

	writeStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	var body io.Reader = resp.Body
	if info.MetaInt > 0 {
		body = newMetadataReader(resp.Body, info.MetaInt, func(title string) {
			m.logger.Info("Now playing", slog.String("upstream", upstreamURL), slog.String("title", title))
		})
	}

	activeStreams.Inc()
	defer activeStreams.Dec()

	return m.streamFromSourceToClient(ctx, w, body, upstreamURL)
}

type connectResult struct {
	resp *http.Response
	err  error
}

// connect performs the upstream request. Exactly one of the timeout, the response and the
// transport error settles the attempt; a result that loses the race is drained and closed.
func (m *Manager) connect(ctx context.Context, cancel context.CancelFunc, r *http.Request, upstreamURL string) (*http.Response, error) {
	req, buildErr := newUpstreamRequest(ctx, upstreamURL, r.Header.Get("User-Agent"))
	if buildErr != nil {
		return nil, &UpstreamError{Kind: ErrUpstreamTransport, URL: upstreamURL, Err: buildErr}
	}

	results := make(chan connectResult, 1)
	go func() {
		resp, doErr := m.client.Do(req)
		results <- connectResult{resp: resp, err: doErr}
	}()

	timer := time.NewTimer(m.connectTimeout)
	defer timer.Stop()

	select {
	case res := <-results:
		if res.err != nil {
			if r.Context().Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrClientAbort, res.err)
			}
			return nil, &UpstreamError{Kind: ErrUpstreamTransport, URL: upstreamURL, Err: res.err}
		}
		if res.resp.StatusCode != http.StatusOK {
			_ = res.resp.Body.Close()
			return nil, &UpstreamError{Kind: ErrUpstreamUnavailable, URL: upstreamURL, StatusCode: res.resp.StatusCode}
		}
		return res.resp, nil

	case <-timer.C:
		abandon(cancel, results)
		return nil, &UpstreamError{Kind: ErrUpstreamTimeout, URL: upstreamURL}

	case <-r.Context().Done():
		abandon(cancel, results)
		return nil, ErrClientAbort
	}
}

// abandon cancels an in-flight upstream request and closes whatever it eventually yields.
func abandon(cancel context.CancelFunc, results <-chan connectResult) {
	cancel()
	res := <-results
	if res.resp != nil {
		_ = res.resp.Body.Close()
	}
}

func (m *Manager) reportConnectError(w http.ResponseWriter, r *http.Request, upstreamURL string, err error) {
	status, body, ok := Response(err)
	if !ok {
		logger.LogRelayEvent(m.logger, slog.LevelDebug, "Listener left before upstream answered", upstreamURL, r.RemoteAddr)
		return
	}

	logger.LogRelayEvent(m.logger, slog.LevelError, "Stream relay failed", upstreamURL, r.RemoteAddr,
		slog.Int("status", status),
		slog.String("error", err.Error()))
	if errors.Is(err, ErrUpstreamTransport) {
		m.sentry.CaptureErrorWithExtra(err, "relay", "connect", map[string]interface{}{"upstream": upstreamURL})
	}

	http.Error(w, body, status)
}

func writeStreamHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "audio/mpeg")
	h.Set("Cache-Control", "no-store")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET")
	h.Set("Access-Control-Allow-Headers", "Range")
	h.Set("Connection", "keep-alive")
	// No Content-Length: net/http switches to chunked transfer encoding.
}

// streamFromSourceToClient copies upstream audio to the listener, flushing every chunk, while a
// monitor warns about upstream silence.
func (m *Manager) streamFromSourceToClient(ctx context.Context, w http.ResponseWriter, body io.Reader, upstreamURL string) error {
	var lastData atomic.Int64
	lastData.Store(time.Now().UnixNano())

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.monitorStall(done, &lastData, upstreamURL)
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, relayBufferSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			lastData.Store(time.Now().UnixNano())
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				if !isConnectionClosedError(writeErr) {
					m.logger.Error("Error writing to client", slog.String("error", writeErr.Error()))
				}
				return nil
			}
			if flusher != nil {
				flusher.Flush()
			}
			bytesRelayed.Add(float64(n))
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				m.logger.Info("Stream ended", slog.String("upstream", upstreamURL))
				return nil
			}
			if ctx.Err() != nil {
				// Listener aborted; cancelling ctx already tore down the upstream.
				return nil
			}
			m.logger.Error("Source stream error",
				slog.String("upstream", upstreamURL),
				slog.String("error", readErr.Error()))
			return &UpstreamError{Kind: ErrUpstreamTransport, URL: upstreamURL, Err: readErr}
		}
	}
}

// monitorStall logs a single warning once the upstream has been silent longer than the stall
// threshold. It never interrupts the stream.
func (m *Manager) monitorStall(done <-chan struct{}, lastData *atomic.Int64, upstreamURL string) {
	ticker := time.NewTicker(m.stallCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			silent := time.Since(time.Unix(0, lastData.Load()))
			if silent > m.stallThreshold {
				m.logger.Warn("Stream appears to be stalled",
					slog.String("upstream", upstreamURL),
					slog.Duration("silent_for", silent))
				stallsTotal.Inc()
				m.sentry.CaptureWarning("Stream appears to be stalled: "+upstreamURL, "relay", "stream")
				return
			}
		}
	}
}
