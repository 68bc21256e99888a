// Package mediaelement is a headless audio element: it fetches a URL, decodes MP3 and writes PCM
// through the shared audio session, reporting lifecycle events the way a browser media element does.
package mediaelement

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

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/aposazhennikov/radio-relay/logger"
	"github.com/aposazhennikov/radio-relay/playback"
)

const (
	chunkSamples      = 2048
	defaultStallAfter = 5 * time.Second
	pausedPoll        = 100 * time.Millisecond
)

// Options configures an Element. Zero values select the defaults.
type Options struct {
	Client *http.Client
	// Sink receives 16-bit little-endian stereo PCM. Nil discards audio.
	Sink io.Writer
	// Session defaults to playback.Session().
	Session *playback.AudioSession
	// StallAfter is how long the source may go quiet before a waiting event.
	StallAfter time.Duration
	// Realtime paces output at the decoded sample rate instead of as fast as the source allows.
	Realtime bool
	Listener func(playback.Event)
	Logger   *slog.Logger
}

// Element plays one URL at a time. It implements playback.Element.
type Element struct {
	client     *http.Client
	sink       io.Writer
	session    *playback.AudioSession
	stallAfter time.Duration
	realtime   bool
	listener   func(playback.Event)
	logger     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	current *run
	closed  bool
	wg      sync.WaitGroup
}

// New returns an idle Element.
func New(opts Options) *Element {
	e := &Element{
		client:     opts.Client,
		sink:       opts.Sink,
		session:    opts.Session,
		stallAfter: opts.StallAfter,
		realtime:   opts.Realtime,
		listener:   opts.Listener,
		logger:     logger.WithComponent(opts.Logger, "media-element"),
		cancel:     func() {},
	}
	if e.client == nil {
		e.client = &http.Client{}
	}
	if e.sink == nil {
		e.sink = io.Discard
	}
	if e.session == nil {
		e.session = playback.Session()
	}
	if e.stallAfter <= 0 {
		e.stallAfter = defaultStallAfter
	}
	if e.listener == nil {
		e.listener = func(playback.Event) {}
	}
	return e
}

// Load abandons the current source, reporting abort for it, and starts fetching url. It returns
// at once; progress is reported through the listener, tagged with the attempt carried by ctx.
func (e *Element) Load(ctx context.Context, url string) {
	if prev := e.stop(); prev != nil {
		e.listener(playback.Event{Type: playback.EventAbort, Attempt: prev.attempt})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.cancel()
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	r := &run{element: e, url: url, attempt: playback.AttemptFrom(ctx), offset: playback.OffsetFrom(ctx)}
	e.current = r
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.finished(r)
		r.play(runCtx)
	}()
}

// Pause stops the current source and reports a pause event if one was still playing.
func (e *Element) Pause() {
	if prev := e.stop(); prev != nil {
		e.listener(playback.Event{Type: playback.EventPause, Attempt: prev.attempt})
	}
}

// stop cancels the current source and returns it, or nil when nothing was running.
func (e *Element) stop() *run {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancel()
	e.cancel = func() {}
	prev := e.current
	e.current = nil
	return prev
}

func (e *Element) finished(r *run) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == r {
		e.current = nil
	}
}

// Close stops playback and waits for the current source to shut down. Later loads are ignored.
func (e *Element) Close() {
	e.mu.Lock()
	e.closed = true
	e.cancel()
	e.mu.Unlock()

	e.wg.Wait()
}

// run is one load of one URL. It is also the session owner while it plays.
type run struct {
	element *Element
	url     string
	attempt uint64
	offset  time.Duration
}

func (r *run) emit(ctx context.Context, typ playback.EventType, err error) {
	if ctx.Err() != nil {
		return
	}
	r.element.listener(playback.Event{Type: typ, Attempt: r.attempt, Err: err})
}

func (r *run) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	r.element.logger.Warn("Playback error", slog.String("url", r.url), slog.String("error", err.Error()))
	r.emit(ctx, playback.EventError, err)
}

func (r *run) play(ctx context.Context) {
	e := r.element
	r.emit(ctx, playback.EventLoadStart, nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	resp, err := e.client.Do(req)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.fail(ctx, fmt.Errorf("%s: status %d", r.url, resp.StatusCode))
		return
	}

	body := &activityReader{r: resp.Body}
	body.touch()

	decoder, err := mp3.NewDecoder(body)
	if err != nil {
		r.fail(ctx, fmt.Errorf("decode %s: %w", r.url, err))
		return
	}
	e.logger.Debug("Source opened", slog.String("url", r.url), slog.Int("sample_rate", decoder.SampleRate()))

	if r.offset > 0 {
		if skipErr := skipTo(decoder, r.offset); skipErr != nil {
			if errors.Is(skipErr, io.EOF) {
				r.emit(ctx, playback.EventEnded, nil)
				return
			}
			r.fail(ctx, fmt.Errorf("seek %s to %s: %w", r.url, r.offset, skipErr))
			return
		}
		e.logger.Debug("Resumed source", slog.String("url", r.url), slog.Duration("offset", r.offset))
	}

	r.emit(ctx, playback.EventLoadedData, nil)
	r.emit(ctx, playback.EventCanPlay, nil)

	streamer := newMP3Streamer(decoder)
	e.session.Attach(r, streamer)
	defer e.session.Detach(r)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.watchStall(ctx, done, body)
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	r.emit(ctx, playback.EventPlaying, nil)
	r.pump(ctx, streamer, decoder.SampleRate())
}

// skipTo decodes and drops audio up to offset.
func skipTo(decoder *mp3.Decoder, offset time.Duration) error {
	samples := int64(offset) * int64(decoder.SampleRate()) / int64(time.Second)
	_, err := io.CopyN(io.Discard, decoder, samples*pcmFrameBytes)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return err
}

// pump moves samples from the session to the sink until the source ends, fails or is cancelled.
func (r *run) pump(ctx context.Context, streamer *mp3Streamer, sampleRate int) {
	e := r.element
	samples := make([][2]float64, chunkSamples)
	buf := make([]byte, chunkSamples*pcmFrameBytes)
	start := time.Now()
	var written int64

	for {
		if ctx.Err() != nil {
			return
		}
		if e.session.Paused() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pausedPoll):
			}
			start = time.Now()
			written = 0
			continue
		}

		n, ok := e.session.Stream(r, samples)
		if n > 0 {
			if _, err := e.sink.Write(buf[:encodePCM(samples[:n], buf)]); err != nil {
				r.fail(ctx, fmt.Errorf("write audio: %w", err))
				return
			}
			written += int64(n)
			if e.realtime && sampleRate > 0 {
				r.pace(ctx, start, written, sampleRate)
			}
		}
		if ok {
			continue
		}

		switch {
		case ctx.Err() != nil:
		case streamer.ended():
			e.logger.Info("Source ended", slog.String("url", r.url))
			r.emit(ctx, playback.EventEnded, nil)
		case streamer.Err() != nil:
			r.fail(ctx, streamer.Err())
		default:
			// Another source took over the session.
			r.emit(ctx, playback.EventPause, nil)
		}
		return
	}
}

// pace sleeps until the wall clock catches up with the audio written so far.
func (r *run) pace(ctx context.Context, start time.Time, written int64, sampleRate int) {
	ahead := time.Duration(written)*time.Second/time.Duration(sampleRate) - time.Since(start)
	if ahead <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(ahead):
	}
}

// watchStall reports waiting once the source has been quiet for stallAfter, and playing again
// when data resumes.
func (r *run) watchStall(ctx context.Context, done <-chan struct{}, body *activityReader) {
	interval := r.element.stallAfter / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	waiting := false
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			quiet := body.quietFor() > r.element.stallAfter
			switch {
			case quiet && !waiting:
				waiting = true
				r.element.logger.Warn("Source stalled", slog.String("url", r.url))
				r.emit(ctx, playback.EventWaiting, nil)
			case !quiet && waiting:
				waiting = false
				r.emit(ctx, playback.EventPlaying, nil)
			}
		}
	}
}

// activityReader records when data last arrived.
type activityReader struct {
	r    io.Reader
	last atomic.Int64
}

func (a *activityReader) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if n > 0 {
		a.touch()
	}
	return n, err
}

func (a *activityReader) touch() {
	a.last.Store(time.Now().UnixNano())
}

func (a *activityReader) quietFor() time.Duration {
	return time.Since(time.Unix(0, a.last.Load()))
}

var _ playback.Element = (*Element)(nil)
