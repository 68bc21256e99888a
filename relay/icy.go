package relay

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	icyMetaBlockUnit  = 16
	dialTimeout       = 10 * time.Second
	defaultUserAgent  = "radio-relay/1.0"
	icyStatusPrefix   = "ICY"
	httpStatusPrefix  = "HTTP/1.0"
	icyMetadataHeader = "Icy-MetaData"
)

// newICYTransport returns a transport that understands Shoutcast v1 servers, which answer with
// an "ICY 200 OK" status line instead of an HTTP version. Response headers are not bounded here:
// the relay enforces its own connect timeout.
func newICYTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, dialErr := dialer.DialContext(ctx, network, addr)
			if dialErr != nil {
				return nil, dialErr
			}
			return &icyConn{Conn: conn}, nil
		},
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, dialErr := dialer.DialContext(ctx, network, addr)
			if dialErr != nil {
				return nil, dialErr
			}
			host, _, splitErr := net.SplitHostPort(addr)
			if splitErr != nil {
				host = addr
			}
			tlsConn := tls.Client(conn, &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
			if handshakeErr := tlsConn.HandshakeContext(ctx); handshakeErr != nil {
				_ = conn.Close()
				return nil, handshakeErr
			}
			return &icyConn{Conn: tlsConn}, nil
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
		TLSHandshakeTimeout: dialTimeout,
	}
}

// icyConn rewrites a leading "ICY" status token to "HTTP/1.0" so net/http can parse the response.
type icyConn struct {
	net.Conn
	checked bool
	pending []byte
}

func (c *icyConn) Read(p []byte) (int, error) {
	if !c.checked {
		c.checked = true
		head := make([]byte, len(icyStatusPrefix))
		n, readErr := io.ReadFull(c.Conn, head)
		head = head[:n]
		if n == len(icyStatusPrefix) && string(head) == icyStatusPrefix {
			head = []byte(httpStatusPrefix)
		}
		c.pending = head
		if readErr != nil && n == 0 {
			return 0, readErr
		}
	}

	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	return c.Conn.Read(p)
}

// newUpstreamRequest builds the ICY-aware GET for an upstream stream.
func newUpstreamRequest(ctx context.Context, upstreamURL string, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstreamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported upstream scheme %q", req.URL.Scheme)
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(icyMetadataHeader, "1")
	return req, nil
}

// StreamInfo holds the ICY headers announced by an upstream.
type StreamInfo struct {
	Name    string
	Genre   string
	Bitrate int
	MetaInt int
}

func parseStreamInfo(h http.Header) StreamInfo {
	info := StreamInfo{
		Name:  h.Get("Icy-Name"),
		Genre: h.Get("Icy-Genre"),
	}
	if br, atoiErr := strconv.Atoi(strings.TrimSpace(h.Get("Icy-Br"))); atoiErr == nil {
		info.Bitrate = br
	}
	if metaint, atoiErr := strconv.Atoi(strings.TrimSpace(h.Get("Icy-Metaint"))); atoiErr == nil && metaint > 0 {
		info.MetaInt = metaint
	}
	return info
}

// metadataReader strips interleaved ICY metadata blocks and reports title changes.
type metadataReader struct {
	r         io.Reader
	metaint   int
	remaining int
	title     string
	onTitle   func(string)
}

func newMetadataReader(r io.Reader, metaint int, onTitle func(string)) *metadataReader {
	return &metadataReader{r: r, metaint: metaint, remaining: metaint, onTitle: onTitle}
}

func (m *metadataReader) Read(p []byte) (int, error) {
	if m.remaining == 0 {
		if metaErr := m.skipMetadata(); metaErr != nil {
			return 0, metaErr
		}
		m.remaining = m.metaint
	}

	if len(p) > m.remaining {
		p = p[:m.remaining]
	}
	n, err := m.r.Read(p)
	m.remaining -= n
	return n, err
}

func (m *metadataReader) skipMetadata() error {
	var lengthByte [1]byte
	if _, readErr := io.ReadFull(m.r, lengthByte[:]); readErr != nil {
		return readErr
	}

	size := int(lengthByte[0]) * icyMetaBlockUnit
	if size == 0 {
		return nil
	}

	block := make([]byte, size)
	if _, readErr := io.ReadFull(m.r, block); readErr != nil {
		if readErr == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return readErr
	}

	if title := parseStreamTitle(block); title != m.title {
		m.title = title
		if m.onTitle != nil {
			m.onTitle(title)
		}
	}
	return nil
}

// parseStreamTitle extracts StreamTitle from a block like "StreamTitle='Artist - Song';StreamUrl='';".
func parseStreamTitle(block []byte) string {
	block = bytes.TrimRight(block, "\x00")
	const key = "StreamTitle='"
	start := bytes.Index(block, []byte(key))
	if start < 0 {
		return ""
	}
	rest := block[start+len(key):]
	end := bytes.Index(rest, []byte("';"))
	if end < 0 {
		end = bytes.LastIndexByte(rest, '\'')
		if end < 0 {
			return string(rest)
		}
	}
	return string(rest[:end])
}
