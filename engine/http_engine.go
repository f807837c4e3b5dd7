package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/smarteraz/models"
	"golang.org/x/net/publicsuffix"
)

// DefaultUserAgent is sent by both transports unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (X11; CrOS x86_64 14541.0.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"

// captchaMarker appears in the form Amazon serves instead of results when
// it suspects automation.
const captchaMarker = "/errors/validateCaptcha"

const maxBody = 10 << 20

// CheckCaptcha returns a BLOCKED_BY_CAPTCHA error when content is the
// captcha form rather than a results page.
func CheckCaptcha(content string) error {
	if strings.Contains(content, captchaMarker) {
		return models.NewCrawlError(models.ErrCodeBlocked, "captcha challenge served instead of results", nil)
	}
	return nil
}

// HTTPOptions configures an HTTPEngine.
type HTTPOptions struct {
	// UserAgent is fixed for the lifetime of the engine.
	UserAgent string

	// Headers are added to every request. A "User-Agent" entry here wins
	// over UserAgent.
	Headers map[string]string

	// Proxy is an http, https or socks5 proxy URL.
	Proxy string

	// TLSFingerprint dials with a Chrome-like ClientHello. Ignored when a
	// proxy is set.
	TLSFingerprint bool

	// Transport replaces the engine's round tripper entirely.
	Transport http.RoundTripper
}

// HTTPEngine is the direct-request transport. It keeps one cookie jar for
// its whole life and never retries.
type HTTPEngine struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine with a fresh cookie jar.
func NewHTTPEngine(opts HTTPOptions) (*HTTPEngine, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("http_engine: cookie jar: %w", err)
	}

	rt := opts.Transport
	if rt == nil {
		rt, err = newTransport(opts)
		if err != nil {
			return nil, err
		}
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	return &HTTPEngine{
		client: &http.Client{
			Transport: rt,
			Jar:       jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: ua,
		headers:   opts.Headers,
	}, nil
}

func newTransport(opts HTTPOptions) (*http.Transport, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   false,
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("http_engine: parse proxy: %w", err)
		}
		switch proxyURL.Scheme {
		case "http", "https", "socks5", "socks5h":
			transport.Proxy = http.ProxyURL(proxyURL)
		default:
			return nil, fmt.Errorf("http_engine: unsupported proxy scheme %q", proxyURL.Scheme)
		}
		return transport, nil
	}

	if opts.TLSFingerprint {
		transport.DialTLSContext = dialChromeTLS
	}
	return transport, nil
}

// dialChromeTLS establishes a TLS connection using a Chrome fingerprint via utls.
func dialChromeTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeTransport, "build request", err)
	}

	httpReq.Header.Set("User-Agent", e.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range e.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, CategorizeError(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, CategorizeError(err, "read body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, models.NewCrawlError(
			models.ErrCodeTransport,
			fmt.Sprintf("unexpected status %d", resp.StatusCode),
			nil,
		)
	}

	bodyStr := string(body)
	if err := CheckCaptcha(bodyStr); err != nil {
		return nil, err
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &FetchResult{
		HTML:       bodyStr,
		StatusCode: resp.StatusCode,
		FinalURL:   finalURL,
		EngineName: e.Name(),
	}, nil
}

// Close drops idle connections. Cookies die with the engine.
func (e *HTTPEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
