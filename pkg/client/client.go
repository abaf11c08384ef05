package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/edenmgr/unidl/pkg/config"
	"github.com/edenmgr/unidl/pkg/logging"
	"github.com/edenmgr/unidl/pkg/version"
)

const (
	retryMinWait     = 100 * time.Millisecond
	retryMaxWait     = 3000 * time.Millisecond // do not backoff further than 3 seconds
	retrySleepJitter = 500                     // (will add 0-500 additional milliseconds), multiplied by time.Millisecond in backoffFunc
	maxRedirects     = 10
)

var errTooManyRedirects = errors.New("stopped after 10 redirects")

// Options configures the HTTP client used by the streaming transport.
type Options struct {
	// ConnectTimeout bounds dialing and the TLS handshake.
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for response headers. The body itself is never timed out.
	ReadTimeout time.Duration
	// MaxRetries is the number of connect-phase retries. Zero disables retrying.
	MaxRetries  int
	DisableIPv6 bool
}

type UserAgentTransport struct {
	Transport http.RoundTripper
}

func (t *UserAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", version.UserAgent())
	return t.Transport.RoundTrip(req)
}

// NewHTTPClient returns an http.Client suitable for long streaming downloads: there is no overall
// request timeout, only connect and response-header timeouts.
func NewHTTPClient(opts Options) *http.Client {
	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	baseTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           transportDialContext(dialer.DialContext, opts.DisableIPv6),
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	retryClient := &retryablehttp.Client{
		HTTPClient: &http.Client{
			Transport:     &UserAgentTransport{Transport: baseTransport},
			CheckRedirect: checkRedirectFunc,
		},
		Logger:       nil,
		RetryWaitMin: retryMinWait,
		RetryWaitMax: retryMaxWait,
		RetryMax:     opts.MaxRetries,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      backoffFunc,
		// hand non-2xx responses back to the caller instead of a generic "giving up" error
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}
	return retryClient.StandardClient()
}

// backoffFunc is a wrapper around retryablehttp.DefaultBackoff that adds a random jitter.
func backoffFunc(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	sleep := time.Duration(rand.Intn(retrySleepJitter)) * time.Millisecond
	sleep += retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
	return sleep
}

// checkRedirectFunc logs redirects (release hosts usually redirect to a CDN) and keeps the
// default redirect limit.
func checkRedirectFunc(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errTooManyRedirects
	}
	logger := logging.GetLogger()
	event := logger.Debug().
		Str("redirect_url", req.URL.String()).
		Str("url", via[0].URL.String())
	if req.Response != nil {
		event = event.Int("status", req.Response.StatusCode)
	}
	event.Msg("Redirect")
	return nil
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// transportDialContext applies `--resolve` overrides and the IPv6 policy without impacting Host
// and SSL resolution.
func transportDialContext(dial dialFunc, disableIPv6 bool) dialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if addrOverride := config.HostToIPResolutionMap[addr]; addrOverride != "" {
			logger := logging.GetLogger()
			logger.Debug().Str("addr", addr).Str("override", addrOverride).Msg("DNS Override")
			addr = addrOverride
		}
		if disableIPv6 && strings.HasPrefix(network, "tcp") {
			network = "tcp4"
		}
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return conn, nil
	}
}
