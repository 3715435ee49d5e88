package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

const (
	EnvVortexAddress       = "VORTEX_ADDR"
	EnvVortexToken         = "VORTEX_TOKEN"
	EnvVortexMaxRetries    = "VORTEX_MAX_RETRIES"
	EnvVortexClientTimeout = "VORTEX_CLIENT_TIMEOUT"
	EnvVortexSkipVerify    = "VORTEX_SKIP_VERIFY"
	EnvRateLimit           = "VORTEX_RATE_LIMIT"

	// DefaultUserAgent is sent on every request. Tokens are bound to the
	// agent string they were issued to, so it must stay stable between login
	// and later calls.
	DefaultUserAgent = "vortex-api-client"
)

// Config is used to configure the creation of the client.
type Config struct {
	modifyLock sync.RWMutex

	// Address is the address of the Vortex server, such as
	// "http://127.0.0.1:8400".
	Address string

	// HttpClient is the HTTP client to use. Start from the one created by
	// DefaultConfig rather than http.DefaultClient.
	HttpClient *http.Client

	// MinRetryWait controls the minimum time to wait before retrying when a 5xx
	// error occurs. Defaults to 1000 milliseconds.
	MinRetryWait time.Duration

	// MaxRetryWait controls the maximum time to wait before retrying when a 5xx
	// error occurs. Defaults to 1500 milliseconds.
	MaxRetryWait time.Duration

	// MaxRetries controls the maximum number of times to retry when a 5xx
	// error occurs. Set to 0 to disable retrying. Defaults to 2 (for a total
	// of three tries).
	MaxRetries int

	// Timeout, given a non-negative value, will apply the request timeout
	// to each request function unless an earlier deadline is passed to the
	// request function through context.Context.
	Timeout time.Duration

	// UserAgent is the binding context presented with every request.
	UserAgent string

	Backoff    retryablehttp.Backoff
	CheckRetry retryablehttp.CheckRetry

	// Logger is the leveled logger to provide to the retryable HTTP client.
	Logger retryablehttp.LeveledLogger

	// Limiter is the rate limiter used by the client, if any.
	Limiter *rate.Limiter

	// Error is set when DefaultConfig could not be completed.
	Error error
}

// DefaultConfig returns a default configuration for the client. It is
// safe to modify the return value of this function.
//
// The default Address is http://127.0.0.1:8400, but this can be overridden by
// setting the `VORTEX_ADDR` environment variable.
func DefaultConfig() *Config {
	config := &Config{
		Address:      "http://127.0.0.1:8400",
		HttpClient:   cleanhttp.DefaultPooledClient(),
		Timeout:      time.Second * 60,
		MinRetryWait: time.Millisecond * 1000,
		MaxRetryWait: time.Millisecond * 1500,
		MaxRetries:   2,
		UserAgent:    DefaultUserAgent,
		Backoff:      retryablehttp.RateLimitLinearJitterBackoff,
	}

	transport := config.HttpClient.Transport.(*http.Transport)
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.TLSClientConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		config.Error = err
		return config
	}

	if err := config.ReadEnvironment(); err != nil {
		config.Error = err
		return config
	}

	config.HttpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return config
}

// ReadEnvironment reads configuration information from the environment. If
// there is an error, no configuration value is updated.
func (c *Config) ReadEnvironment() error {
	var envAddress string
	var envClientTimeout time.Duration
	var envInsecure bool
	var envMaxRetries *int
	var limit *rate.Limiter

	if v := ReadVortexVariable(EnvVortexAddress); v != "" {
		envAddress = v
	}
	if v := ReadVortexVariable(EnvVortexMaxRetries); v != "" {
		maxRetries, err := parseutil.SafeParseIntRange(v, 0, math.MaxInt)
		if err != nil {
			return err
		}
		mRetries := int(maxRetries)
		envMaxRetries = &mRetries
	}
	if v := ReadVortexVariable(EnvRateLimit); v != "" {
		rateLimit, burstLimit, err := parseRateLimit(v)
		if err != nil {
			return err
		}
		limit = rate.NewLimiter(rate.Limit(rateLimit), burstLimit)
	}
	if t := ReadVortexVariable(EnvVortexClientTimeout); t != "" {
		clientTimeout, err := parseutil.ParseDurationSecond(t)
		if err != nil {
			return fmt.Errorf("could not parse %q", EnvVortexClientTimeout)
		}
		envClientTimeout = clientTimeout
	}
	if v := ReadVortexVariable(EnvVortexSkipVerify); v != "" {
		var err error
		envInsecure, err = strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("could not parse %s", EnvVortexSkipVerify)
		}
	}

	c.modifyLock.Lock()
	defer c.modifyLock.Unlock()

	if limit != nil {
		c.Limiter = limit
	}
	if envInsecure {
		if transport, ok := c.HttpClient.Transport.(*http.Transport); ok && transport.TLSClientConfig != nil {
			transport.TLSClientConfig.InsecureSkipVerify = true
		}
	}
	if envAddress != "" {
		c.Address = envAddress
	}
	if envMaxRetries != nil {
		c.MaxRetries = *envMaxRetries
	}
	if envClientTimeout != 0 {
		c.Timeout = envClientTimeout
	}

	return nil
}

func parseRateLimit(val string) (rate float64, burst int, err error) {
	_, err = fmt.Sscanf(val, "%f:%d", &rate, &burst)
	if err != nil {
		rate, err = strconv.ParseFloat(val, 64)
		if err != nil {
			err = fmt.Errorf("%v was provided but incorrectly formatted", EnvRateLimit)
		}
		burst = int(rate)
	}

	return rate, burst, err
}

// Client is the client to the Vortex API. Create a client with NewClient.
type Client struct {
	modifyLock sync.RWMutex
	addr       *url.URL
	config     *Config
	token      string
}

// NewClient returns a new client for the given configuration.
//
// If the configuration is nil, Vortex will use configuration from
// DefaultConfig(), which is the recommended starting configuration.
//
// If the environment variable `VORTEX_TOKEN` is present, the token will be
// automatically added to the client. Otherwise, you must manually call
// `SetToken()` or log in.
func NewClient(c *Config) (*Client, error) {
	def := DefaultConfig()
	if def.Error != nil {
		return nil, fmt.Errorf("error encountered setting up default configuration: %w", def.Error)
	}

	if c == nil {
		c = def
	}

	c.modifyLock.Lock()
	defer c.modifyLock.Unlock()

	if c.MinRetryWait == 0 {
		c.MinRetryWait = def.MinRetryWait
	}
	if c.MaxRetryWait == 0 {
		c.MaxRetryWait = def.MaxRetryWait
	}
	if c.HttpClient == nil {
		c.HttpClient = def.HttpClient
	}
	if c.HttpClient.Transport == nil {
		c.HttpClient.Transport = def.HttpClient.Transport
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	u, err := parseAddress(c.Address)
	if err != nil {
		return nil, err
	}

	client := &Client{
		addr:   u,
		config: c,
	}

	if token := ReadVortexVariable(EnvVortexToken); token != "" {
		client.token = token
	}

	return client, nil
}

func parseAddress(address string) (*url.URL, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("address %q must use http or https", address)
	}
	return u, nil
}

// SetAddress sets the address of Vortex in the client. The format of address
// should be "<Scheme>://<Host>:<Port>". Setting this on a client will override
// the value of VORTEX_ADDR environment variable.
func (c *Client) SetAddress(addr string) error {
	parsedAddr, err := parseAddress(addr)
	if err != nil {
		return fmt.Errorf("failed to set address: %w", err)
	}

	c.modifyLock.Lock()
	defer c.modifyLock.Unlock()

	c.config.modifyLock.Lock()
	c.config.Address = addr
	c.config.modifyLock.Unlock()

	c.addr = parsedAddr
	return nil
}

// Address returns the Vortex URL the client is configured to connect to
func (c *Client) Address() string {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()

	return c.addr.String()
}

// SetMaxRetries sets the number of retries that will be used in the case of certain errors
func (c *Client) SetMaxRetries(retries int) {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.Lock()
	defer c.config.modifyLock.Unlock()

	c.config.MaxRetries = retries
}

func (c *Client) MaxRetries() int {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.RLock()
	defer c.config.modifyLock.RUnlock()

	return c.config.MaxRetries
}

// SetClientTimeout sets the client request timeout
func (c *Client) SetClientTimeout(timeout time.Duration) {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.Lock()
	defer c.config.modifyLock.Unlock()

	c.config.Timeout = timeout
}

func (c *Client) ClientTimeout() time.Duration {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.RLock()
	defer c.config.modifyLock.RUnlock()

	return c.config.Timeout
}

// SetUserAgent changes the agent string sent with every request. Tokens
// issued under one agent are rejected when presented under another.
func (c *Client) SetUserAgent(ua string) {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.Lock()
	defer c.config.modifyLock.Unlock()

	c.config.UserAgent = ua
}

func (c *Client) UserAgent() string {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.RLock()
	defer c.config.modifyLock.RUnlock()

	return c.config.UserAgent
}

// Token returns the access token being used by this client. It will
// return the empty string if there is no token set.
func (c *Client) Token() string {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	return c.token
}

// SetToken sets the token directly. This won't perform any auth
// verification, it simply sets the token properly for future requests.
func (c *Client) SetToken(v string) {
	c.modifyLock.Lock()
	defer c.modifyLock.Unlock()
	c.token = v
}

// ClearToken deletes the token if it is set or does nothing otherwise.
func (c *Client) ClearToken() {
	c.modifyLock.Lock()
	defer c.modifyLock.Unlock()
	c.token = ""
}

// SetBackoff sets the backoff function to be used for future requests.
func (c *Client) SetBackoff(backoff retryablehttp.Backoff) {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.Lock()
	defer c.config.modifyLock.Unlock()

	c.config.Backoff = backoff
}

func (c *Client) SetLogger(logger retryablehttp.LeveledLogger) {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	c.config.modifyLock.Lock()
	defer c.config.modifyLock.Unlock()

	c.config.Logger = logger
}

// NewRequest creates a new raw request object to query the Vortex server
// configured for this client.
func (c *Client) NewRequest(method, requestPath string) *Request {
	c.modifyLock.RLock()
	addr := c.addr
	token := c.token
	c.modifyLock.RUnlock()

	c.config.modifyLock.RLock()
	ua := c.config.UserAgent
	c.config.modifyLock.RUnlock()

	return &Request{
		Method: method,
		URL: &url.URL{
			User:   addr.User,
			Scheme: addr.Scheme,
			Host:   addr.Host,
			Path:   path.Join(addr.Path, requestPath),
		},
		Host:        addr.Host,
		ClientToken: token,
		UserAgent:   ua,
		Params:      make(map[string][]string),
	}
}

func (c *Client) RawRequestWithContext(ctx context.Context, r *Request) (*Response, error) {
	ctx, cancel := c.withConfiguredTimeout(ctx)
	resp, err := c.rawRequestWithContext(ctx, r)
	if resp == nil {
		cancel()
		return resp, err
	}
	// the body stays readable until the caller closes it
	resp.cancel = cancel
	return resp, err
}

func (c *Client) rawRequestWithContext(ctx context.Context, r *Request) (*Response, error) {
	c.modifyLock.RLock()
	c.config.modifyLock.RLock()
	limiter := c.config.Limiter
	minRetryWait := c.config.MinRetryWait
	maxRetryWait := c.config.MaxRetryWait
	maxRetries := c.config.MaxRetries
	checkRetry := c.config.CheckRetry
	backoff := c.config.Backoff
	httpClient := c.config.HttpClient
	logger := c.config.Logger
	c.config.modifyLock.RUnlock()
	c.modifyLock.RUnlock()

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := r.toRetryableHTTP()
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, errors.New("nil request created")
	}

	req.Request = req.Request.WithContext(ctx)

	if backoff == nil {
		backoff = retryablehttp.RateLimitLinearJitterBackoff
	}

	if checkRetry == nil {
		checkRetry = DefaultRetryPolicy
	}

	client := &retryablehttp.Client{
		HTTPClient:   httpClient,
		RetryWaitMin: minRetryWait,
		RetryWaitMax: maxRetryWait,
		RetryMax:     maxRetries,
		Backoff:      backoff,
		CheckRetry:   checkRetry,
		Logger:       logger,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	var result *Response
	resp, err := client.Do(req)
	if resp != nil {
		result = &Response{Response: resp}
	}
	if err != nil {
		if strings.Contains(err.Error(), "server gave HTTP response to HTTPS client") {
			err = fmt.Errorf("%w (the server is running without TLS; use an http:// address)", err)
		}
		return result, err
	}

	if err := result.Error(); err != nil {
		return result, err
	}

	return result, nil
}

// withConfiguredTimeout wraps the context with a timeout from the client configuration.
func (c *Client) withConfiguredTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.ClientTimeout()

	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}

	return ctx, func() {}
}

// DefaultRetryPolicy is retryablehttp.DefaultRetryPolicy, except that a 429
// from the login limiter is returned to the caller instead of retried.
func DefaultRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
