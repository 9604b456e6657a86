package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/vincent-petithory/dataurl"
	"golang.org/x/time/rate"

	"betamode/internal/logging"
	"betamode/internal/queue"
	"betamode/internal/services"
)

const stageName = "fetch"

// Options configures a Fetcher.
type Options struct {
	UserAgent string
	// Timeout bounds a single request. Zero means no timeout.
	Timeout           time.Duration
	MaxBytes          int64
	RequestsPerSecond float64
	Burst             int
	AllowedSchemes    []string
	Client            *http.Client
}

// Fetcher retrieves image bytes for a source URI.
type Fetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	maxBytes int64
	allowed  map[string]struct{}
	logger   *slog.Logger

	mu        sync.RWMutex
	userAgent string
}

// New constructs a Fetcher.
func New(opts Options, logger *slog.Logger) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	schemes := opts.AllowedSchemes
	if len(schemes) == 0 {
		schemes = []string{"http", "https", "data"}
	}
	allowed := make(map[string]struct{}, len(schemes))
	for _, scheme := range schemes {
		allowed[strings.ToLower(strings.TrimSpace(scheme))] = struct{}{}
	}
	return &Fetcher{
		client:    client,
		limiter:   rate.NewLimiter(limit, burst),
		timeout:   opts.Timeout,
		maxBytes:  opts.MaxBytes,
		allowed:   allowed,
		logger:    logging.NewComponentLogger(logger, "fetch"),
		userAgent: strings.TrimSpace(opts.UserAgent),
	}
}

// SetUserAgent replaces the User-Agent sent with network requests. An empty
// value is ignored.
func (f *Fetcher) SetUserAgent(userAgent string) {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return
	}
	f.mu.Lock()
	f.userAgent = userAgent
	f.mu.Unlock()
	f.logger.Info("user agent updated", logging.String("user_agent", userAgent))
}

// UserAgent returns the current User-Agent.
func (f *Fetcher) UserAgent() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.userAgent
}

// Fetch returns the bytes behind source.
func (f *Fetcher) Fetch(ctx context.Context, source string) (queue.Payload, error) {
	source = strings.TrimSpace(source)
	scheme, _, ok := strings.Cut(source, ":")
	if !ok || scheme == "" {
		return queue.Payload{}, services.Wrap(services.ErrFetch, stageName, "parse source", "missing scheme", nil)
	}
	scheme = strings.ToLower(scheme)
	if _, allowed := f.allowed[scheme]; !allowed {
		return queue.Payload{}, services.Wrap(services.ErrFetch, stageName, "parse source",
			fmt.Sprintf("scheme %q not allowed", scheme), nil)
	}

	switch scheme {
	case "data":
		return f.decodeDataURI(source)
	case "http", "https":
		return f.get(ctx, source)
	default:
		return queue.Payload{}, services.Wrap(services.ErrFetch, stageName, "parse source",
			fmt.Sprintf("scheme %q not supported", scheme), nil)
	}
}

func (f *Fetcher) decodeDataURI(source string) (queue.Payload, error) {
	decoded, err := dataurl.DecodeString(source)
	if err != nil {
		return queue.Payload{}, services.Wrap(services.ErrFetch, stageName, "decode data uri", "", err)
	}
	if len(decoded.Data) == 0 {
		return queue.Payload{}, services.Wrap(services.ErrFetch, stageName, "decode data uri", "empty payload", nil)
	}
	if f.maxBytes > 0 && int64(len(decoded.Data)) > f.maxBytes {
		return queue.Payload{}, services.Wrap(services.ErrFetch, stageName, "decode data uri",
			fmt.Sprintf("payload exceeds %d bytes", f.maxBytes), nil)
	}
	return queue.Payload{Bytes: decoded.Data, MIME: imageType(decoded.ContentType(), decoded.Data)}, nil
}

func (f *Fetcher) get(ctx context.Context, source string) (queue.Payload, error) {
	target, err := url.Parse(source)
	if err != nil || target.Host == "" {
		return queue.Payload{}, services.Wrap(services.ErrFetch, stageName, "parse source", "invalid url", err)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return queue.Payload{}, services.Wrap(services.ErrFetch, stageName, "rate limit", "", err)
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return queue.Payload{}, services.Wrap(services.ErrFetch, stageName, "build request", "", err)
	}
	if ua := f.UserAgent(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return queue.Payload{}, services.Wrap(services.ErrTimeout, stageName, "get", target.Redacted(), err)
		}
		return queue.Payload{}, services.Wrap(services.ErrFetch, stageName, "get", target.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return queue.Payload{}, services.Wrap(services.ErrFetch, stageName, "get",
			fmt.Sprintf("unexpected status %s", resp.Status), nil)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return queue.Payload{}, services.Wrap(services.ErrFetch, stageName, "read body", "", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return queue.Payload{}, services.Wrap(services.ErrFetch, stageName, "read body",
			fmt.Sprintf("response exceeds %d bytes", f.maxBytes), nil)
	}
	if len(data) == 0 {
		return queue.Payload{}, services.Wrap(services.ErrFetch, stageName, "read body", "empty response body", nil)
	}

	f.logger.Debug("fetched source",
		logging.String("host", target.Host),
		logging.Int("bytes", len(data)),
		logging.String(logging.FieldEventType, "source_fetched"),
	)
	return queue.Payload{Bytes: data, MIME: imageType(resp.Header.Get("Content-Type"), data)}, nil
}

// imageType prefers a declared image/* type and falls back to sniffing.
func imageType(declared string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	mediaType, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return strings.TrimSpace(mediaType)
}
