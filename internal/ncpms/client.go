package ncpms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/k3a/html2text"
	"golang.org/x/time/rate"

	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/logger"
	"github.com/nongbuhae/cropdoc/internal/observability/metrics"
)

const maxErrorBodyPreview = 300

// Client performs the two-step NCPMS lookup: a search by crop and disease
// name for an opaque key, then a detail fetch by that key.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.NCPMSMetrics
	log        logger.Logger
}

// NewClient creates a new NCPMS client. Zero config values take their
// defaults.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("NCPMS API key is required").
			Category(errors.CategoryConfiguration).
			Component("ncpms").
			Build()
	}

	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}

	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		log:        logger.Global().Module("ncpms"),
	}
	if config.RateLimit > 0 {
		burst := max(config.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	c.log.Info("NCPMS client initialized",
		logger.String("base_url", config.BaseURL),
		logger.Duration("timeout", config.Timeout),
		logger.Float64("rate_limit", config.RateLimit))
	return c, nil
}

// SetMetrics attaches request metrics. Call before the client is shared.
func (c *Client) SetMetrics(m *metrics.NCPMSMetrics) {
	c.metrics = m
}

// Search looks up crop and, when name is not empty, a disease of that crop.
//
// An empty result for the crop alone fails with errors.ErrUnrecognizedCrop.
// An empty result for crop and name returns nil without an error.
func (c *Client) Search(ctx context.Context, crop, name string) (*SearchResult, error) {
	cropHits, err := c.search(ctx, crop, "")
	if err != nil {
		return nil, err
	}
	if len(cropHits) == 0 {
		return nil, errors.New(fmt.Errorf("%w: %s", errors.ErrUnrecognizedCrop, crop)).
			Component("ncpms").
			Category(errors.CategoryValidation).
			Context("crop", crop).
			Build()
	}

	hits := cropHits
	if name != "" {
		if hits, err = c.search(ctx, crop, name); err != nil {
			return nil, err
		}
		if len(hits) == 0 {
			c.log.Debug("disease not recognized",
				logger.String("crop", crop),
				logger.String("name", name))
			return nil, nil
		}
	}

	first := hits[0]
	code, err := first.GetString("sickKey")
	if err != nil || code == "" {
		return nil, c.parseError("search", fmt.Errorf("search hit has no sickKey: %w", err))
	}
	thumb, _ := first.GetString("thumbImg")

	return &SearchResult{ReferenceCode: code, ThumbnailURL: thumb}, nil
}

func (c *Client) search(ctx context.Context, crop, name string) ([]*jason.Object, error) {
	params := url.Values{}
	params.Set("serviceCode", serviceSearch)
	params.Set("serviceType", searchServiceType)
	params.Set("cropName", crop)
	if name != "" {
		params.Set("sickNameKor", name)
	}

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}
	service, err := body.GetObject("service")
	if err != nil {
		return nil, c.parseError("search", fmt.Errorf("response has no service object: %w", err))
	}
	// The service omits the list entirely when nothing matches.
	list, err := service.GetObjectArray("list")
	if err != nil {
		return nil, nil
	}
	return list, nil
}

// FetchDetail returns the description stored under code. Transport and
// parse failures wrap errors.ErrUpstreamUnavailable.
func (c *Client) FetchDetail(ctx context.Context, code string) (*Detail, error) {
	params := url.Values{}
	params.Set("serviceCode", serviceDetail)
	params.Set("sickKey", code)

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}
	service, err := body.GetObject("service")
	if err != nil {
		return nil, c.parseError("detail", fmt.Errorf("response has no service object: %w", err))
	}
	name, err := service.GetString("sickNameKor")
	if err != nil || name == "" {
		return nil, c.parseError("detail", fmt.Errorf("detail for %s has no disease name", code))
	}

	d := &Detail{
		ReferenceCode: code,
		Name:          name,
		Crop:          textField(service, "cropName"),
		Condition:     textField(service, "developmentCondition"),
		Symptoms:      textField(service, "symptoms"),
		Prevention:    textField(service, "preventionMethod"),
	}
	if images, err := service.GetObjectArray("imageList"); err == nil {
		for _, img := range images {
			if u, err := img.GetString("image"); err == nil && u != "" {
				d.ImageURL = u
				break
			}
		}
	}
	return d, nil
}

// textField returns a string field converted from HTML to plain text.
func textField(obj *jason.Object, key string) string {
	s, err := obj.GetString(key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(html2text.HTML2Text(s))
}

// get issues a GET with the API key and params, retrying transient failures.
func (c *Client) get(ctx context.Context, params url.Values) (*jason.Object, error) {
	params.Set("apiKey", c.config.APIKey)
	reqURL := c.config.BaseURL + "?" + params.Encode()
	service := params.Get("serviceCode")

	start := time.Now()
	obj, err := c.getWithRetry(ctx, reqURL, service)
	c.metrics.RecordRequest(service, time.Since(start), err)
	return obj, err
}

func (c *Client) getWithRetry(ctx context.Context, reqURL, service string) (*jason.Object, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		obj, retry, err := c.doRequest(ctx, reqURL, service)
		if err == nil {
			return obj, nil
		}
		lastErr = err
		if !retry || attempt == c.config.MaxRetries {
			break
		}
		c.metrics.RecordRetry(service)

		delay := time.Duration(attempt) * c.config.RetryDelay
		c.log.Warn("NCPMS request failed, retrying",
			logger.String("service", service),
			logger.Int("attempt", attempt),
			logger.Int("max_retries", c.config.MaxRetries),
			logger.Duration("delay", delay),
			logger.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, c.unavailable(ctx.Err(), service, 0)
		}
	}
	return nil, lastErr
}

// doRequest performs one attempt. The bool result reports whether the
// failure is worth retrying.
func (c *Client) doRequest(ctx context.Context, reqURL, service string) (*jason.Object, bool, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, false, c.unavailable(err, service, 0)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, false, c.unavailable(err, service, 0)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, c.unavailable(err, service, 0)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyPreview))
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, c.unavailable(
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(preview))),
			service, resp.StatusCode)
	}

	obj, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return nil, false, c.parseError(service, fmt.Errorf("invalid JSON: %w", err))
	}

	c.log.Trace("NCPMS request completed",
		logger.String("service", service),
		logger.Duration("elapsed", time.Since(start)))
	return obj, false, nil
}

func (c *Client) unavailable(err error, service string, status int) error {
	b := errors.New(fmt.Errorf("%w: %w", errors.ErrUpstreamUnavailable, err)).
		Component("ncpms").
		Category(errors.CategoryNetwork).
		Context("service", service).
		NetworkContext(c.config.BaseURL, c.config.Timeout)
	if status != 0 {
		b = b.Context("status_code", status)
	}
	return b.Build()
}

func (c *Client) parseError(operation string, err error) error {
	return errors.New(fmt.Errorf("%w: %w", errors.ErrUpstreamUnavailable, err)).
		Component("ncpms").
		Category(errors.CategoryFileParsing).
		Context("operation", operation).
		Build()
}
