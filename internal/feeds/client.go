// Package feeds talks to the best-effort third-party data sources: eBird
// for nearby species, Wikipedia and Flickr for images and descriptions, and
// Nominatim for reverse geocoding.
package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotConfigured = errors.New("feed not configured")
	ErrUpstream      = errors.New("upstream feed error")
)

var tracer = otel.Tracer("birddex/internal/feeds")

const defaultTimeout = 10 * time.Second

type Config struct {
	EBirdAPIKey      string
	EBirdBaseURL     string
	WikipediaBaseURL string // "{lang}" is replaced by the wiki language
	FlickrAPIKey     string
	FlickrBaseURL    string
	NominatimBaseURL string
	UserAgent        string
	Timeout          time.Duration
	HTTPClient       *http.Client
}

type Client struct {
	ebirdAPIKey   string
	ebirdBaseURL  string
	wikipediaURL  string
	flickrAPIKey  string
	flickrBaseURL string
	nominatimURL  string
	userAgent     string
	timeout       time.Duration
	httpClient    *http.Client
}

func NewClient(cfg Config) *Client {
	ebirdBaseURL := strings.TrimRight(strings.TrimSpace(cfg.EBirdBaseURL), "/")
	if ebirdBaseURL == "" {
		ebirdBaseURL = "https://api.ebird.org/v2"
	}
	wikipediaURL := strings.TrimRight(strings.TrimSpace(cfg.WikipediaBaseURL), "/")
	if wikipediaURL == "" {
		wikipediaURL = "https://{lang}.wikipedia.org"
	}
	flickrBaseURL := strings.TrimRight(strings.TrimSpace(cfg.FlickrBaseURL), "/")
	if flickrBaseURL == "" {
		flickrBaseURL = "https://api.flickr.com/services/rest"
	}
	nominatimURL := strings.TrimRight(strings.TrimSpace(cfg.NominatimBaseURL), "/")
	if nominatimURL == "" {
		nominatimURL = "https://nominatim.openstreetmap.org"
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = "birddex/1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		ebirdAPIKey:   strings.TrimSpace(cfg.EBirdAPIKey),
		ebirdBaseURL:  ebirdBaseURL,
		wikipediaURL:  wikipediaURL,
		flickrAPIKey:  strings.TrimSpace(cfg.FlickrAPIKey),
		flickrBaseURL: flickrBaseURL,
		nominatimURL:  nominatimURL,
		userAgent:     userAgent,
		timeout:       cfg.Timeout,
		httpClient:    httpClient,
	}
}

func (c *Client) wikiBase(lang string) string {
	return strings.ReplaceAll(c.wikipediaURL, "{lang}", lang)
}

// getJSON issues a GET and decodes a 2xx JSON body into out.
func (c *Client) getJSON(ctx context.Context, op string, rawURL string, headers map[string]string, out any) error {
	ctx, span := tracer.Start(ctx, "feeds."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("feed.op", op)),
	)
	defer span.End()

	err := c.doGet(ctx, rawURL, headers, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) doGet(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status=%d body=%s", ErrUpstream, resp.StatusCode, truncateText(strings.TrimSpace(string(body)), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return nil
}

func truncateText(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
