package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"birddex/internal/model"
)

var ErrRecordFailed = errors.New("capture record failed")

// Recorder asks the backend to mint a capture record.
type Recorder interface {
	Record(ctx context.Context, req Request) (model.PokedexEntry, error)
}

// LocalRecorder mints records in process.
type LocalRecorder struct {
	Now func() time.Time
}

func (r LocalRecorder) Record(ctx context.Context, req Request) (model.PokedexEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.PokedexEntry{}, err
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return Mint(req, now())
}

// HTTPRecorder posts requests to a remote capture endpoint.
type HTTPRecorder struct {
	URL    string
	Client *http.Client
}

func NewHTTPRecorder(endpoint string, timeout time.Duration) *HTTPRecorder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRecorder{
		URL:    strings.TrimSpace(endpoint),
		Client: &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRecorder) Record(ctx context.Context, req Request) (model.PokedexEntry, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.PokedexEntry{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return model.PokedexEntry{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return model.PokedexEntry{}, fmt.Errorf("%w: %v", ErrRecordFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.PokedexEntry{}, fmt.Errorf("%w: %v", ErrRecordFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.PokedexEntry{}, fmt.Errorf("%w: status=%d body=%s", ErrRecordFailed, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	var entry model.PokedexEntry
	if err := json.Unmarshal(respBody, &entry); err != nil {
		return model.PokedexEntry{}, fmt.Errorf("%w: decode: %v", ErrRecordFailed, err)
	}
	if entry.BirdID == "" || entry.CapturedAt <= 0 {
		return model.PokedexEntry{}, fmt.Errorf("%w: incomplete record", ErrRecordFailed)
	}
	return entry, nil
}
