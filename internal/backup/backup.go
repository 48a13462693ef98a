// Package backup exports pokedex snapshots to Tencent COS.
package backup

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	cos "github.com/tencentyun/cos-go-sdk-v5"

	"birddex/internal/model"
)

var ErrUnavailable = errors.New("snapshot export not configured")

var keyPattern = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

type Config struct {
	SecretID     string
	SecretKey    string
	Bucket       string
	Region       string
	PublicDomain string
	Prefix       string
	// BucketURL overrides the URL derived from Bucket and Region.
	BucketURL string
}

// Snapshot is the exported state of one player.
type Snapshot struct {
	SessionID  string               `json:"sessionId"`
	ExportedAt int64                `json:"exportedAt"`
	Entries    []model.PokedexEntry `json:"entries"`
	Level      model.LevelState     `json:"level"`
	Badges     []model.Badge        `json:"badges,omitempty"`
}

type Exporter struct {
	cfg    Config
	client *cos.Client
	now    func() time.Time
}

// NewExporter returns an exporter; it is disabled unless credentials, a
// bucket and a public domain are all configured.
func NewExporter(cfg Config) (*Exporter, error) {
	e := &Exporter{cfg: cfg, now: time.Now}
	if !e.configured() {
		return e, nil
	}

	rawURL := strings.TrimSpace(cfg.BucketURL)
	if rawURL == "" {
		region := strings.TrimSpace(cfg.Region)
		if region == "" {
			region = "ap-hongkong"
		}
		rawURL = fmt.Sprintf("https://%s.cos.%s.myqcloud.com", strings.TrimSpace(cfg.Bucket), region)
	}
	bucketURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse bucket url: %w", err)
	}
	e.client = cos.NewClient(&cos.BaseURL{BucketURL: bucketURL}, &http.Client{
		Timeout: 30 * time.Second,
		Transport: &cos.AuthorizationTransport{
			SecretID:  strings.TrimSpace(cfg.SecretID),
			SecretKey: strings.TrimSpace(cfg.SecretKey),
		},
	})
	return e, nil
}

func (e *Exporter) Enabled() bool {
	return e != nil && e.client != nil
}

func (e *Exporter) configured() bool {
	return strings.TrimSpace(e.cfg.SecretID) != "" &&
		strings.TrimSpace(e.cfg.SecretKey) != "" &&
		strings.TrimSpace(e.cfg.Bucket) != "" &&
		strings.TrimSpace(e.cfg.PublicDomain) != ""
}

// Export uploads snap as JSON and returns its public URL.
func (e *Exporter) Export(ctx context.Context, snap Snapshot) (string, error) {
	if !e.Enabled() {
		return "", ErrUnavailable
	}
	if snap.ExportedAt == 0 {
		snap.ExportedAt = e.now().UnixMilli()
	}
	if snap.Entries == nil {
		snap.Entries = []model.PokedexEntry{}
	}
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}

	key := e.objectKey(snap.SessionID)
	_, err = e.client.Object.Put(ctx, key, bytes.NewReader(body), &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{ContentType: "application/json"},
	})
	if err != nil {
		return "", fmt.Errorf("upload snapshot %s: %w", key, err)
	}

	publicDomain := strings.TrimRight(strings.TrimSpace(e.cfg.PublicDomain), "/")
	return publicDomain + "/" + key, nil
}

func (e *Exporter) objectKey(sessionID string) string {
	prefix := strings.Trim(strings.TrimSpace(e.cfg.Prefix), "/")
	if prefix == "" {
		prefix = "birddex"
	}
	name := fmt.Sprintf("%d_%s_pokedex.json", e.now().Unix(), randomHex(4))
	return prefix + "/snapshots/" + sanitize(sessionID) + "/" + name
}

func sanitize(v string) string {
	v = keyPattern.ReplaceAllString(strings.TrimSpace(v), "_")
	if v == "" || v == "." || v == ".." {
		return "anonymous"
	}
	return v
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "r"
	}
	return hex.EncodeToString(buf)
}
