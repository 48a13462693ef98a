package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"birddex/internal/backup"
	"birddex/internal/bridge"
	"birddex/internal/feeds"
)

const Prefix = "BIRDDEX_"

type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	Host        string `env:"HOST"`
	Port        int    `env:"PORT"`
	StoreEngine string `env:"STORE" envDefault:"sqlite"`
	DataFile    string `env:"DATA_FILE"`

	Locale         string   `env:"LOCALE" envDefault:"ja"`
	BattleGate     string   `env:"BATTLE_GATE" envDefault:"first-free"`
	AllowedSpecies []string `env:"ALLOWED_SPECIES"`

	// CaptureEndpoint is the remote capture record endpoint; empty mints
	// in-process.
	CaptureEndpoint string        `env:"CAPTURE_ENDPOINT"`
	CaptureTimeout  time.Duration `env:"CAPTURE_TIMEOUT" envDefault:"10s"`

	AR    ARConfig    `envPrefix:"AR_"`
	Feeds FeedsConfig `envPrefix:"FEEDS_"`
	COS   COSConfig   `envPrefix:"COS_"`
	Otel  OtelConfig  `envPrefix:"OTEL_"`
}

type ARConfig struct {
	AllowedOrigin string `env:"ALLOWED_ORIGIN"`
	TargetOrigin  string `env:"TARGET_ORIGIN"`
	AppOrigin     string `env:"APP_ORIGIN"`
	LegacyOrigin  string `env:"LEGACY_ORIGIN"`
}

type FeedsConfig struct {
	EBirdAPIKey      string        `env:"EBIRD_API_KEY"`
	EBirdBaseURL     string        `env:"EBIRD_BASE_URL"`
	WikipediaBaseURL string        `env:"WIKIPEDIA_BASE_URL"`
	FlickrAPIKey     string        `env:"FLICKR_API_KEY"`
	FlickrBaseURL    string        `env:"FLICKR_BASE_URL"`
	NominatimBaseURL string        `env:"NOMINATIM_BASE_URL"`
	UserAgent        string        `env:"USER_AGENT" envDefault:"birddex/1.0"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type COSConfig struct {
	SecretID     string `env:"SECRET_ID"`
	SecretKey    string `env:"SECRET_KEY"`
	Bucket       string `env:"BUCKET_NAME"`
	Region       string `env:"REGION" envDefault:"ap-hongkong"`
	PublicDomain string `env:"PUBLIC_DOMAIN"`
	Prefix       string `env:"PREFIX" envDefault:"birddex"`
}

type OtelConfig struct {
	Endpoint string `env:"ENDPOINT"`
	Enabled  bool   `env:"ENABLED" envDefault:"true"`
}

// Load reads the dotenv files that exist, then parses the environment.
// Variables already set in the environment win over file values.
func Load(files ...string) (Config, error) {
	if err := LoadDotenv(files...); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadDotenv(files ...string) error {
	for _, path := range files {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// ParseEnv fills target from BIRDDEX_ prefixed variables.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: Prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// DataPath is the configured data file, or the engine's default.
func (c Config) DataPath() string {
	if path := strings.TrimSpace(c.DataFile); path != "" {
		return path
	}
	if strings.EqualFold(c.StoreEngine, "json") {
		return "data/birddex.json"
	}
	return "data/birddex.db"
}

func (c Config) BridgeConfig() bridge.Config {
	return bridge.Config{
		AllowedOrigin: c.AR.AllowedOrigin,
		TargetOrigin:  c.AR.TargetOrigin,
		AppOrigin:     c.AR.AppOrigin,
		LegacyOrigin:  c.AR.LegacyOrigin,
	}
}

func (c Config) FeedsConfig() feeds.Config {
	return feeds.Config{
		EBirdAPIKey:      c.Feeds.EBirdAPIKey,
		EBirdBaseURL:     c.Feeds.EBirdBaseURL,
		WikipediaBaseURL: c.Feeds.WikipediaBaseURL,
		FlickrAPIKey:     c.Feeds.FlickrAPIKey,
		FlickrBaseURL:    c.Feeds.FlickrBaseURL,
		NominatimBaseURL: c.Feeds.NominatimBaseURL,
		UserAgent:        c.Feeds.UserAgent,
		Timeout:          c.Feeds.Timeout,
	}
}

func (c Config) BackupConfig() backup.Config {
	return backup.Config{
		SecretID:     c.COS.SecretID,
		SecretKey:    c.COS.SecretKey,
		Bucket:       c.COS.Bucket,
		Region:       c.COS.Region,
		PublicDomain: c.COS.PublicDomain,
		Prefix:       c.COS.Prefix,
	}
}
