package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"birddex/internal/backup"
	"birddex/internal/capture"
	"birddex/internal/config"
	"birddex/internal/feeds"
	"birddex/internal/httpapi"
	"birddex/internal/service"
	"birddex/internal/store"
	"birddex/internal/telemetry"
)

func main() {
	cfg, err := config.Load(".env", "birddex.env")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	addr := resolveListenAddr(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "birddex", telemetry.Config{
		Endpoint: cfg.Otel.Endpoint,
		Enabled:  cfg.Otel.Enabled,
	})
	if err != nil {
		log.Printf("tracing setup failed, continuing without export: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("tracing shutdown failed: %v", err)
		}
	}()

	st, err := store.NewByEngine(cfg.StoreEngine, cfg.DataPath())
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}
	if closer, ok := st.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Printf("store close failed: %v", err)
			}
		}()
	}

	feedCfg := cfg.FeedsConfig()
	log.Printf("feeds config: ebird_base=%s ebird_key_meta={%s} flickr_key_meta={%s} user_agent=%s timeout=%s",
		firstNonEmpty(feedCfg.EBirdBaseURL, "default"),
		safeKeyMeta(feedCfg.EBirdAPIKey),
		safeKeyMeta(feedCfg.FlickrAPIKey),
		feedCfg.UserAgent,
		feedCfg.Timeout,
	)
	feedClient := feeds.NewClient(feedCfg)

	exporter, err := backup.NewExporter(cfg.BackupConfig())
	if err != nil {
		log.Printf("init snapshot exporter failed: %v", err)
	}
	if exporter.Enabled() {
		log.Printf("snapshot export enabled: bucket=%s region=%s", cfg.COS.Bucket, cfg.COS.Region)
	} else {
		log.Printf("snapshot export disabled: cos secret_id={%s} bucket=%q", safeKeyMeta(cfg.COS.SecretID), cfg.COS.Bucket)
	}

	svc := service.New(st, service.Options{
		Feeds:          feedClient,
		Recorder:       newRecorder(cfg),
		Gate:           capture.GateByName(cfg.BattleGate),
		Bridge:         cfg.BridgeConfig(),
		Exporter:       exporter,
		Locale:         cfg.Locale,
		AllowedSpecies: cfg.AllowedSpecies,
	})
	defer svc.Close()

	handler := httpapi.NewHandler(svc)
	router := httpapi.NewRouter(handler)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown failed: %v", err)
		}
	}()

	log.Printf("birddex backend listening on %s (store=%s gate=%s locale=%s)", addr, cfg.StoreEngine, cfg.BattleGate, cfg.Locale)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}

// newRecorder mints captures in-process unless a remote endpoint is set.
func newRecorder(cfg config.Config) capture.Recorder {
	endpoint := strings.TrimSpace(cfg.CaptureEndpoint)
	if endpoint == "" {
		return nil
	}
	log.Printf("capture recorder: endpoint=%s timeout=%s", endpoint, cfg.CaptureTimeout)
	return capture.NewHTTPRecorder(endpoint, cfg.CaptureTimeout)
}

func resolveListenAddr(cfg config.Config) string {
	defaultHost, defaultPort := parseListenAddr(cfg.Addr)
	if defaultPort <= 0 {
		defaultPort = 8080
	}
	if host := strings.TrimSpace(cfg.Host); host != "" {
		defaultHost = host
	}
	if cfg.Port > 0 {
		defaultPort = cfg.Port
	}

	host := flag.String("host", defaultHost, "server listen host, e.g. 0.0.0.0")
	port := flag.Int("port", defaultPort, "server listen port, e.g. 8080")
	flag.Parse()

	return joinListenAddr(strings.TrimSpace(*host), *port)
}

func parseListenAddr(addr string) (string, int) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", 0
	}
	if strings.HasPrefix(addr, ":") {
		return "", parsePort(strings.TrimPrefix(addr, ":"))
	}
	if host, port, err := net.SplitHostPort(addr); err == nil {
		return host, parsePort(port)
	}
	if portOnly := parsePort(addr); portOnly > 0 {
		return "", portOnly
	}
	return addr, 0
}

func joinListenAddr(host string, port int) string {
	if port <= 0 {
		port = 8080
	}
	if host == "" {
		return fmt.Sprintf(":%d", port)
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func parsePort(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func safeKeyMeta(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "empty=true"
	}
	hasQuotes := (strings.HasPrefix(trimmed, "\"") && strings.HasSuffix(trimmed, "\"")) ||
		(strings.HasPrefix(trimmed, "'") && strings.HasSuffix(trimmed, "'"))
	return fmt.Sprintf(
		"empty=false,len=%d,has_quotes=%t,has_whitespace=%t",
		len(trimmed),
		hasQuotes,
		strings.Contains(trimmed, " "),
	)
}
