package serve

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/chirino/temporal-memory-store/internal/config"
)

// startManagementServer starts the dedicated listener for /healthz, /readyz,
// and /metrics. Unlike the main listener there is no cmux protocol split
// here: an orchestrator's probes and a metrics scraper speak exactly one
// protocol, so the listener is TLS when configured and plaintext h2c
// otherwise, never both on one port.
// Returns the bound address and a shutdown function.
func startManagementServer(cfg config.ListenerConfig, handler http.Handler) (net.Addr, func(context.Context) error, error) {
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, nil, fmt.Errorf("management listen failed: %w", err)
	}

	srv := &http.Server{
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	serveLis := lis
	if cfg.EnableTLS {
		cert, err := loadServerCertificate(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			_ = lis.Close()
			return nil, nil, err
		}
		serveLis = tls.NewListener(lis, &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
			MinVersion:   tls.VersionTLS12,
		})
		srv.Handler = handler
	}

	go func() {
		if err := srv.Serve(serveLis); err != nil && err != http.ErrServerClosed {
			log.Error("management server failed", "err", err)
		}
	}()

	log.Info("Management server listening", "addr", lis.Addr(), "tls", cfg.EnableTLS)

	closeFn := func(ctx context.Context) error {
		if err := srv.Shutdown(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	}
	return lis.Addr(), closeFn, nil
}
