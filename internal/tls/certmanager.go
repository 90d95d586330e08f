// Package tls serves the UI over HTTPS with certificates obtained from ACME.
package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/caddyserver/certmagic"
)

// CertManager manages TLS certificates for a fixed set of domains.
type CertManager struct {
	domains []string
	logger  *slog.Logger
	cfg     *certmagic.Config
}

// NewCertManager configures ACME for domains. Outside production the
// Let's Encrypt staging CA is used.
func NewCertManager(domains []string, email string, production bool, logger *slog.Logger) (*CertManager, error) {
	if len(domains) == 0 {
		return nil, errors.New("tls: no domains configured")
	}

	certmagic.DefaultACME.Email = email
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.CA = caFor(production)

	cfg := certmagic.NewDefault()
	return &CertManager{domains: domains, logger: logger, cfg: cfg}, nil
}

func caFor(production bool) string {
	if production {
		return certmagic.LetsEncryptProductionCA
	}
	return certmagic.LetsEncryptStagingCA
}

// Prepare points srv at the HTTPS port and returns the serve function to pass
// to server.Serve. Certificates are obtained first so the listener is ready
// immediately.
func (cm *CertManager) Prepare(ctx context.Context, srv *http.Server) (func() error, error) {
	cm.logger.Info("obtaining certificates", "domains", cm.domains)
	if err := cm.cfg.ManageSync(ctx, cm.domains); err != nil {
		return nil, fmt.Errorf("tls: manage domains: %w", err)
	}

	srv.Addr = fmt.Sprintf(":%d", certmagic.HTTPSPort)
	tlsCfg := cm.cfg.TLSConfig()

	return func() error {
		ln, err := tls.Listen("tcp", srv.Addr, tlsCfg)
		if err != nil {
			return fmt.Errorf("tls: listen: %w", err)
		}
		cm.logger.Info("serving HTTPS", "port", certmagic.HTTPSPort)
		return srv.Serve(ln)
	}, nil
}
