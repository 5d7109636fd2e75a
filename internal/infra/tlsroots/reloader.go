package tlsroots

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yndnr/gridmesh-go/internal/infra/confloader"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
)

// reloadSettle covers a rotation that rewrites the cert and key one after
// the other.
const reloadSettle = 200 * time.Millisecond

// Reloader serves a server key pair and swaps in a new one when either file
// changes. Handshakes already in progress keep the pair they started with.
type Reloader struct {
	certFile string
	keyFile  string
	log      logger.Logger
	current  atomic.Pointer[tls.Certificate]
	watcher  *confloader.Watcher
}

// NewReloader loads the key pair. Call Run to follow changes.
func NewReloader(certFile, keyFile string, log logger.Logger) (*Reloader, error) {
	if log == nil {
		log = logger.Default()
	}
	r := &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		log:      log,
		watcher:  confloader.NewWatcher(log, reloadSettle),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	r.watcher.Watch(certFile)
	r.watcher.Watch(keyFile)
	r.watcher.OnChange(func(path string) {
		if err := r.load(); err != nil {
			// Keep serving the previous pair; the other half of the
			// rotation usually follows.
			r.log.Warn("certificate reload failed", "file", path, "error", err)
		}
	})
	return r, nil
}

// Run follows the files until ctx ends.
func (r *Reloader) Run(ctx context.Context) error {
	return r.watcher.Run(ctx)
}

// GetCertificate fits tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.current.Load(), nil
}

// ServerTLSConfig presents whichever pair was loaded last.
func (r *Reloader) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: r.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

func (r *Reloader) load() error {
	pair, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("tlsroots: load key pair: %w", err)
	}
	r.current.Store(&pair)
	r.log.Info("server certificate loaded", "cert_file", r.certFile)
	return nil
}
