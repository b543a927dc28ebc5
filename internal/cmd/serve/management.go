package serve

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/chirino/student-memory-service/internal/config"
)

// startManagementServer serves /health, /ready and /metrics on the
// management port so probes and scrapes stay off the tutor API. Plaintext is
// enabled when neither mode was asked for.
func startManagementServer(cfg config.ListenerConfig, handler http.Handler) (*RunningServers, error) {
	if !cfg.EnablePlainText && !cfg.EnableTLS {
		cfg.EnablePlainText = true
	}
	rs, err := startListener("management", cfg, handler)
	if err != nil {
		return nil, err
	}
	log.Info("Management server listening", "addr", rs.Addr)
	return rs, nil
}
