package shell

import (
	"github.com/friedman-econ/friedman/internal/config"
	"github.com/friedman-econ/friedman/internal/engine"
	"github.com/friedman-econ/friedman/internal/history"
	"github.com/friedman-econ/friedman/internal/logging"
	"github.com/friedman-econ/friedman/internal/progress"
)

// NewFromConfig wires a Service from configuration. A journal that cannot be
// opened is logged and disabled rather than failing startup.
func NewFromConfig(cfg *config.Config, log *logging.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}

	var store *history.Store
	if cfg.HistoryDir != "" {
		var err error
		store, err = history.NewStore(cfg.HistoryDir)
		if err != nil {
			log.Warn("failed to initialize history store", map[string]any{
				"dir":   cfg.HistoryDir,
				"error": err.Error(),
			})
			store = nil
		}
	}

	return New(Options{
		Resolver: engine.NewResolver(cfg.ResolverConfig()),
		Runner:   cfg.Runner(),
		Hub:      progress.NewHub(cfg.Engine.StreamBuffer),
		History:  store,
		Logger:   log.With("shell"),
	})
}
