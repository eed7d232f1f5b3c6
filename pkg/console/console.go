package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pixelvide/syncqueue/pkg/config"
	"github.com/pixelvide/syncqueue/pkg/driver"
	"github.com/pixelvide/syncqueue/pkg/queue"
	"github.com/pixelvide/syncqueue/pkg/telemetry"
	"github.com/rs/zerolog/log"
)

var globalRegistry = queue.NewRegistry()

// SetRegistry sets the handler registry used by queue:work
func SetRegistry(reg *queue.Registry) {
	globalRegistry = reg
}

// bootstrap loads configuration, configures logging and opens the store
func bootstrap(ctx context.Context) (*config.Config, queue.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := telemetry.SetGlobalLogger(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		log.Warn().Err(err).Str("level", cfg.Log.Level).Msg("Invalid log level, using info")
	}
	store, err := driver.Open(ctx, *cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
