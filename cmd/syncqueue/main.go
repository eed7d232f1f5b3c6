package main

import (
	"context"
	"fmt"

	"github.com/pixelvide/syncqueue/pkg/console"
	"github.com/pixelvide/syncqueue/pkg/queue"
	"github.com/pixelvide/syncqueue/pkg/root"
	"github.com/pixelvide/syncqueue/pkg/telemetry"
)

// HealthSample is the payload of a data_upload operation
type HealthSample struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
}

// UploadHandler is a sample data_upload handler
func UploadHandler(ctx context.Context, op *queue.Operation) error {
	logger := telemetry.LoggerFromContext(ctx)

	var sample HealthSample
	if err := op.Payload.Decode(&sample); err != nil {
		return err
	}
	if sample.Metric == "" {
		return fmt.Errorf("%w: metric is required", queue.ErrInvalidPayload)
	}

	logger.Info().
		Str("metric", sample.Metric).
		Float64("value", sample.Value).
		Str("unit", sample.Unit).
		Msg("Uploading sample")
	return nil
}

// ProfileHandler is a sample profile_update handler
func ProfileHandler(ctx context.Context, op *queue.Operation) error {
	var fields map[string]any
	if err := op.Payload.Decode(&fields); err != nil {
		return err
	}
	telemetry.LoggerFromContext(ctx).Info().
		Int("fields", len(fields)).
		Msg("Updating profile")
	return nil
}

func main() {
	// 1. Register Handlers
	registry := queue.NewRegistry()
	registry.RegisterFunc(queue.TypeDataUpload, UploadHandler)
	registry.RegisterFunc(queue.TypeProfileUpdate, ProfileHandler)
	console.SetRegistry(registry)

	// 2. Execute Root Command
	root.Execute()
}
