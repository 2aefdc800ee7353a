package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scanguard/pkg/common/logger"
)

// ConnectWithRetry attempts to establish a connection to Kafka with exponential backoff.
// It will retry failed connection attempts for up to 5 minutes, starting with 5 second intervals,
// and gives up early when ctx is cancelled.
func ConnectWithRetry(
	ctx context.Context,
	cfg *Config,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics PublisherMetrics,
) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 5 * time.Minute
	expBackoff.InitialInterval = 5 * time.Second

	var pub *Publisher
	operation := func() error {
		var err error
		pub, err = NewPublisherFromConfig(cfg, log, tracer, metrics)
		if err != nil {
			log.Warn(ctx, "kafka connection attempt failed", "brokers", cfg.Brokers, "error", err)
		}
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return pub, nil
}
