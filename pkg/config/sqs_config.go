package config

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSConfig holds configuration for the SQS forwarding handler
type SQSConfig struct {
	Region   string `env:"REGION" envDefault:"us-east-1"`
	QueueUrl string `env:"QUEUE_URL"`
	Profile  string `env:"PROFILE"` // Optional AWS profile
}

// Enabled reports whether a queue URL is configured
func (c SQSConfig) Enabled() bool {
	return c.QueueUrl != ""
}

// LoadSQSClient loads an SQS client from config
func LoadSQSClient(ctx context.Context, cfg SQSConfig) (*sqs.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return sqs.NewFromConfig(awsCfg), nil
}
