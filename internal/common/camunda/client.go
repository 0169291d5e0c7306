// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"infra-chatops/internal/common/config"
	apperrors "infra-chatops/internal/common/errors"
	"infra-chatops/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Client wraps the Zeebe gRPC client with connection retry and error mapping.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RetryConfig            *RetryConfig
}

// RetryConfig defines how often connecting to the gateway is attempted.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 10,
	BaseDelay:  2 * time.Second,
	MaxDelay:   30 * time.Second,
}

// NewClient connects to the gateway named in cfg, retrying transient failures.
func NewClient(ctx context.Context, cfg config.CamundaConfig, log logger.Logger) (*Client, error) {
	return NewClientWithConfig(ctx, &ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.RequestTimeout),
		RetryConfig:            DefaultRetryConfig,
	}, log)
}

func NewClientWithConfig(ctx context.Context, cfg *ClientConfig, log logger.Logger) (*Client, error) {
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = DefaultRetryConfig
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 10 * time.Second
	}

	c := &Client{config: cfg}
	err := retry(ctx, cfg.RetryConfig, log, "zeebe connect", func() error {
		zc, err := zbc.NewClient(&zbc.ClientConfig{
			GatewayAddress:         cfg.GatewayAddress,
			UsePlaintextConnection: cfg.UsePlaintextConnection,
		})
		if err != nil {
			return err
		}
		if err := c.ping(ctx, zc); err != nil {
			_ = zc.Close()
			return err
		}
		c.client = zc
		return nil
	})
	if err != nil {
		return nil, mapZeebeError(err, "connect")
	}
	return c, nil
}

func (c *Client) Zeebe() zbc.Client { return c.client }

func (c *Client) Close() error { return c.client.Close() }

// HealthCheck asks the gateway for its topology.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.ping(ctx, c.client); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}

func (c *Client) ping(ctx context.Context, zc zbc.Client) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()
	_, err := zc.NewTopologyCommand().Send(ctx)
	return err
}

// retry runs op with exponential backoff while the error looks transient.
func retry(ctx context.Context, rc *RetryConfig, log logger.Logger, name string, op func() error) error {
	var err error
	delay := rc.BaseDelay
	for attempt := 1; attempt <= rc.MaxRetries; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !isRetryableZeebeError(err) || attempt == rc.MaxRetries {
			break
		}
		log.Warn(name+" failed, retrying", map[string]interface{}{
			"error":       err.Error(),
			"attempt":     attempt,
			"maxRetries":  rc.MaxRetries,
			"nextRetryIn": delay.String(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled after %d attempts: %w", name, attempt, ctx.Err())
		}
		delay = min(delay*2, rc.MaxDelay)
	}
	return fmt.Errorf("%s failed: %w", name, err)
}

func isRetryableZeebeError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, phrase := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
	} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// mapZeebeError converts a gateway error into a StandardError.
func mapZeebeError(err error, operation string) error {
	lower := strings.ToLower(err.Error())
	wrapped := fmt.Errorf("zeebe operation '%s' failed: %w", operation, err)

	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return apperrors.NewTimeoutError("zeebe", wrapped)
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "unauthorized"):
		return apperrors.NewAccessDeniedError("", wrapped.Error())
	}
	return apperrors.NewExternalServiceError("zeebe", wrapped)
}
