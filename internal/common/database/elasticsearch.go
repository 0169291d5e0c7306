// internal/common/database/elasticsearch.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"infra-chatops/internal/common/config"
	apperrors "infra-chatops/internal/common/errors"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticsearchClient is the execution search index connection.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
	Index  string
}

func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &ElasticsearchClient{Client: es, Index: cfg.Index}, nil
}

// Ping reports the cluster unavailable when it cannot be reached or its
// health is red. Yellow is fine for a single node setup.
func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	res, err := c.Client.Cluster.Health(c.Client.Cluster.Health.WithContext(ctx))
	if err != nil {
		return apperrors.NewStoreUnavailableError("elasticsearch", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.NewStoreUnavailableError("elasticsearch", fmt.Errorf("cluster health: %s", res.Status()))
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return apperrors.NewStoreUnavailableError("elasticsearch", fmt.Errorf("decode cluster health: %w", err))
	}
	if health.Status == "red" {
		return apperrors.NewStoreUnavailableError("elasticsearch", fmt.Errorf("cluster health is red"))
	}
	return nil
}
