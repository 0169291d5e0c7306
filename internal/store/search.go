package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"infra-chatops/internal/workflow"

	"github.com/elastic/go-elasticsearch/v8"
)

// searchDocument is the indexed shape of a report. Step outputs are left out
// because their fields differ per tool and would bloat the mapping.
type searchDocument struct {
	InstanceID   string            `json:"instance_id"`
	Workflow     string            `json:"workflow"`
	Intent       string            `json:"intent"`
	Status       string            `json:"status"`
	Reason       string            `json:"reason,omitempty"`
	FailedStep   string            `json:"failed_step,omitempty"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	FinalMessage string            `json:"final_message"`
	Parameters   map[string]string `json:"parameters"`
	Steps        []searchStep      `json:"steps"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	DurationMs   int64             `json:"duration_ms"`
}

type searchStep struct {
	Position  int    `json:"position"`
	Step      string `json:"step"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// SearchIndexer indexes terminal reports into Elasticsearch so operators can
// search past runs by service, environment or failure.
type SearchIndexer struct {
	client *elasticsearch.Client
	index  string
}

func NewSearchIndexer(client *elasticsearch.Client, index string) *SearchIndexer {
	return &SearchIndexer{client: client, index: index}
}

// indexMapping keeps the filterable fields exact so status:failed or
// workflow:deploy_workflow match whole values.
const indexMapping = `{
  "mappings": {
    "properties": {
      "instance_id":   {"type": "keyword"},
      "workflow":      {"type": "keyword"},
      "intent":        {"type": "keyword"},
      "status":        {"type": "keyword"},
      "failed_step":   {"type": "keyword"},
      "error_kind":    {"type": "keyword"},
      "final_message": {"type": "text"},
      "parameters":    {"type": "flattened"},
      "steps":         {"type": "nested"},
      "started_at":    {"type": "date"},
      "finished_at":   {"type": "date"},
      "duration_ms":   {"type": "long"}
    }
  }
}`

// EnsureIndex creates the index with its mapping unless it already exists.
func (s *SearchIndexer) EnsureIndex(ctx context.Context) error {
	exists, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", s.index, err)
	}
	exists.Body.Close()
	if exists.StatusCode == 200 {
		return nil
	}

	res, err := s.client.Indices.Create(s.index,
		s.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", s.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("create index %s: %s: %s", s.index, res.Status(), msg)
	}
	return nil
}

func (s *SearchIndexer) Archive(ctx context.Context, r *workflow.Report) error {
	doc := searchDocument{
		InstanceID:   r.InstanceID,
		Workflow:     r.Workflow,
		Intent:       r.Intent,
		Status:       string(r.Status),
		Reason:       r.Reason,
		FailedStep:   r.FailedStep,
		ErrorKind:    string(r.ErrorKind),
		FinalMessage: r.FinalMessage,
		Parameters:   r.Parameters,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		DurationMs:   r.Duration().Milliseconds(),
	}
	for _, e := range r.Ledger {
		st := searchStep{Position: e.Index, Step: e.Step, Type: string(e.Type), Status: string(e.Status)}
		if e.Error != nil {
			st.ErrorKind = string(e.Error.Kind)
		}
		doc.Steps = append(doc.Steps, st)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode search document: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithDocumentID(r.InstanceID),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index report %s: %w", r.InstanceID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("index report %s: %s: %s", r.InstanceID, res.Status(), msg)
	}
	return nil
}

// Search runs a simple query string search and returns matching instance ids,
// newest first.
func (s *SearchIndexer) Search(ctx context.Context, query string, size int) ([]string, error) {
	if size <= 0 {
		size = 20
	}
	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"simple_query_string": map[string]interface{}{
				"query":            query,
				"default_operator": "and",
			},
		},
		"sort":    []interface{}{map[string]interface{}{"started_at": "desc"}},
		"_source": []string{"instance_id"},
	})
	if err != nil {
		return nil, err
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
		s.client.Search.WithSize(size),
	)
	if err != nil {
		return nil, fmt.Errorf("search reports: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("search reports: %s: %s", res.Status(), msg)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	ids := make([]string, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}
