// internal/audit/elasticsearch.go
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	apperrors "eligibility-engine/internal/common/errors"
)

// ElasticsearchIndex stores one document per evaluation, keyed by record id.
type ElasticsearchIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchIndex(client *elasticsearch.Client, index string) *ElasticsearchIndex {
	return &ElasticsearchIndex{client: client, index: index}
}

func (e *ElasticsearchIndex) Name() string { return "elasticsearch" }

func (e *ElasticsearchIndex) Write(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return apperrors.NewIndexRequestFailedError(e.index, err)
	}

	res, err := e.client.Index(
		e.index,
		bytes.NewReader(body),
		e.client.Index.WithContext(ctx),
		e.client.Index.WithDocumentID(rec.ID),
	)
	if err != nil {
		return apperrors.NewIndexRequestFailedError(e.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return apperrors.NewIndexRequestFailedError(e.index, fmt.Errorf("status %s", res.Status()))
	}
	return nil
}
