package stores

import (
	"context"
	"net/http"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
)

type CatalogClient struct {
	rest *restClient
}

func NewCatalogClient(cfg ClientConfig) (*CatalogClient, error) {
	rest, err := newRESTClient(cfg)
	if err != nil {
		return nil, err
	}
	return &CatalogClient{rest: rest}, nil
}

func (c *CatalogClient) ListItems(ctx context.Context) ([]model.CatalogItem, error) {
	var out []model.CatalogItem
	if _, err := c.rest.do(ctx, "catalog.list", http.MethodGet, "/medicines", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
