package client

import (
	"context"
	"net/http"

	"github.com/fjod/go_cart/cartsync/internal/circuitbreaker"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/wire"
	"github.com/sony/gobreaker/v2"
)

// InventoryClient asks the inventory endpoint for stock in one batched request
type InventoryClient struct {
	url     string
	hc      *http.Client
	breaker *gobreaker.CircuitBreaker[[]domain.StockLevel]
}

func NewInventoryClient(baseURL string, hc *http.Client, cb circuitbreaker.Config) *InventoryClient {
	if cb.Name == "" {
		cb.Name = "inventory"
	}
	cb.IsSuccessful = breakerSuccess
	return &InventoryClient{
		url:     joinURL(baseURL, wire.AvailabilityPath),
		hc:      hc,
		breaker: circuitbreaker.New[[]domain.StockLevel](cb),
	}
}

func (c *InventoryClient) FetchAvailability(ctx context.Context, subjects []domain.Subject) ([]domain.StockLevel, error) {
	return c.breaker.Execute(func() ([]domain.StockLevel, error) {
		var resp wire.AvailabilityResponse
		if err := postJSON(ctx, c.hc, c.url, wire.FromSubjects(subjects), &resp); err != nil {
			return nil, err
		}
		levels := make([]domain.StockLevel, 0, len(resp.Records))
		for _, r := range resp.Records {
			levels = append(levels, r.Domain())
		}
		return levels, nil
	})
}
