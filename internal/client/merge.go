package client

import (
	"context"
	"net/http"

	"github.com/fjod/go_cart/cartsync/internal/circuitbreaker"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/wire"
	"github.com/sony/gobreaker/v2"
)

// CartClient calls the cart-merge endpoint
type CartClient struct {
	url     string
	hc      *http.Client
	breaker *gobreaker.CircuitBreaker[[]domain.MergedLine]
}

func NewCartClient(baseURL string, hc *http.Client, cb circuitbreaker.Config) *CartClient {
	if cb.Name == "" {
		cb.Name = "cart-merge"
	}
	cb.IsSuccessful = breakerSuccess
	return &CartClient{
		url:     joinURL(baseURL, wire.MergePath),
		hc:      hc,
		breaker: circuitbreaker.New[[]domain.MergedLine](cb),
	}
}

func (c *CartClient) MergeCart(ctx context.Context, req domain.MergeRequest) ([]domain.MergedLine, error) {
	return c.breaker.Execute(func() ([]domain.MergedLine, error) {
		var resp wire.MergeResponse
		if err := postJSON(ctx, c.hc, c.url, wire.FromMergeRequest(req), &resp); err != nil {
			return nil, err
		}
		return resp.Domain(), nil
	})
}
