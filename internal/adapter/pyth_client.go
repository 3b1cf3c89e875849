package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/portfolio-rebalancer/internal/logging"
	"github.com/portfolio-rebalancer/internal/storage"
)

// PythClient fetches USD token prices from the Pyth Hermes API, backed by a
// short-TTL Redis cache. A missing or failed price resolves to 0 rather than
// an error so one bad feed never fails a whole snapshot.
type PythClient struct {
	apiURL string
	client *http.Client
	cache  *storage.PriceCache
}

// NewPythClient creates a new Pyth price client
func NewPythClient(apiURL string, timeout time.Duration, cache *storage.PriceCache) *PythClient {
	return &PythClient{
		apiURL: apiURL,
		client: &http.Client{Timeout: timeout},
		cache:  cache,
	}
}

// hermesResponse mirrors the Hermes latest-price response
type hermesResponse struct {
	Parsed []struct {
		Price struct {
			Price string `json:"price"`
			Expo  int    `json:"expo"`
		} `json:"price"`
	} `json:"parsed"`
}

// GetPrice returns the current USD price for a token mint, or 0 when the
// mint has no known feed or the fetch fails
func (c *PythClient) GetPrice(ctx context.Context, mint string) float64 {
	logger := logging.FromContext(ctx)

	if c.cache != nil {
		if price, ok := c.cache.Get(ctx, mint); ok {
			return price
		}
	}

	feedID, ok := priceFeedForMint(mint)
	if !ok {
		logger.WithField("mint", mint).Debug("No price feed for token")
		return 0
	}

	price, err := c.fetchPrice(ctx, feedID)
	if err != nil {
		logger.WithError(err).WithField("mint", mint).Warn("Price fetch failed, pricing token at 0")
		return 0
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, mint, price); err != nil {
			logger.WithError(err).WithField("mint", mint).Debug("Failed to cache price")
		}
	}

	return price
}

func (c *PythClient) fetchPrice(ctx context.Context, feedID string) (float64, error) {
	endpoint := fmt.Sprintf("%s/updates/price/latest?%s", c.apiURL,
		url.Values{"ids[]": []string{feedID}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create price request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price request returned status %d", resp.StatusCode)
	}

	var hermes hermesResponse
	if err := json.Unmarshal(body, &hermes); err != nil {
		return 0, fmt.Errorf("failed to decode price response: %w", err)
	}
	if len(hermes.Parsed) == 0 {
		return 0, fmt.Errorf("empty price data")
	}

	var raw float64
	if _, err := fmt.Sscanf(hermes.Parsed[0].Price.Price, "%f", &raw); err != nil {
		return 0, fmt.Errorf("invalid price value: %w", err)
	}

	return raw * math.Pow10(hermes.Parsed[0].Price.Expo), nil
}

// GetPrices fetches prices for a batch of mints concurrently. Individual
// misses contribute 0; the batch itself never fails.
func (c *PythClient) GetPrices(ctx context.Context, mints []string) map[string]float64 {
	prices := make(map[string]float64, len(mints))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, mint := range mints {
		wg.Add(1)
		go func(mint string) {
			defer wg.Done()
			price := c.GetPrice(ctx, mint)
			mu.Lock()
			prices[mint] = price
			mu.Unlock()
		}(mint)
	}

	wg.Wait()
	return prices
}
