package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Quote is the exchange quote returned by the Jupiter API. Raw holds the
// full response payload; it is stored opaquely with the plan and re-submitted
// verbatim when building swap instructions at execution time.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	PriceImpactPct float64
	Raw            json.RawMessage
}

// quoteResponse mirrors the wire shape of the quote endpoint
type quoteResponse struct {
	InputMint      string      `json:"inputMint"`
	OutputMint     string      `json:"outputMint"`
	InAmount       string      `json:"inAmount"`
	OutAmount      string      `json:"outAmount"`
	PriceImpactPct json.Number `json:"priceImpactPct"`
}

// JupiterClient fetches swap quotes and builds unsigned swap instructions.
// Quote calls are rate limited; the quote API throttles aggressively and a
// plan can require many pairwise quotes.
type JupiterClient struct {
	apiURL      string
	slippageBps int
	client      *http.Client
	limiter     *rate.Limiter
}

// NewJupiterClient creates a new Jupiter quote client
func NewJupiterClient(apiURL string, slippageBps int, timeout time.Duration, quotesPerSecond int) *JupiterClient {
	return &JupiterClient{
		apiURL:      apiURL,
		slippageBps: slippageBps,
		client:      &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(quotesPerSecond), quotesPerSecond),
	}
}

// GetQuote returns an executable quote for swapping amount base units of
// inputMint into outputMint, or nil when no route exists. Callers treat any
// error the same as no route; a failed quote skips the pair, it never aborts
// a plan.
func (c *JupiterClient) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64) (*Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("quote rate limit wait: %w", err)
	}

	params := url.Values{
		"inputMint":   []string{inputMint},
		"outputMint":  []string{outputMint},
		"amount":      []string{strconv.FormatUint(amount, 10)},
		"slippageBps": []string{strconv.Itoa(c.slippageBps)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/quote?%s", c.apiURL, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create quote request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read quote response: %w", err)
	}

	// The quote API answers 400 with an error body when no route exists
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote request returned status %d", resp.StatusCode)
	}

	var wire quoteResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}

	inAmount, err := strconv.ParseUint(wire.InAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid inAmount in quote: %w", err)
	}
	outAmount, err := strconv.ParseUint(wire.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid outAmount in quote: %w", err)
	}

	// The quoter-reported impact is authoritative; absent impact records as 0
	impact, _ := wire.PriceImpactPct.Float64() // nolint:errcheck

	return &Quote{
		InputMint:      wire.InputMint,
		OutputMint:     wire.OutputMint,
		InAmount:       inAmount,
		OutAmount:      outAmount,
		PriceImpactPct: impact,
		Raw:            json.RawMessage(body),
	}, nil
}

// BuildSwapInstructions re-submits a stored quote payload to obtain a fresh
// unsigned instruction set for the user to sign
func (c *JupiterClient) BuildSwapInstructions(ctx context.Context, quotePayload []byte, userPublicKey string) (json.RawMessage, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"quoteResponse":                 json.RawMessage(quotePayload),
		"userPublicKey":                 userPublicKey,
		"wrapAndUnwrapSol":              true,
		"computeUnitPriceMicroLamports": "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal instruction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/swap-instructions", c.apiURL), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create instruction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("instruction request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read instruction response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instruction request returned status %d: %s", resp.StatusCode, string(body))
	}

	return json.RawMessage(body), nil
}
