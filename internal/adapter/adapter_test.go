package adapter

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestValidatePublicKey(t *testing.T) {
	cases := []struct {
		key   string
		valid bool
	}{
		{"7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU", true},
		{WrappedSOLMint, true},
		{"", false},
		{"tooshort", false},
		{"0x52908400098527886E0F7030069857D2E4169EE7", false}, // contains 0
		{"IIIIIIIIIIIIIIIIIIIIIIIIIIIIIIII", false},           // I not in base58
		{"7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU7xKX", false}, // too long
	}
	for _, c := range cases {
		if got := ValidatePublicKey(c.key); got != c.valid {
			t.Errorf("ValidatePublicKey(%q) = %v, want %v", c.key, got, c.valid)
		}
	}
}

func TestSymbolForMint(t *testing.T) {
	if got := SymbolForMint(WrappedSOLMint); got != "SOL" {
		t.Errorf("expected SOL, got %s", got)
	}
	// Unknown mints fall back to a truncated mint
	unknown := "UnknownMint1111111111111111111111111111111"
	if got := SymbolForMint(unknown); got != unknown[:8] {
		t.Errorf("expected %s, got %s", unknown[:8], got)
	}
}

func TestSolanaGetTokenHoldings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			ID     int64  `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req) // nolint:errcheck

		switch req.Method {
		case "getTokenAccountsByOwner":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":{"value":[
				{"account":{"data":{"parsed":{"info":{"mint":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","tokenAmount":{"uiAmount":250.5,"decimals":6}}}}}},
				{"account":{"data":{"parsed":{"info":{"mint":"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB","tokenAmount":{"uiAmount":0,"decimals":6}}}}}}
			]}}`)) // nolint:errcheck
		case "getBalance":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":{"value":2500000000}}`)) // nolint:errcheck
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	client := NewSolanaClient(srv.URL, 5*time.Second)
	holdings, err := client.GetTokenHoldings(context.Background(), "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Zero-balance USDT dropped; USDC plus native SOL remain
	if len(holdings) != 2 {
		t.Fatalf("expected 2 holdings, got %d", len(holdings))
	}
	if holdings[0].Symbol != "USDC" || holdings[0].Balance != 250.5 {
		t.Errorf("unexpected first holding: %+v", holdings[0])
	}
	if holdings[1].Mint != WrappedSOLMint || holdings[1].Balance != 2.5 {
		t.Errorf("expected 2.5 native SOL, got %+v", holdings[1])
	}
}

func TestSolanaGetSignatureStatus(t *testing.T) {
	responses := map[string]string{
		"sig-confirmed": `{"jsonrpc":"2.0","result":{"value":[{"confirmationStatus":"confirmed"}]}}`,
		"sig-finalized": `{"jsonrpc":"2.0","result":{"value":[{"confirmationStatus":"finalized"}]}}`,
		"sig-processed": `{"jsonrpc":"2.0","result":{"value":[{"confirmationStatus":"processed"}]}}`,
		"sig-unknown":   `{"jsonrpc":"2.0","result":{"value":[null]}}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params []json.RawMessage `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req) // nolint:errcheck
		var sigs []string
		_ = json.Unmarshal(req.Params[0], &sigs)          // nolint:errcheck
		_, _ = w.Write([]byte(responses[sigs[0]]))        // nolint:errcheck
	}))
	defer srv.Close()

	client := NewSolanaClient(srv.URL, 5*time.Second)
	ctx := context.Background()

	cases := map[string]struct {
		success bool
	}{
		"sig-confirmed": {true},
		"sig-finalized": {true},
		"sig-processed": {false},
		"sig-unknown":   {false},
	}
	for sig, want := range cases {
		status, err := client.GetSignatureStatus(ctx, sig)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", sig, err)
		}
		if status.Success() != want.success {
			t.Errorf("%s: Success() = %v, want %v (status %s)", sig, status.Success(), want.success, status)
		}
	}
}

func TestPythGetPriceParsesExponent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"parsed":[{"price":{"price":"14257000000","expo":-8}}]}`)) // nolint:errcheck
	}))
	defer srv.Close()

	client := NewPythClient(srv.URL, 5*time.Second, nil)
	price := client.GetPrice(context.Background(), WrappedSOLMint)

	if math.Abs(price-142.57) > 1e-9 {
		t.Errorf("expected 142.57, got %v", price)
	}
}

func TestPythGetPriceFailureResolvesToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewPythClient(srv.URL, 5*time.Second, nil)
	if price := client.GetPrice(context.Background(), WrappedSOLMint); price != 0 {
		t.Errorf("failed fetch must price at 0, got %v", price)
	}
}

func TestPythGetPriceUnknownMintIsZero(t *testing.T) {
	client := NewPythClient("http://unused.invalid", 5*time.Second, nil)
	if price := client.GetPrice(context.Background(), "NoSuchMint111111111111111111111111111111111"); price != 0 {
		t.Errorf("mint without a feed must price at 0, got %v", price)
	}
}

func TestJupiterGetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("slippageBps"); got != "50" {
			t.Errorf("expected slippageBps 50, got %s", got)
		}
		_, _ = w.Write([]byte(`{"inputMint":"in","outputMint":"out","inAmount":"2000000000","outAmount":"199400000","priceImpactPct":"0.25"}`)) // nolint:errcheck
	}))
	defer srv.Close()

	client := NewJupiterClient(srv.URL, 50, 5*time.Second, 100)
	quote, err := client.GetQuote(context.Background(), "in", "out", 2000000000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.InAmount != 2000000000 || quote.OutAmount != 199400000 {
		t.Errorf("unexpected amounts: %+v", quote)
	}
	if quote.PriceImpactPct != 0.25 {
		t.Errorf("expected impact 0.25, got %v", quote.PriceImpactPct)
	}
	if len(quote.Raw) == 0 {
		t.Error("raw payload must be retained for execution")
	}
}

func TestJupiterGetQuoteNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"No routes found"}`)) // nolint:errcheck
	}))
	defer srv.Close()

	client := NewJupiterClient(srv.URL, 50, 5*time.Second, 100)
	quote, err := client.GetQuote(context.Background(), "in", "out", 1000)
	if err != nil {
		t.Fatalf("no route must not be an error: %v", err)
	}
	if quote != nil {
		t.Error("expected nil quote for no route")
	}
}

func TestJupiterBuildSwapInstructions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("invalid request body: %v", err)
		}
		if req["userPublicKey"] != "wallet-1" {
			t.Errorf("expected userPublicKey wallet-1, got %v", req["userPublicKey"])
		}
		if _, ok := req["quoteResponse"]; !ok {
			t.Error("expected quoteResponse in payload")
		}
		_, _ = w.Write([]byte(`{"swapInstruction":{"programId":"JUP6"}}`)) // nolint:errcheck
	}))
	defer srv.Close()

	client := NewJupiterClient(srv.URL, 50, 5*time.Second, 100)
	instructions, err := client.BuildSwapInstructions(context.Background(), []byte(`{"inAmount":"1"}`), "wallet-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(instructions) == 0 {
		t.Error("expected instruction payload")
	}
}
