// Package adapter provides clients for the external collaborators: the
// Solana RPC node (balances, transaction status), the Pyth price service,
// and the Jupiter quote service.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/portfolio-rebalancer/internal/models"
	"github.com/portfolio-rebalancer/internal/types"
)

// SPL token program that owns fungible token accounts
const tokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// WrappedSOLMint is the mint the native SOL balance is reported under
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

const lamportsPerSOL = 1_000_000_000

// base58Alphabet is the Bitcoin base58 alphabet used by Solana addresses
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// SolanaClient talks JSON-RPC to a Solana node. It serves two collaborator
// roles: balance source and transaction-status checker.
type SolanaClient struct {
	rpcURL    string
	client    *http.Client
	requestID atomic.Int64
}

// NewSolanaClient creates a new Solana RPC client
func NewSolanaClient(rpcURL string, timeout time.Duration) *SolanaClient {
	return &SolanaClient{
		rpcURL: rpcURL,
		client: &http.Client{Timeout: timeout},
	}
}

// rpcRequest is the JSON-RPC 2.0 request envelope
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *SolanaClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal RPC request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create RPC request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("RPC call %s failed: %w", method, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read RPC response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("RPC call %s returned status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("failed to decode RPC response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("RPC call %s failed: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}

	return nil
}

// ValidatePublicKey checks that a string is a plausible Solana public key:
// base58 alphabet, 32-44 characters. Full curve validation happens on-chain;
// this guards against obviously malformed input before any RPC round trip.
func ValidatePublicKey(publicKey string) bool {
	if len(publicKey) < 32 || len(publicKey) > 44 {
		return false
	}
	for _, r := range publicKey {
		valid := false
		for _, a := range base58Alphabet {
			if r == a {
				valid = true
				break
			}
		}
		if !valid {
			return false
		}
	}
	return true
}

// tokenAccountsResult mirrors the jsonParsed getTokenAccountsByOwner response
type tokenAccountsResult struct {
	Value []struct {
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						Mint        string `json:"mint"`
						TokenAmount struct {
							UIAmount float64 `json:"uiAmount"`
							Decimals uint8   `json:"decimals"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

type balanceResult struct {
	Value uint64 `json:"value"`
}

// GetTokenHoldings returns all fungible token balances for a wallet,
// including the native SOL balance reported under the wrapped SOL mint.
// Holdings with zero balance are dropped.
func (c *SolanaClient) GetTokenHoldings(ctx context.Context, publicKey string) ([]models.TokenHolding, error) {
	var accounts tokenAccountsResult
	err := c.call(ctx, "getTokenAccountsByOwner", []interface{}{
		publicKey,
		map[string]string{"programId": tokenProgramID},
		map[string]string{"encoding": "jsonParsed"},
	}, &accounts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token accounts: %w", err)
	}

	var holdings []models.TokenHolding
	for _, acct := range accounts.Value {
		info := acct.Account.Data.Parsed.Info
		if info.TokenAmount.UIAmount <= 0 {
			continue
		}
		holdings = append(holdings, models.TokenHolding{
			Mint:     info.Mint,
			Symbol:   SymbolForMint(info.Mint),
			Balance:  info.TokenAmount.UIAmount,
			Decimals: info.TokenAmount.Decimals,
		})
	}

	var balance balanceResult
	if err := c.call(ctx, "getBalance", []interface{}{publicKey}, &balance); err != nil {
		return nil, fmt.Errorf("failed to fetch SOL balance: %w", err)
	}
	if balance.Value > 0 {
		holdings = append(holdings, models.TokenHolding{
			Mint:     WrappedSOLMint,
			Symbol:   SymbolForMint(WrappedSOLMint),
			Balance:  float64(balance.Value) / lamportsPerSOL,
			Decimals: 9,
		})
	}

	return holdings, nil
}

// signatureStatusesResult mirrors the getSignatureStatuses response
type signatureStatusesResult struct {
	Value []*struct {
		ConfirmationStatus string `json:"confirmationStatus"`
	} `json:"value"`
}

// GetSignatureStatus returns the confirmation status of a transaction
// signature. Signatures the cluster does not know return unknown rather
// than an error.
func (c *SolanaClient) GetSignatureStatus(ctx context.Context, signature string) (types.ConfirmationStatus, error) {
	var statuses signatureStatusesResult
	err := c.call(ctx, "getSignatureStatuses", []interface{}{
		[]string{signature},
		map[string]bool{"searchTransactionHistory": true},
	}, &statuses)
	if err != nil {
		return types.ConfirmationUnknown, err
	}

	if len(statuses.Value) == 0 || statuses.Value[0] == nil {
		return types.ConfirmationUnknown, nil
	}

	switch statuses.Value[0].ConfirmationStatus {
	case "confirmed":
		return types.ConfirmationConfirmed, nil
	case "finalized":
		return types.ConfirmationFinalized, nil
	case "processed":
		return types.ConfirmationPending, nil
	default:
		return types.ConfirmationUnknown, nil
	}
}
