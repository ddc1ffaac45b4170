package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRaydiumQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/compute/swap-base-in", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "So11111111111111111111111111111111111111112", q.Get("inputMint"))
		require.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", q.Get("outputMint"))
		// 0.1 SOL in raw lamports
		require.Equal(t, "100000000", q.Get("amount"))
		require.Equal(t, "50", q.Get("slippageBps"))
		require.Equal(t, "V0", q.Get("txVersion"))

		json.NewEncoder(w).Encode(map[string]any{
			"id":      "req-1",
			"success": true,
			"data": map[string]any{
				"inputMint":    q.Get("inputMint"),
				"inputAmount":  q.Get("amount"),
				"outputMint":   q.Get("outputMint"),
				"outputAmount": "15000000", // 15 USDC raw
			},
		})
	}))
	defer srv.Close()

	a := NewRaydium(srv.URL, time.Second, DefaultTokens())
	quote := a.Quote(context.Background(), QuoteRequest{
		InputToken:  "SOL",
		OutputToken: "USDC",
		Amount:      decimal.NewFromFloat(0.1),
		SlippageBps: 50,
	})

	require.Empty(t, quote.Err)
	require.True(t, quote.Valid())
	require.Equal(t, Raydium, quote.Venue)
	require.True(t, quote.OutAmount.Equal(decimal.NewFromInt(15000000)))
	// 15 USDC for 0.1 SOL = 150 USDC/SOL
	require.True(t, quote.Price.Equal(decimal.NewFromInt(150)), "price %s", quote.Price)
	require.NotEmpty(t, quote.Payload)
}

func TestRaydiumQuoteRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "req-1",
			"success": false,
			"msg":     "insufficient liquidity",
		})
	}))
	defer srv.Close()

	a := NewRaydium(srv.URL, time.Second, DefaultTokens())
	quote := a.Quote(context.Background(), QuoteRequest{
		InputToken: "SOL", OutputToken: "USDC", Amount: decimal.NewFromInt(1), SlippageBps: 50,
	})

	require.False(t, quote.Valid())
	require.Equal(t, "insufficient liquidity", quote.Err)
	require.True(t, quote.Price.IsZero())
}

func TestRaydiumQuoteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewRaydium(srv.URL, time.Second, DefaultTokens())
	quote := a.Quote(context.Background(), QuoteRequest{
		InputToken: "SOL", OutputToken: "USDC", Amount: decimal.NewFromInt(1), SlippageBps: 50,
	})

	require.False(t, quote.Valid())
	require.Contains(t, quote.Err, "http 502")
}

func TestRaydiumQuoteTimeoutIsFailedQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	a := NewRaydium(srv.URL, 20*time.Millisecond, DefaultTokens())
	quote := a.Quote(context.Background(), QuoteRequest{
		InputToken: "SOL", OutputToken: "USDC", Amount: decimal.NewFromInt(1), SlippageBps: 50,
	})

	require.False(t, quote.Valid())
	require.NotEmpty(t, quote.Err, "timeout must surface as a failed quote, not a panic or error")
}

func TestRaydiumQuoteUnknownToken(t *testing.T) {
	a := NewRaydium("http://unused.invalid", time.Second, DefaultTokens())
	quote := a.Quote(context.Background(), QuoteRequest{
		InputToken: "DOGE", OutputToken: "USDC", Amount: decimal.NewFromInt(1),
	})
	require.False(t, quote.Valid())
	require.Contains(t, quote.Err, "unknown token")
}

func TestRaydiumBuildTransaction(t *testing.T) {
	payload := json.RawMessage(`{"inputMint":"x","outputAmount":"5"}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transaction/swap-base-in", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req raydiumSwapRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.JSONEq(t, string(payload), string(req.SwapResponse))
		require.Equal(t, "V0", req.TxVersion)
		require.Equal(t, "signer-pubkey", req.Wallet)

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    []map[string]string{{"transaction": "base64-tx-blob"}},
		})
	}))
	defer srv.Close()

	a := NewRaydium(srv.URL, time.Second, DefaultTokens())
	tx, err := a.BuildTransaction(context.Background(), Quote{Venue: Raydium, Payload: payload}, "signer-pubkey")
	require.NoError(t, err)
	require.Equal(t, []byte("base64-tx-blob"), tx)
}

func TestRaydiumBuildTransactionForeignQuote(t *testing.T) {
	a := NewRaydium("http://unused.invalid", time.Second, DefaultTokens())
	_, err := a.BuildTransaction(context.Background(), Quote{Venue: Meteora}, "signer")
	require.Error(t, err)
}

func TestRaydiumBuildTransactionRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "msg": "route expired"})
	}))
	defer srv.Close()

	a := NewRaydium(srv.URL, time.Second, DefaultTokens())
	_, err := a.BuildTransaction(context.Background(), Quote{Venue: Raydium, Payload: json.RawMessage(`{}`)}, "signer")
	require.ErrorContains(t, err, "route expired")
}
