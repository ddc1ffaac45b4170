package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRaydiumURL is Raydium's public trade API.
const DefaultRaydiumURL = "https://transaction-v1.raydium.io"

// RaydiumAdapter quotes and builds swaps through the Raydium trade API.
type RaydiumAdapter struct {
	http    *http.Client
	baseURL string
	tokens  *TokenRegistry
}

// NewRaydium creates a Raydium adapter. timeout bounds each HTTP call;
// zero means no adapter-level timeout (a timeout surfaces as a normal
// quote failure, not an exception).
func NewRaydium(baseURL string, timeout time.Duration, tokens *TokenRegistry) *RaydiumAdapter {
	if baseURL == "" {
		baseURL = DefaultRaydiumURL
	}
	return &RaydiumAdapter{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
	}
}

func (a *RaydiumAdapter) ID() ID { return Raydium }

type raydiumEnvelope struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type raydiumQuoteData struct {
	InputMint    string `json:"inputMint"`
	InputAmount  string `json:"inputAmount"`
	OutputMint   string `json:"outputMint"`
	OutputAmount string `json:"outputAmount"`
}

// Quote prices the swap via GET /compute/swap-base-in.
func (a *RaydiumAdapter) Quote(ctx context.Context, req QuoteRequest) Quote {
	in, err := a.tokens.Resolve(req.InputToken)
	if err != nil {
		return failedQuote(Raydium, err)
	}
	out, err := a.tokens.Resolve(req.OutputToken)
	if err != nil {
		return failedQuote(Raydium, err)
	}

	rawIn := req.Amount.Shift(in.Decimals).Truncate(0)
	url := fmt.Sprintf("%s/compute/swap-base-in?inputMint=%s&outputMint=%s&amount=%s&slippageBps=%d&txVersion=V0",
		a.baseURL, in.Address, out.Address, rawIn.String(), req.SlippageBps)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failedQuote(Raydium, err)
	}
	resp, err := a.http.Do(httpReq)
	if err != nil {
		return failedQuote(Raydium, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return failedQuote(Raydium, fmt.Errorf("quote: http %d", resp.StatusCode))
	}

	var env raydiumEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return failedQuote(Raydium, fmt.Errorf("quote: %w", err))
	}
	if !env.Success {
		msg := env.Msg
		if msg == "" {
			msg = "quote rejected"
		}
		return failedQuote(Raydium, errors.New(msg))
	}

	var data raydiumQuoteData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return failedQuote(Raydium, fmt.Errorf("quote data: %w", err))
	}
	outRaw, err := decimal.NewFromString(data.OutputAmount)
	if err != nil {
		return failedQuote(Raydium, fmt.Errorf("quote outputAmount: %w", err))
	}

	price := decimal.Zero
	if req.Amount.IsPositive() {
		price = outRaw.Shift(-out.Decimals).Div(req.Amount)
	}
	return Quote{Venue: Raydium, Price: price, OutAmount: outRaw, Payload: env.Data}
}

type raydiumSwapRequest struct {
	SwapResponse json.RawMessage `json:"swapResponse"`
	TxVersion    string          `json:"txVersion"`
	Wallet       string          `json:"wallet"`
	WrapSol      bool            `json:"wrapSol"`
	UnwrapSol    bool            `json:"unwrapSol"`
}

type raydiumSwapData struct {
	Transaction string `json:"transaction"`
}

// BuildTransaction turns a Raydium quote into a serialized (base64)
// transaction via POST /transaction/swap-base-in.
func (a *RaydiumAdapter) BuildTransaction(ctx context.Context, q Quote, signerPubkey string) ([]byte, error) {
	if q.Venue != Raydium {
		return nil, fmt.Errorf("raydium: cannot build transaction for %s quote", q.Venue)
	}
	body, err := json.Marshal(raydiumSwapRequest{
		SwapResponse: q.Payload,
		TxVersion:    "V0",
		Wallet:       signerPubkey,
		WrapSol:      true,
		UnwrapSol:    true,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/transaction/swap-base-in", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := a.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("raydium swap tx: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("raydium swap tx: http %d", resp.StatusCode)
	}

	var env struct {
		Success bool              `json:"success"`
		Msg     string            `json:"msg"`
		Data    []raydiumSwapData `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("raydium swap tx: %w", err)
	}
	if !env.Success || len(env.Data) == 0 || env.Data[0].Transaction == "" {
		return nil, fmt.Errorf("raydium swap tx rejected: %s", env.Msg)
	}
	return []byte(env.Data[0].Transaction), nil
}

var _ Adapter = (*RaydiumAdapter)(nil)
