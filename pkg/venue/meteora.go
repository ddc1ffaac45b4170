package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMeteoraURL is the Meteora DLMM API.
const DefaultMeteoraURL = "https://dlmm-api.meteora.ag"

// MeteoraAdapter quotes and builds swaps against Meteora DLMM pools.
type MeteoraAdapter struct {
	http    *http.Client
	baseURL string
	tokens  *TokenRegistry
}

// NewMeteora creates a Meteora adapter. See NewRaydium for timeout semantics.
func NewMeteora(baseURL string, timeout time.Duration, tokens *TokenRegistry) *MeteoraAdapter {
	if baseURL == "" {
		baseURL = DefaultMeteoraURL
	}
	return &MeteoraAdapter{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
	}
}

func (a *MeteoraAdapter) ID() ID { return Meteora }

type meteoraQuoteResponse struct {
	InAmount     string          `json:"in_amount"`
	OutAmount    string          `json:"out_amount"`
	MinOutAmount string          `json:"min_out_amount"`
	Error        string          `json:"error"`
	Route        json.RawMessage `json:"route"`
}

// Quote prices the swap via GET /swap/quote.
func (a *MeteoraAdapter) Quote(ctx context.Context, req QuoteRequest) Quote {
	in, err := a.tokens.Resolve(req.InputToken)
	if err != nil {
		return failedQuote(Meteora, err)
	}
	out, err := a.tokens.Resolve(req.OutputToken)
	if err != nil {
		return failedQuote(Meteora, err)
	}

	rawIn := req.Amount.Shift(in.Decimals).Truncate(0)
	url := fmt.Sprintf("%s/swap/quote?input_mint=%s&output_mint=%s&in_amount=%s&slippage_bps=%d",
		a.baseURL, in.Address, out.Address, rawIn.String(), req.SlippageBps)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failedQuote(Meteora, err)
	}
	resp, err := a.http.Do(httpReq)
	if err != nil {
		return failedQuote(Meteora, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return failedQuote(Meteora, fmt.Errorf("quote: http %d", resp.StatusCode))
	}

	var qr meteoraQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return failedQuote(Meteora, fmt.Errorf("quote: %w", err))
	}
	if qr.Error != "" {
		return failedQuote(Meteora, fmt.Errorf("quote: %s", qr.Error))
	}
	outRaw, err := decimal.NewFromString(qr.OutAmount)
	if err != nil {
		return failedQuote(Meteora, fmt.Errorf("quote out_amount: %w", err))
	}

	payload, err := json.Marshal(qr)
	if err != nil {
		return failedQuote(Meteora, err)
	}
	price := decimal.Zero
	if req.Amount.IsPositive() {
		price = outRaw.Shift(-out.Decimals).Div(req.Amount)
	}
	return Quote{Venue: Meteora, Price: price, OutAmount: outRaw, Payload: payload}
}

type meteoraSwapRequest struct {
	Quote      json.RawMessage `json:"quote"`
	UserPubkey string          `json:"user_pubkey"`
}

type meteoraSwapResponse struct {
	Tx    string `json:"tx"`
	Error string `json:"error"`
}

// BuildTransaction turns a Meteora quote into a serialized (base64)
// transaction via POST /swap/build.
func (a *MeteoraAdapter) BuildTransaction(ctx context.Context, q Quote, signerPubkey string) ([]byte, error) {
	if q.Venue != Meteora {
		return nil, fmt.Errorf("meteora: cannot build transaction for %s quote", q.Venue)
	}
	body, err := json.Marshal(meteoraSwapRequest{Quote: q.Payload, UserPubkey: signerPubkey})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/swap/build", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := a.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("meteora swap tx: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("meteora swap tx: http %d", resp.StatusCode)
	}

	var sr meteoraSwapResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("meteora swap tx: %w", err)
	}
	if sr.Error != "" || sr.Tx == "" {
		return nil, fmt.Errorf("meteora swap tx rejected: %s", sr.Error)
	}
	return []byte(sr.Tx), nil
}

var _ Adapter = (*MeteoraAdapter)(nil)
