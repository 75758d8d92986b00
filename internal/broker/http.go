package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// HTTPConfig holds connection settings for the REST broker.
type HTTPConfig struct {
	BaseURL       string
	Token         string
	Currency      string
	RPS           float64
	Timeout       time.Duration
	SettleTimeout time.Duration
	PollInterval  time.Duration
}

// HTTPClient talks to the broker's REST endpoints.
type HTTPClient struct {
	cfg        HTTPConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient builds a client; zero values fall back to sane defaults.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), 1),
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type balanceResponse struct {
	Balance *struct {
		Balance  json.Number `json:"balance"`
		Currency string      `json:"currency"`
	} `json:"balance"`
	Error *apiError `json:"error"`
}

type buyParameters struct {
	Amount       string `json:"amount"`
	Basis        string `json:"basis"`
	ContractType string `json:"contract_type"`
	Currency     string `json:"currency"`
	Duration     int    `json:"duration"`
	DurationUnit string `json:"duration_unit"`
	Symbol       string `json:"symbol"`
}

type buyRequest struct {
	Buy        string        `json:"buy"`
	Price      string        `json:"price"`
	Parameters buyParameters `json:"parameters"`
}

type buyResponse struct {
	Buy *struct {
		ContractID json.Number `json:"contract_id"`
		BuyPrice   json.Number `json:"buy_price"`
		Payout     json.Number `json:"payout"`
	} `json:"buy"`
	Error *apiError `json:"error"`
}

type contractResponse struct {
	Contract *struct {
		ContractID json.Number `json:"contract_id"`
		IsSold     int         `json:"is_sold"`
		Profit     json.Number `json:"profit"`
		Status     string      `json:"status"`
	} `json:"proposal_open_contract"`
	Error *apiError `json:"error"`
}

// GetBalance fetches the account balance.
func (c *HTTPClient) GetBalance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	if err := c.do(ctx, http.MethodGet, "/balance", nil, &resp); err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	if resp.Error != nil {
		return 0, fmt.Errorf("get balance: %w: %s", ErrRejected, resp.Error.Message)
	}
	if resp.Balance == nil {
		return 0, fmt.Errorf("get balance: empty response")
	}
	bal, err := decimalOf(resp.Balance.Balance)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return bal.InexactFloat64(), nil
}

// PlaceTrade buys a contract with the stake as both price cap and amount.
func (c *HTTPClient) PlaceTrade(ctx context.Context, req Request) (Handle, error) {
	if req.DurationUnit == "" {
		req.DurationUnit = DurationTicks
	}
	stake := decimal.NewFromFloat(req.Stake).Round(2).StringFixed(2)
	body := buyRequest{
		Buy:   "1",
		Price: stake,
		Parameters: buyParameters{
			Amount:       stake,
			Basis:        "stake",
			ContractType: strings.ToUpper(string(req.Direction)),
			Currency:     c.cfg.Currency,
			Duration:     req.Duration,
			DurationUnit: req.DurationUnit,
			Symbol:       req.Symbol,
		},
	}

	var resp buyResponse
	if err := c.do(ctx, http.MethodPost, "/buy", body, &resp); err != nil {
		return Handle{}, fmt.Errorf("place %s: %w", req.Direction, err)
	}
	if resp.Error != nil {
		return Handle{}, fmt.Errorf("place %s: %w: %s", req.Direction, ErrRejected, resp.Error.Message)
	}
	if resp.Buy == nil || resp.Buy.ContractID == "" {
		return Handle{}, fmt.Errorf("place %s: response without contract id", req.Direction)
	}

	h := Handle{ContractID: resp.Buy.ContractID.String(), PlacedAt: time.Now()}
	if v, err := decimalOf(resp.Buy.BuyPrice); err == nil {
		h.BuyPrice = v.InexactFloat64()
	}
	if v, err := decimalOf(resp.Buy.Payout); err == nil {
		h.Payout = v.InexactFloat64()
	}
	return h, nil
}

// Settle polls the contract until the broker reports it sold or the settle timeout elapses.
func (c *HTTPClient) Settle(ctx context.Context, h Handle) (Settlement, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SettleTimeout)
	defer cancel()

	path := "/contract/" + url.PathEscape(h.ContractID)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		var resp contractResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Settlement{}, fmt.Errorf("settle %s: %w", h.ContractID, ErrSettleTimeout)
			}
			return Settlement{}, fmt.Errorf("settle %s: %w", h.ContractID, err)
		}
		if resp.Error != nil {
			return Settlement{}, fmt.Errorf("settle %s: %w: %s", h.ContractID, ErrRejected, resp.Error.Message)
		}
		if resp.Contract == nil {
			return Settlement{}, fmt.Errorf("settle %s: %w", h.ContractID, ErrUnknownContract)
		}
		if resp.Contract.IsSold == 1 {
			profit, err := decimalOf(resp.Contract.Profit)
			if err != nil {
				return Settlement{}, fmt.Errorf("settle %s: %w", h.ContractID, err)
			}
			return Settlement{
				ContractID: h.ContractID,
				Profit:     profit.Round(2).InexactFloat64(),
				SettledAt:  time.Now(),
			}, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Settlement{}, fmt.Errorf("settle %s: %w", h.ContractID, ErrSettleTimeout)
			}
			return Settlement{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// do performs a rate-limited JSON request and decodes the response into out.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		// Error payloads are still decoded so the broker message surfaces.
		if json.Unmarshal(raw, out) == nil && hasAPIError(out) {
			return nil
		}
		return fmt.Errorf("%s %s status %d: %s", method, path, res.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// wait blocks for a limiter token; unlike rate.Limiter.Wait it only fails with ctx.Err().
func (c *HTTPClient) wait(ctx context.Context) error {
	r := c.limiter.Reserve()
	d := r.Delay()
	if d == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

func hasAPIError(out any) bool {
	switch r := out.(type) {
	case *balanceResponse:
		return r.Error != nil
	case *buyResponse:
		return r.Error != nil
	case *contractResponse:
		return r.Error != nil
	}
	return false
}

func decimalOf(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, fmt.Errorf("missing amount")
	}
	return decimal.NewFromString(n.String())
}
