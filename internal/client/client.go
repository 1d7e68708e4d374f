// Package client talks to the escrow desk HTTP API on behalf of an operator.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"escrowdesk/internal/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status        int
	Message       string
	Field         string
	CurrentStatus string
}

func (e *APIError) Error() string {
	if e.CurrentStatus != "" {
		return fmt.Sprintf("%d: %s (current status %s)", e.Status, e.Message, e.CurrentStatus)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

type envelope struct {
	Success       bool            `json:"success"`
	Data          json.RawMessage `json:"data"`
	Message       string          `json:"message"`
	Field         string          `json:"field"`
	CurrentStatus string          `json:"current_status"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type Deal struct {
	models.Deal
	RemainingSeconds int64 `json:"remaining_seconds"`
}

type ListingPage struct {
	Listings   []models.Listing `json:"data"`
	Total      int64            `json:"total"`
	BuyOrders  int64            `json:"buy_orders"`
	SellOrders int64            `json:"sell_orders"`
}

type ListingQuery struct {
	Side          string
	PaymentMethod string
	Status        string
	Limit         int
}

type OpenDealRequest struct {
	ListingID  int64           `json:"listing_id"`
	BuyerID    string          `json:"buyer_id"`
	SellerID   string          `json:"seller_id"`
	USDTAmount decimal.Decimal `json:"usdt_amount"`
}

// Login returns a bearer token for the operator.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *Client) Listings(ctx context.Context, q ListingQuery) (ListingPage, error) {
	values := url.Values{}
	if q.Side != "" {
		values.Set("type", q.Side)
	}
	if q.PaymentMethod != "" {
		values.Set("payment_method", q.PaymentMethod)
	}
	if q.Status != "" {
		values.Set("status", q.Status)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/listings"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}

	// The listings reply carries its counters next to data, so it is read whole.
	raw, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return ListingPage{}, err
	}
	var page ListingPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return ListingPage{}, errors.Wrap(err, "decode listings")
	}
	return page, nil
}

func (c *Client) Deal(ctx context.Context, code string) (Deal, error) {
	var deal Deal
	err := c.do(ctx, http.MethodGet, "/deals/"+url.PathEscape(code), nil, &deal)
	return deal, err
}

func (c *Client) OpenDeal(ctx context.Context, req OpenDealRequest) (Deal, error) {
	var deal Deal
	err := c.do(ctx, http.MethodPost, "/deals", req, &deal)
	return deal, err
}

// Transition posts one of the deal action endpoints, e.g. "release".
func (c *Client) Transition(ctx context.Context, code, endpoint string) (Deal, error) {
	var deal Deal
	err := c.do(ctx, http.MethodPost, "/deals/"+url.PathEscape(code)+"/"+endpoint, nil, &deal)
	return deal, err
}

func (c *Client) Resolve(ctx context.Context, code, outcome string) (Deal, error) {
	var deal Deal
	body := map[string]string{"outcome": outcome}
	err := c.do(ctx, http.MethodPost, "/deals/"+url.PathEscape(code)+"/resolve", body, &deal)
	return deal, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.Wrap(err, "decode response")
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(env.Data, out), "decode data")
}

func (c *Client) send(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		if env.Message == "" {
			env.Message = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{
			Status:        resp.StatusCode,
			Message:       env.Message,
			Field:         env.Field,
			CurrentStatus: env.CurrentStatus,
		}
	}
	return raw, nil
}
