package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/order-pipeline/internal/cache"
	"github.com/example/order-pipeline/internal/domain"
	"github.com/example/order-pipeline/internal/models"
	"go.uber.org/zap"
)

const recvWindow = "5000"

// Client talks to a Binance-compatible spot REST API.
type Client struct {
	baseURL string
	http    *http.Client
	rules   *cache.Cache
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewClient builds a venue client. rules may be nil to disable caching.
func NewClient(baseURL string, timeout time.Duration, rules *cache.Cache, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		rules:   rules,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// TradingRules returns the symbol's rules, from cache when possible.
func (c *Client) TradingRules(ctx context.Context, symbol string) (SymbolRules, error) {
	key := cache.RulesKey(symbol)
	if c.rules != nil {
		if v, ok := c.rules.Get(key); ok {
			return v.(SymbolRules), nil
		}
	}

	q := url.Values{"symbol": {symbol}}
	body, status, err := c.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", q.Encode(), "")
	if err != nil {
		return SymbolRules{}, err
	}
	if status != http.StatusOK {
		ae := decodeError(body)
		if ae.Code == codeInvalidSymbol || ae.Code == codeBadSymbol {
			return SymbolRules{}, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, symbol)
		}
		return SymbolRules{}, fmt.Errorf("%w: exchangeInfo status %d code %d: %s", domain.ErrAdapter, status, ae.Code, ae.Msg)
	}

	var info exchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return SymbolRules{}, fmt.Errorf("%w: decode exchangeInfo: %v", domain.ErrAdapter, err)
	}
	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			if c.rules != nil {
				c.rules.Set(key, s)
			}
			return s, nil
		}
	}
	return SymbolRules{}, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, symbol)
}

// SubmitOrder places a signed order and returns the venue's immediate result.
func (c *Client) SubmitOrder(ctx context.Context, creds models.Credentials, p OrderParams) (OrderResult, error) {
	q := url.Values{}
	q.Set("symbol", p.Symbol)
	if p.ClientOrderID != "" {
		q.Set("newClientOrderId", p.ClientOrderID)
	}
	q.Set("side", p.Side)
	q.Set("type", p.Type)
	q.Set("quantity", p.Quantity.String())
	if p.Type == "LIMIT" {
		q.Set("price", p.Price.String())
		q.Set("timeInForce", p.TimeInForce)
	}
	q.Set("newOrderRespType", "FULL")
	q.Set("recvWindow", recvWindow)
	q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	payload := q.Encode()
	signed := payload + "&signature=" + Sign(creds.SecretKey, payload)

	body, status, err := c.do(ctx, http.MethodPost, "/api/v3/order", signed, creds.APIKey)
	if err != nil {
		return OrderResult{}, err
	}
	if status != http.StatusOK {
		ae := decodeError(body)
		if ae.Code == codeFilterFailure && c.rules != nil {
			c.rules.Del(cache.RulesKey(p.Symbol))
		}
		return OrderResult{}, fmt.Errorf("%w: order status %d code %d: %s", domain.ErrAdapter, status, ae.Code, ae.Msg)
	}

	return decodeOrder(body)
}

// QueryOrder fetches the current state of a previously placed order.
func (c *Client) QueryOrder(ctx context.Context, creds models.Credentials, symbol string, ref OrderRef) (OrderResult, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	switch {
	case ref.VenueOrderID != 0:
		q.Set("orderId", strconv.FormatInt(ref.VenueOrderID, 10))
	case ref.ClientOrderID != "":
		q.Set("origClientOrderId", ref.ClientOrderID)
	default:
		return OrderResult{}, fmt.Errorf("%w: query order without id", domain.ErrAdapter)
	}
	q.Set("recvWindow", recvWindow)
	q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	payload := q.Encode()
	signed := payload + "&signature=" + Sign(creds.SecretKey, payload)

	body, status, err := c.do(ctx, http.MethodGet, "/api/v3/order", signed, creds.APIKey)
	if err != nil {
		return OrderResult{}, err
	}
	if status != http.StatusOK {
		ae := decodeError(body)
		return OrderResult{}, fmt.Errorf("%w: query order status %d code %d: %s", domain.ErrAdapter, status, ae.Code, ae.Msg)
	}
	return decodeOrder(body)
}

func decodeOrder(body []byte) (OrderResult, error) {
	var r orderResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return OrderResult{}, fmt.Errorf("%w: decode order: %v", domain.ErrAdapter, err)
	}
	res := OrderResult{
		VenueOrderID:     r.OrderID,
		Status:           r.Status,
		Price:            r.Price,
		CumulativeQuote:  r.CummulativeQuoteQty,
		ExecutedQuantity: r.ExecutedQty,
	}
	ts := r.TransactTime
	if ts == 0 {
		ts = r.UpdateTime
	}
	if ts > 0 {
		res.TransactTime = time.UnixMilli(ts).UTC()
	}
	return res, nil
}

// Sign is the venue's HMAC-SHA256 request signature, hex encoded.
func Sign(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path, rawQuery, apiKey string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrAdapter, err)
	}
	if apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", apiKey)
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s %s: %v", domain.ErrAdapter, method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read %s: %v", domain.ErrAdapter, path, err)
	}
	c.logger.Debug("venue call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", c.now().Sub(start)),
	)
	return body, resp.StatusCode, nil
}

func decodeError(body []byte) apiError {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err != nil || ae.Msg == "" {
		ae.Msg = strings.TrimSpace(string(body))
	}
	return ae
}
