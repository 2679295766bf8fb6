package chaindata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"token-backfill/internal/domain"
	"token-backfill/internal/logger"
	"token-backfill/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL      = "https://api.etherscan.io/v2/api"
	DefaultPageSize     = 1000
	DefaultResultWindow = 10000
	DefaultRateLimit    = 5.0
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryWait    = 1 * time.Second
	DefaultMaxRetryWait = 10 * time.Second
)

const noTransactionsMessage = "No transactions found"

// Client is an Etherscan-family v2 API client for token transfer history.
// It implements TransferSource.
type Client struct {
	apiKey  string
	chainID int64

	baseURL      string
	pageSize     int
	window       int
	rateLimit    float64
	timeout      time.Duration
	maxRetries   int
	retryWait    time.Duration
	maxRetryWait time.Duration
	log          *logger.Logger

	http    *resty.Client
	limiter *rate.Limiter
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL sets the API endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithPageSize sets the number of records requested per page.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithResultWindow sets how many rows the API can page through for a
// single query before the start block has to move.
func WithResultWindow(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.window = n
		}
	}
}

// WithRateLimit sets the request rate in requests per second. Zero or
// negative disables pacing.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		c.rateLimit = rps
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryWait sets the initial and maximum backoff between retries.
func WithRetryWait(initial, max time.Duration) ClientOption {
	return func(c *Client) {
		c.retryWait = initial
		c.maxRetryWait = max
	}
}

// WithLogger sets the client logger.
func WithLogger(l *logger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a client for the given API key and chain id.
func NewClient(apiKey string, chainID int64, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:       apiKey,
		chainID:      chainID,
		baseURL:      DefaultBaseURL,
		pageSize:     DefaultPageSize,
		window:       DefaultResultWindow,
		rateLimit:    DefaultRateLimit,
		timeout:      DefaultTimeout,
		maxRetries:   DefaultMaxRetries,
		retryWait:    DefaultRetryWait,
		maxRetryWait: DefaultMaxRetryWait,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pageSize > c.window {
		c.pageSize = c.window
	}

	limit := rate.Inf
	if c.rateLimit > 0 {
		limit = rate.Limit(c.rateLimit)
	}
	c.limiter = rate.NewLimiter(limit, 1)

	c.http = resty.New().
		SetTimeout(c.timeout).
		SetRetryCount(c.maxRetries).
		SetRetryWaitTime(c.retryWait).
		SetRetryMaxWaitTime(c.maxRetryWait).
		AddRetryCondition(shouldRetry).
		OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return c.limiter.Wait(req.Context())
		})

	return c
}

// PageSize returns the effective page size.
func (c *Client) PageSize() int {
	return c.pageSize
}

// Transfers implements TransferSource.
func (c *Client) Transfers(contract string, startBlock uint64, endBlock *uint64) PageIterator {
	return newPageIterator(c, contract, startBlock, endBlock)
}

// shouldRetry retries transport failures, throttling and server errors.
// Cancellation is final.
func shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return false
	}
	code := resp.StatusCode()
	if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
		return true
	}
	return isRateLimited(resp.Body())
}

func isRateLimited(body []byte) bool {
	return strings.Contains(strings.ToLower(string(body)), "rate limit")
}

// envelope is the common response shape of the API.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// apiTransfer is one row of a tokentx response.
type apiTransfer struct {
	Hash             string `json:"hash"`
	BlockNumber      string `json:"blockNumber"`
	TransactionIndex string `json:"transactionIndex"`
	LogIndex         string `json:"logIndex"`
	From             string `json:"from"`
	To               string `json:"to"`
	Value            string `json:"value"`
	TokenDecimal     string `json:"tokenDecimal"`
	GasUsed          string `json:"gasUsed"`
	GasPrice         string `json:"gasPrice"`
	TimeStamp        string `json:"timeStamp"`
	ReceiptStatus    string `json:"txreceipt_status"`
}

func (t apiTransfer) toRaw() domain.RawTransfer {
	return domain.RawTransfer{
		Hash:             t.Hash,
		BlockNumber:      t.BlockNumber,
		TransactionIndex: t.TransactionIndex,
		LogIndex:         t.LogIndex,
		From:             t.From,
		To:               t.To,
		Value:            t.Value,
		TokenDecimals:    t.TokenDecimal,
		GasUsed:          t.GasUsed,
		GasPrice:         t.GasPrice,
		TimeStamp:        t.TimeStamp,
		StatusCode:       t.ReceiptStatus,
	}
}

// fetchPage requests one page of token transfers for a contract.
func (c *Client) fetchPage(ctx context.Context, contract string, startBlock uint64, endBlock *uint64, page int) ([]domain.RawTransfer, error) {
	params := map[string]string{
		"chainid":         strconv.FormatInt(c.chainID, 10),
		"module":          "account",
		"action":          "tokentx",
		"contractaddress": contract,
		"startblock":      strconv.FormatUint(startBlock, 10),
		"page":            strconv.Itoa(page),
		"offset":          strconv.Itoa(c.pageSize),
		"sort":            "asc",
		"apikey":          c.apiKey,
	}
	if endBlock != nil {
		params["endblock"] = strconv.FormatUint(*endBlock, 10)
	}

	start := time.Now()
	rows, err := c.doFetch(ctx, params)
	observability.RecordRPCCall("tokentx", time.Since(start).Seconds(), err)
	if err != nil {
		c.log.Warnw("tokentx request failed",
			"contract", contract,
			"startblock", startBlock,
			"page", page,
			"error", err,
		)
		return nil, err
	}

	c.log.Debugw("fetched page",
		"contract", contract,
		"startblock", startBlock,
		"page", page,
		"rows", len(rows),
	)
	return rows, nil
}

func (c *Client) doFetch(ctx context.Context, params map[string]string) ([]domain.RawTransfer, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetHeader("Accept", "application/json").
		Get(c.baseURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: tokentx request: %v", domain.ErrNetwork, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: tokentx: unexpected status %d: %s", domain.ErrNetwork, resp.StatusCode(), truncate(resp.Body()))
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("%w: tokentx: decode envelope: %v", domain.ErrNetwork, err)
	}
	return decodeResult(env)
}

// decodeResult turns an envelope into rows. "No transactions found" is an
// empty page rather than an error.
func decodeResult(env envelope) ([]domain.RawTransfer, error) {
	if env.Status != "1" {
		if strings.EqualFold(env.Message, noTransactionsMessage) {
			return nil, nil
		}
		var detail string
		if err := json.Unmarshal(env.Result, &detail); err != nil {
			detail = string(env.Result)
		}
		return nil, fmt.Errorf("%w: tokentx: %s: %s", domain.ErrNetwork, env.Message, detail)
	}

	var rows []apiTransfer
	if err := json.Unmarshal(env.Result, &rows); err != nil {
		return nil, fmt.Errorf("%w: tokentx: decode result: %v", domain.ErrNetwork, err)
	}

	out := make([]domain.RawTransfer, len(rows))
	for i, r := range rows {
		out[i] = r.toRaw()
	}
	return out, nil
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
