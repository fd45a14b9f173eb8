package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/mktdata-cli/internal/model"
	"github.com/sells-group/mktdata-cli/internal/resilience"
)

// Options configures the gateway client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
	Retry     resilience.RetryConfig
}

// Client talks to the terminal gateway over JSON/HTTP. It implements
// Session and Provider (reusing itself as the held connection).
type Client struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a gateway client.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		baseURL: opts.BaseURL,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
		retry:   opts.Retry,
	}
}

// Session implements Provider.
func (c *Client) Session(context.Context) (Session, error) {
	return c, nil
}

type refRequest struct {
	Tickers   []string        `json:"tickers"`
	Fields    []string        `json:"fields"`
	Overrides model.Overrides `json:"overrides,omitempty"`
}

type refResponse struct {
	Rows []model.RefRow `json:"rows"`
}

// Reference implements Session.
func (c *Client) Reference(ctx context.Context, tickers, fields []string, ovrds model.Overrides) ([]model.RefRow, error) {
	var resp refResponse
	err := c.post(ctx, "/v1/reference", refRequest{Tickers: tickers, Fields: fields, Overrides: ovrds}, &resp)
	if err != nil {
		return nil, err
	}
	for _, r := range resp.Rows {
		if err := r.Validate(); err != nil {
			return nil, eris.Wrap(err, "terminal: reference response")
		}
	}
	return resp.Rows, nil
}

type histRequest struct {
	Tickers   []string        `json:"tickers"`
	Fields    []string        `json:"fields"`
	Elements  []model.Element `json:"elements,omitempty"`
	Overrides model.Overrides `json:"overrides,omitempty"`
	StartDate string          `json:"start_date"`
	EndDate   string          `json:"end_date"`
}

type histResponse struct {
	Rows []model.HistRow `json:"rows"`
}

// Historical implements Session.
func (c *Client) Historical(ctx context.Context, tickers, fields []string, elms []model.Element, ovrds model.Overrides, startDate, endDate string) ([]model.HistRow, error) {
	var resp histResponse
	err := c.post(ctx, "/v1/historical", histRequest{
		Tickers:   tickers,
		Fields:    fields,
		Elements:  elms,
		Overrides: ovrds,
		StartDate: startDate,
		EndDate:   endDate,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

type bulkResponse struct {
	Rows []model.BulkRow `json:"rows"`
}

// BulkReference implements Session.
func (c *Client) BulkReference(ctx context.Context, tickers, fields []string, ovrds model.Overrides) ([]model.BulkRow, error) {
	var resp bulkResponse
	err := c.post(ctx, "/v1/bulkref", refRequest{Tickers: tickers, Fields: fields, Overrides: ovrds}, &resp)
	if err != nil {
		return nil, err
	}
	for _, r := range resp.Rows {
		if err := r.Validate(); err != nil {
			return nil, eris.Wrap(err, "terminal: bulkref response")
		}
	}
	return resp.Rows, nil
}

type barsRequest struct {
	Ticker    string `json:"ticker"`
	EventType string `json:"event_type"`
	Interval  int    `json:"interval"`
	Start     string `json:"start_datetime"`
	End       string `json:"end_datetime"`
}

type barsResponse struct {
	Bars []model.Bar `json:"bars"`
}

// IntradayBars implements Session.
func (c *Client) IntradayBars(ctx context.Context, ticker string, event model.EventType, intervalMin int, start, end time.Time) ([]model.Bar, error) {
	const timeFmt = "2006-01-02T15:04:05"
	var resp barsResponse
	err := c.post(ctx, "/v1/bars", barsRequest{
		Ticker:    ticker,
		EventType: string(event),
		Interval:  intervalMin,
		Start:     start.UTC().Format(timeFmt),
		End:       end.UTC().Format(timeFmt),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Bars, nil
}

func (c *Client) post(ctx context.Context, path string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return eris.Wrapf(err, "terminal: marshal %s", path)
	}

	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(path)
	}

	data, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "terminal: rate limiter")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, eris.Wrapf(err, "terminal: build request %s", path)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "terminal: %s", path)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrapf(err, "terminal: read %s", path)
		}

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("terminal: %s returned %d: %s", path, resp.StatusCode, truncate(body, 200))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}
		return body, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, respBody); err != nil {
		return eris.Wrapf(err, "terminal: decode %s", path)
	}
	zap.L().Debug("gateway call complete", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
