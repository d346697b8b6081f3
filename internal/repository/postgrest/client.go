// Package postgrest stores agenda data on a hosted PostgREST endpoint. Every
// request carries the caller's access token so row-level security on the
// platform scopes the data to the signed-in user.
package postgrest

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

	"github.com/tidwall/gjson"

	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/session"
	"github.com/jwalitptl/agenda-api/pkg/circuitbreaker"
	"github.com/jwalitptl/agenda-api/pkg/metrics"
)

// codeNoRows is returned by PostgREST when a single-object request matches
// nothing.
const codeNoRows = "PGRST116"

// Client is a PostgREST API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	metrics    *metrics.Metrics
}

// Config holds client configuration.
type Config struct {
	URL          string
	APIKey       string
	Timeout      time.Duration
	MaxFailures  int
	ResetTimeout time.Duration
	HTTPClient   *http.Client
	Metrics      *metrics.Metrics
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "postgrest",
			MaxFailures: cfg.MaxFailures,
			Timeout:     cfg.ResetTimeout,
			IsFailure:   isServerFailure,
		}),
		metrics: cfg.Metrics,
	}, nil
}

// APIError is an error response from PostgREST.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("postgrest error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("postgrest error %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is match a no-rows response against repository.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == repository.ErrNotFound && e.Code == codeNoRows
}

// isServerFailure counts transport errors and 5xx responses against the
// breaker. Client errors say nothing about the health of the endpoint.
func isServerFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return err != nil
}

// Response is a raw API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// Rows returns the number of elements in an array body.
func (r *Response) Rows() int {
	return int(gjson.GetBytes(r.Body, "#").Int())
}

// First unmarshals the first element of an array body into v.
func (r *Response) First(v interface{}) error {
	first := gjson.GetBytes(r.Body, "0")
	if !first.Exists() {
		return repository.ErrNotFound
	}
	return json.Unmarshal([]byte(first.Raw), v)
}

// From starts a query builder for a table.
func (c *Client) From(sess session.Session, table string) *QueryBuilder {
	return &QueryBuilder{
		client: c,
		sess:   sess,
		table:  table,
		params: url.Values{},
	}
}

// RPC calls a stored procedure.
func (c *Client) RPC(ctx context.Context, sess session.Session, fn string, params interface{}) (*Response, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, fn)

	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, sess)
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, "rpc_"+fn)
}

// Ping checks that the REST endpoint answers with the service key.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, session.Session{})
	_, err = c.do(req, "ping")
	return err
}

// QueryBuilder builds PostgREST queries.
type QueryBuilder struct {
	client     *Client
	sess       session.Session
	table      string
	params     url.Values
	orders     []string
	single     bool
	onConflict string
}

// Select specifies columns to select.
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.params.Set("select", columns)
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value interface{}) *QueryBuilder {
	q.params.Add(column, fmt.Sprintf("eq.%v", value))
	return q
}

// Param sets a raw query parameter, e.g. an embedded resource order.
func (q *QueryBuilder) Param(key, value string) *QueryBuilder {
	q.params.Set(key, value)
	return q
}

// Order adds an ORDER BY clause.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, fmt.Sprintf("%s.%s", column, dir))
	return q
}

// Single expects exactly one result.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// OnConflict names the unique columns used by Upsert.
func (q *QueryBuilder) OnConflict(columns string) *QueryBuilder {
	q.onConflict = columns
	return q
}

func (q *QueryBuilder) url() string {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, q.table)
	if len(q.orders) > 0 {
		q.params.Set("order", strings.Join(q.orders, ","))
	}
	if len(q.params) > 0 {
		reqURL += "?" + q.params.Encode()
	}
	return reqURL
}

func (q *QueryBuilder) request(ctx context.Context, method string, data interface{}) (*http.Request, error) {
	var body io.Reader
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal data: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.url(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	q.client.setHeaders(req, q.sess)
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Execute executes a SELECT query.
func (q *QueryBuilder) Execute(ctx context.Context) (*Response, error) {
	req, err := q.request(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	return q.client.do(req, "select_"+q.table)
}

// Insert inserts data and returns the stored rows.
func (q *QueryBuilder) Insert(ctx context.Context, data interface{}) (*Response, error) {
	req, err := q.request(ctx, http.MethodPost, data)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")
	return q.client.do(req, "insert_"+q.table)
}

// Upsert inserts data, skipping rows that collide on the OnConflict columns.
func (q *QueryBuilder) Upsert(ctx context.Context, data interface{}) (*Response, error) {
	if q.onConflict != "" {
		q.params.Set("on_conflict", q.onConflict)
	}
	req, err := q.request(ctx, http.MethodPost, data)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "resolution=ignore-duplicates,return=minimal")
	return q.client.do(req, "upsert_"+q.table)
}

// Update patches the filtered rows and returns them.
func (q *QueryBuilder) Update(ctx context.Context, data interface{}) (*Response, error) {
	req, err := q.request(ctx, http.MethodPatch, data)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")
	return q.client.do(req, "update_"+q.table)
}

// Delete removes the filtered rows and returns them.
func (q *QueryBuilder) Delete(ctx context.Context) (*Response, error) {
	req, err := q.request(ctx, http.MethodDelete, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")
	return q.client.do(req, "delete_"+q.table)
}

func (c *Client) setHeaders(req *http.Request, sess session.Session) {
	req.Header.Set("apikey", c.apiKey)
	token := sess.AccessToken
	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func (c *Client) do(req *http.Request, operation string) (resp *Response, err error) {
	defer func(start time.Time) { c.metrics.ObserveStore(operation, start, err) }(time.Now())

	err = c.cb.Execute(func() error {
		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		resp = &Response{
			StatusCode: httpResp.StatusCode,
			Body:       body,
			Headers:    httpResp.Header,
		}
		if httpResp.StatusCode >= http.StatusBadRequest {
			return decodeError(httpResp.StatusCode, body)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func decodeError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		apiErr.Code = parsed.Get("code").String()
		apiErr.Message = parsed.Get("message").String()
		apiErr.Details = parsed.Get("details").String()
		apiErr.Hint = parsed.Get("hint").String()
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
