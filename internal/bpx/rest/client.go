package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Client is a thin signed transport for the Backpack REST API. Requests that
// carry an instruction name are signed; public endpoints pass an empty one.
type Client struct {
	baseURL string
	http    *http.Client
	signer  *Signer
	window  int64
	log     *zap.Logger
}

func New(baseURL string, timeout time.Duration, signer *Signer, windowMS int64, log *zap.Logger) *Client {
	if windowMS <= 0 {
		windowMS = 5000
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
		},
		signer: signer,
		window: windowMS,
		log:    log,
	}
}

type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Do sends one request. GET params become the query string; for other methods
// the same params are the JSON body, so the signed byte order and the wire
// order stay identical (url.Values and JSON maps both sort keys).
func (c *Client) Do(ctx context.Context, method, path, instruction string, params map[string]string, out any) error {
	endpoint := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			values := url.Values{}
			for k, v := range params {
				values.Set(k, v)
			}
			endpoint += "?" + values.Encode()
		}
	} else if len(params) > 0 {
		payload, err := json.Marshal(params)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if instruction != "" {
		if c.signer == nil {
			return fmt.Errorf("instruction %s requires a signer", instruction)
		}
		ts := time.Now().UnixMilli()
		req.Header.Set("X-API-KEY", c.signer.Key())
		req.Header.Set("X-SIGNATURE", c.signer.Sign(instruction, params, ts, c.window))
		req.Header.Set("X-TIMESTAMP", strconv.FormatInt(ts, 10))
		req.Header.Set("X-WINDOW", strconv.FormatInt(c.window, 10))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiErrorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func apiErrorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	apiErr := &APIError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Code != "" {
			apiErr.Code = parsed.Code
		}
		if parsed.Message != "" {
			apiErr.Message = parsed.Message
		}
	}
	return apiErr
}
