// Package gateway is the HTTP client for the external payment provider. The
// provider reports settlement asynchronously on the payments callback route;
// this client only opens intents.
package gateway

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
)

type IntentRequest struct {
	AmountCents int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type Intent struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
}

type Client interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
}

type httpClient struct {
	rest *resty.Client
}

func NewClient(baseURL, apiKey string) Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &httpClient{rest: rest}
}

func (c *httpClient) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	var intent Intent
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&intent).
		Post("/v1/payment_intents")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, errors.Newf("gateway returned %d: %s", resp.StatusCode(), resp.String())
	}
	if intent.IntentID == "" || intent.ClientSecret == "" {
		return nil, errors.New("gateway returned incomplete intent")
	}
	return &intent, nil
}
