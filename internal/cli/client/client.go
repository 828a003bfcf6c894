// Package client provides an HTTP client for the dispatch service API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook"
)

type DispatchClient struct {
	baseURL string
	token   string
	client  *http.Client
}

type EndpointsResponse struct {
	Endpoints []*models.Endpoint `json:"endpoints"`
}

type DeliveriesResponse struct {
	Deliveries []*models.Delivery `json:"deliveries"`
}

type ChannelsResponse struct {
	Channels []*models.Channel `json:"channels"`
}

func NewDispatchClient(baseURL, token string) *DispatchClient {
	return &DispatchClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *DispatchClient) doRequest(method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(bodyBytes)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.client.Do(req)
}

func (c *DispatchClient) do(method, path string, body, out interface{}) error {
	resp, err := c.doRequest(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *DispatchClient) ListEndpoints() ([]*models.Endpoint, error) {
	var resp EndpointsResponse
	if err := c.do(http.MethodGet, "/api/v1/endpoints", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Endpoints, nil
}

func (c *DispatchClient) RegisterEndpoint(req webhook.RegisterEndpointRequest) (*models.Endpoint, error) {
	var ep models.Endpoint
	if err := c.do(http.MethodPost, "/api/v1/endpoints", req, &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

func (c *DispatchClient) DeleteEndpoint(id string) error {
	return c.do(http.MethodDelete, "/api/v1/endpoints/"+url.PathEscape(id), nil, nil)
}

func (c *DispatchClient) TestEndpoint(id string) (*webhook.TestResult, error) {
	var result webhook.TestResult
	if err := c.do(http.MethodPost, "/api/v1/endpoints/"+url.PathEscape(id)+"/test", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *DispatchClient) ListDeliveries(endpointID string, limit int) ([]*models.Delivery, error) {
	path := fmt.Sprintf("/api/v1/deliveries?limit=%d", limit)
	if endpointID != "" {
		path += "&endpoint_id=" + url.QueryEscape(endpointID)
	}

	var resp DeliveriesResponse
	if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Deliveries, nil
}

func (c *DispatchClient) RetryFailed(endpointID string) (*webhook.RetryFailedResult, error) {
	path := "/api/v1/deliveries/retry"
	if endpointID != "" {
		path += "?endpoint_id=" + url.QueryEscape(endpointID)
	}

	var result webhook.RetryFailedResult
	if err := c.do(http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *DispatchClient) Stats() (*models.WebhookStats, error) {
	var stats models.WebhookStats
	if err := c.do(http.MethodGet, "/api/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *DispatchClient) TriggerEvent(req webhook.TriggerEventRequest) (string, error) {
	var resp struct {
		EventID string `json:"event_id"`
	}
	if err := c.do(http.MethodPost, "/api/v1/events", req, &resp); err != nil {
		return "", err
	}
	return resp.EventID, nil
}

func (c *DispatchClient) ListChannels() ([]*models.Channel, error) {
	var resp ChannelsResponse
	if err := c.do(http.MethodGet, "/api/v1/channels", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Channels, nil
}
