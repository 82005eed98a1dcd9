package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/desertthunder/spotkit/internal/client"
	"github.com/desertthunder/spotkit/internal/shared"
)

// APIService sends arbitrary authorized requests to the Web API and returns the raw response.
type APIService struct {
	doer client.Doer
}

func NewAPIService(doer client.Doer) *APIService {
	return &APIService{doer: doer}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Get performs a GET request to path (relative to the API root, or a paging URL) and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string, query url.Values, scopes ...string) (*APIResponse, error) {
	return a.send(ctx, client.Get(path, query, scopes...))
}

// Send performs a request with an optional JSON body. data must be valid JSON when set.
func (a *APIService) Send(ctx context.Context, method, path string, data []byte, scopes ...string) (*APIResponse, error) {
	req := client.Request{Method: method, Path: path, Scopes: scopes}
	if len(data) > 0 {
		if !json.Valid(data) {
			return nil, fmt.Errorf("%w: request body is not valid JSON", shared.ErrInvalidInput)
		}
		req.Body = data
		req.ContentType = "application/json"
	}
	return a.send(ctx, req)
}

func (a *APIService) send(ctx context.Context, req client.Request) (*APIResponse, error) {
	resp, err := a.doer.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       resp.Body,
	}

	var jsonData any
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &jsonData) == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}
	return apiResp, nil
}

// Pretty renders the body indented when it is JSON.
func (r *APIResponse) Pretty() string {
	if !r.IsJSON {
		return string(r.Body)
	}
	out, err := shared.MarshalJSON(r.JSONData, true)
	if err != nil {
		return string(r.Body)
	}
	return string(out)
}
