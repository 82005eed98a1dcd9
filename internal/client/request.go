package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/spotkit/internal/shared"
)

// Request is an endpoint call before authorization.
//
// Path is relative to the API base URL, or an absolute URL on the same host as returned in paging cursors.
// Scopes lists what the endpoint requires; they are checked locally before anything is sent.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
	Scopes      []string
}

// Get builds a GET request.
func Get(path string, query url.Values, scopes ...string) Request {
	return Request{Method: http.MethodGet, Path: path, Query: query, Scopes: scopes}
}

// JSON builds a request with v encoded as its body. A nil v sends no body.
func JSON(method, path string, v any, scopes ...string) (Request, error) {
	req := Request{Method: method, Path: path, Scopes: scopes}
	if v == nil {
		return req, nil
	}

	body, err := json.Marshal(v)
	if err != nil {
		return req, fmt.Errorf("%w: request body: %v", shared.ErrInvalidInput, err)
	}
	req.Body = body
	req.ContentType = "application/json"
	return req, nil
}

// resolve joins Path onto base. Absolute paths must stay on base's host so tokens are never sent elsewhere.
func (r Request) resolve(base *url.URL) (*url.URL, error) {
	var u *url.URL
	if strings.HasPrefix(r.Path, "http://") || strings.HasPrefix(r.Path, "https://") {
		parsed, err := url.Parse(r.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		if parsed.Host != base.Host {
			return nil, fmt.Errorf("%w: refusing to send credentials to %s", shared.ErrInvalidArgument, parsed.Host)
		}
		u = parsed
	} else {
		joined := strings.TrimRight(base.String(), "/") + "/" + strings.TrimLeft(r.Path, "/")
		parsed, err := url.Parse(joined)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		u = parsed
	}

	if len(r.Query) > 0 {
		q := u.Query()
		for k, vs := range r.Query {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

func (r Request) bodyReader() io.Reader {
	if len(r.Body) == 0 {
		return nil
	}
	return bytes.NewReader(r.Body)
}

// apiMessage extracts the human readable message from a Spotify error body.
//
// Web API errors look like {"error": {"status": 401, "message": "..."}}; the accounts service uses
// {"error": "...", "error_description": "..."}.
func apiMessage(body []byte) string {
	var regular struct {
		Error struct {
			Status  int    `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &regular) == nil && regular.Error.Message != "" {
		return regular.Error.Message
	}

	var oauth struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(body, &oauth) == nil && oauth.Error != "" {
		if oauth.Description != "" {
			return oauth.Error + ": " + oauth.Description
		}
		return oauth.Error
	}
	return ""
}

// DecodeJSON unmarshals a response body, wrapping failures in [shared.ErrDeserialize].
func DecodeJSON(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrDeserialize, err)
	}
	return nil
}
