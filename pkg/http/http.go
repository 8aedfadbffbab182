package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tasklens/authcore/pkg/oidc"
)

var DefaultHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

type Decoder interface {
	Decode(dst any, src map[string][]string) error
}

type Encoder interface {
	Encode(src any, dst map[string][]string) error
}

// FormRequest builds a form-encoded POST request from the given wire struct.
func FormRequest(ctx context.Context, endpoint string, request any, encoder Encoder) (*http.Request, error) {
	form := url.Values{}
	if err := encoder.Encode(request, form); err != nil {
		return nil, err
	}
	body := strings.NewReader(form.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// HttpRequest performs the request and decodes the JSON body into response.
// Transport failures map to a NetworkError, non-2xx provider error bodies
// to a ProviderError.
func HttpRequest(client *http.Client, req *http.Request, response any) error {
	resp, err := client.Do(req)
	if err != nil {
		return oidc.ErrNetworkError().WithParent(err).WithDescription("request to %s failed", req.URL.Host)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return oidc.ErrNetworkError().WithParent(err).WithDescription("unable to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var provErr struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		if err := json.Unmarshal(body, &provErr); err != nil || provErr.Error == "" {
			return oidc.ErrNetworkError().WithDescription("http status not ok: %s %s", resp.Status, body)
		}
		return oidc.ErrProvider(provErr.Error, provErr.Description)
	}

	if err := json.Unmarshal(body, response); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w %s", err, body)
	}
	return nil
}

// URLEncodeParams encodes the wire struct into url values.
func URLEncodeParams(request any, encoder Encoder) (url.Values, error) {
	values := make(map[string][]string)
	if err := encoder.Encode(request, values); err != nil {
		return nil, err
	}
	return values, nil
}
