package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"git.home.luguber.info/inful/appforge/internal/foundation/errors"
)

// BaseForge provides common HTTP operations for forge clients.
type BaseForge struct {
	httpClient *http.Client
	apiURL     string
	token      string

	authHeaderPrefix string
	customHeaders    map[string]string
}

// NewBaseForge creates a BaseForge with common forge HTTP client settings.
func NewBaseForge(httpClient *http.Client, apiURL, token string) *BaseForge {
	return &BaseForge{
		httpClient:       httpClient,
		apiURL:           apiURL,
		token:            token,
		authHeaderPrefix: "Bearer ",
		customHeaders:    make(map[string]string),
	}
}

// SetAuthHeaderPrefix customizes the authorization header format.
func (b *BaseForge) SetAuthHeaderPrefix(prefix string) {
	b.authHeaderPrefix = prefix
}

// SetCustomHeader sets forge-specific headers (e.g. the GitHub API version).
func (b *BaseForge) SetCustomHeader(key, value string) {
	b.customHeaders[key] = value
}

// NewRequest creates an HTTP request relative to the API URL.
// Endpoint is a path like "repos/{owner}/{repo}" and may carry a query string.
func (b *BaseForge) NewRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	cleanEndpoint := strings.TrimPrefix(endpoint, "/")

	var rawQuery string
	if idx := strings.Index(cleanEndpoint, "?"); idx != -1 {
		rawQuery = cleanEndpoint[idx+1:]
		cleanEndpoint = cleanEndpoint[:idx]
	}

	u, err := url.Parse(b.apiURL)
	if err != nil {
		return nil, errors.ForgeError("failed to parse API URL").
			WithCause(err).
			WithContext("api_url", b.apiURL).
			Build()
	}

	// Endpoints arrive escaped; keep that form so encoded segments survive.
	escaped := path.Join(strings.TrimSuffix(u.EscapedPath(), "/"), cleanEndpoint)
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, errors.ForgeError("invalid request path").
			WithCause(err).
			WithContext("endpoint", endpoint).
			Build()
	}
	u.Path = unescaped
	u.RawPath = escaped
	if rawQuery != "" {
		u.RawQuery = rawQuery
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, errors.ForgeError("failed to marshal request body").
				WithCause(err).
				Build()
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, errors.ForgeError("failed to create request").
			WithCause(err).
			WithContext("method", method).
			WithContext("url", u.String()).
			Build()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Authorization", b.authHeaderPrefix+b.token)
	req.Header.Set("User-Agent", "AppForge/1.0")
	for key, value := range b.customHeaders {
		req.Header.Set(key, value)
	}

	return req, nil
}

// DoRequest executes an HTTP request and decodes the JSON response into result.
// Error statuses become classified errors carrying the status code under "code".
func (b *BaseForge) DoRequest(req *http.Request, result any) error {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return errors.NetworkError("failed to execute forge request").
			WithCause(err).
			WithContext("method", req.Method).
			WithContext("url", req.URL.String()).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		limitedBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		bodyStr := strings.ReplaceAll(string(limitedBody), "\n", " ")

		category := errors.CategoryForge
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			category = errors.CategoryAuth
		case http.StatusNotFound:
			category = errors.CategoryNotFound
		case http.StatusConflict:
			category = errors.CategoryAlreadyExists
		}

		return errors.NewError(category, fmt.Sprintf("forge API error: %s", resp.Status)).
			WithContext("status", resp.Status).
			WithContext("code", resp.StatusCode).
			WithContext("method", req.Method).
			WithContext("url", req.URL.String()).
			WithContext("response", bodyStr).
			Build()
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && err != io.EOF {
			return errors.ForgeError("failed to decode response").
				WithCause(err).
				Build()
		}
	}

	return nil
}
