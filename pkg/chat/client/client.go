package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/prefs"
)

// Client talks to the remote conversation store over HTTP+JSON. Every call
// is bearer-authenticated with the token passed in; the client never caches
// credentials.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

var _ chat.Store = (*Client)(nil)
var _ prefs.Remote = (*Client)(nil)

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(baseURL string, options ...ClientOption) *Client {
	ret := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
}

// errorResponse is the store's error envelope. Some deployments use
// "message", some "error".
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func errorMessage(status int, body []byte) string {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Message != "" {
			return errResp.Message
		}
		if errResp.Error != "" {
			return errResp.Error
		}
	}
	return http.StatusText(status)
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func (c *Client) History(ctx context.Context, userID string, token string) ([]chat.HistoryRecord, error) {
	endpoint := fmt.Sprintf("%s/history/%s", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, token)

	status, body, err := c.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "history request failed")
	}
	if status < 200 || status >= 300 {
		return nil, chat.NewRemoteRequestFailedError(status, errorMessage(status, body))
	}

	var records []chat.HistoryRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, errors.Wrap(err, "failed to decode history response")
	}
	return records, nil
}

func (c *Client) Answer(ctx context.Context, answerReq chat.AnswerRequest, token string) (*chat.AnswerResponse, error) {
	payload, err := json.Marshal(answerReq)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/answer", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, token)

	status, body, err := c.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "answer request failed")
	}
	if status < 200 || status >= 300 {
		return nil, chat.NewRemoteRequestFailedError(status, errorMessage(status, body))
	}

	var resp chat.AnswerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to decode answer response")
	}
	return &resp, nil
}

func (c *Client) SaveHistory(ctx context.Context, record chat.HistoryRecord, token string) (string, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/history", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	c.setHeaders(req, token)

	status, body, err := c.do(req)
	if err != nil {
		return "", errors.Wrap(err, "history write failed")
	}
	if status < 200 || status >= 300 {
		return "", chat.NewRemoteRequestFailedError(status, errorMessage(status, body))
	}

	// the id is optional; an empty body just means the store assigned none
	var resp struct {
		ID string `json:"id"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", errors.Wrap(err, "failed to decode history write response")
		}
	}
	return resp.ID, nil
}

// FetchPreferences returns the stored preferences for the user. The second
// return is false when the store has none yet.
func (c *Client) FetchPreferences(ctx context.Context, userID string, token string) (prefs.Preferences, bool, error) {
	endpoint := fmt.Sprintf("%s/preferences/%s", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return prefs.Preferences{}, false, err
	}
	c.setHeaders(req, token)

	status, body, err := c.do(req)
	if err != nil {
		return prefs.Preferences{}, false, errors.Wrap(err, "preferences request failed")
	}
	if status == http.StatusNotFound {
		return prefs.Preferences{}, false, nil
	}
	if status < 200 || status >= 300 {
		return prefs.Preferences{}, false, chat.NewRemoteRequestFailedError(status, errorMessage(status, body))
	}

	var p prefs.Preferences
	if err := json.Unmarshal(body, &p); err != nil {
		return prefs.Preferences{}, false, errors.Wrap(err, "failed to decode preferences response")
	}
	return p, true, nil
}

func (c *Client) SavePreferences(ctx context.Context, userID string, token string, p prefs.Preferences) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/preferences/%s", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.setHeaders(req, token)

	status, body, err := c.do(req)
	if err != nil {
		return errors.Wrap(err, "preferences write failed")
	}
	if status < 200 || status >= 300 {
		return chat.NewRemoteRequestFailedError(status, errorMessage(status, body))
	}
	return nil
}
