package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.vapi.ai"

// Client places outbound calls through the voice-agent platform.
type Client interface {
	CreateCall(ctx context.Context, req CallRequest) (*CallResponse, error)
}

// CallRequest is the request body for POST /call.
type CallRequest struct {
	AssistantID string      `json:"assistantId,omitempty"`
	Name        string      `json:"name,omitempty"`
	Assistant   Assistant   `json:"assistant"`
	PhoneNumber PhoneNumber `json:"phoneNumber"`
	Customer    Customer    `json:"customer"`
}

// Assistant overrides the stored assistant for this call.
type Assistant struct {
	Transcriber  Transcriber `json:"transcriber"`
	Model        Model       `json:"model"`
	FirstMessage string      `json:"firstMessage"`
}

type Transcriber struct {
	Provider string `json:"provider,omitempty"`
}

type Model struct {
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// PhoneNumber carries the caller-side telephony credentials.
type PhoneNumber struct {
	TwilioAccountSID  string `json:"twilioAccountSid"`
	TwilioAuthToken   string `json:"twilioAuthToken"`
	TwilioPhoneNumber string `json:"twilioPhoneNumber"`
}

type Customer struct {
	Number string `json:"number"`
}

// CallResponse is the subset of the created call the dispatcher needs.
type CallResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a voice platform client authenticated with a bearer
// token. Calls use http.DefaultClient unless overridden.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http:    http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) CreateCall(ctx context.Context, req CallRequest) (*CallResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &DispatchError{Code: CodeTransport, Err: eris.Wrap(err, "vapi: marshal request")}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return nil, &DispatchError{Code: CodeTransport, Err: eris.Wrap(err, "vapi: create request")}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &DispatchError{Code: CodeTransport, Err: eris.Wrap(err, "vapi: send request")}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DispatchError{Code: CodeTransport, Err: eris.Wrap(err, "vapi: read response")}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DispatchError{
			Code:       CodeStatus,
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("vapi: unexpected status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var result CallResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &DispatchError{Code: CodeDecode, StatusCode: resp.StatusCode, Err: eris.Wrap(err, "vapi: unmarshal response")}
	}

	return &result, nil
}
