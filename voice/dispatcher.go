package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"leadcaller/config"
	"leadcaller/metrics"
	"leadcaller/utils"
)

// ErrorCode classifies a failed dispatch.
type ErrorCode string

const (
	CodeConfigMissing ErrorCode = "config_missing"
	CodeTransport     ErrorCode = "transport"
	CodeStatus        ErrorCode = "status"
	CodeDecode        ErrorCode = "decode"
	CodeMissingID     ErrorCode = "missing_id"
)

// DispatchError is the structured failure of a call attempt. StatusCode is
// set when the platform answered.
type DispatchError struct {
	Code       ErrorCode
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("dispatch %s", e.Code)
	}
	return fmt.Sprintf("dispatch %s: %v", e.Code, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// DispatchRequest describes one outbound call. Empty numbers fall back to
// the configured telephony numbers.
type DispatchRequest struct {
	FromNumber     string
	CustomerNumber string
	FirstMessage   string
}

// DispatchResult identifies the placed call.
type DispatchResult struct {
	CallID         string
	Status         string
	CustomerNumber string
	AssistantID    string
}

// Dispatcher places exactly one call per Dispatch. Failed attempts are not
// retried.
type Dispatcher struct {
	client Client
	vapi   config.VapiConfig
	logger *utils.Logger

	mu        sync.RWMutex
	telephony config.TelephonyConfig
}

func NewDispatcher(client Client, vapi config.VapiConfig, telephony config.TelephonyConfig, logger *utils.Logger) *Dispatcher {
	return &Dispatcher{client: client, vapi: vapi, telephony: telephony, logger: logger}
}

// SetTelephony replaces the outbound credentials at runtime.
func (d *Dispatcher) SetTelephony(t config.TelephonyConfig) error {
	if !t.Complete() {
		return &DispatchError{Code: CodeConfigMissing, Err: eris.New("voice: account sid, auth token and phone number are required")}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.CustomerNumber == "" {
		t.CustomerNumber = d.telephony.CustomerNumber
	}
	d.telephony = t
	return nil
}

// Telephony returns the active outbound credentials.
func (d *Dispatcher) Telephony() config.TelephonyConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.telephony
}

// Dispatch places the call and returns the platform call id.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	payload, err := d.buildRequest(req)
	if err != nil {
		metrics.CallsDispatched.WithLabelValues(string(CodeConfigMissing)).Inc()
		return nil, err
	}

	log := d.logger.Z().With(zap.String("customer", payload.Customer.Number))
	log.Info("dispatching call")

	resp, err := d.client.CreateCall(ctx, *payload)
	if err != nil {
		var de *DispatchError
		if !errors.As(err, &de) {
			de = &DispatchError{Code: CodeTransport, Err: err}
		}
		metrics.CallsDispatched.WithLabelValues(string(de.Code)).Inc()
		log.Error("call dispatch failed", zap.String("code", string(de.Code)), zap.Error(de.Err))
		return nil, de
	}
	if resp.ID == "" {
		metrics.CallsDispatched.WithLabelValues(string(CodeMissingID)).Inc()
		return nil, &DispatchError{Code: CodeMissingID, Err: eris.New("voice: response carried no call id")}
	}

	metrics.CallsDispatched.WithLabelValues("ok").Inc()
	log.Info("call dispatched", zap.String("call_id", resp.ID), zap.String("status", resp.Status))

	return &DispatchResult{
		CallID:         resp.ID,
		Status:         resp.Status,
		CustomerNumber: payload.Customer.Number,
		AssistantID:    payload.AssistantID,
	}, nil
}

func (d *Dispatcher) buildRequest(req DispatchRequest) (*CallRequest, error) {
	t := d.Telephony()
	if req.FromNumber == "" {
		req.FromNumber = t.PhoneNumber
	}
	if req.CustomerNumber == "" {
		req.CustomerNumber = t.CustomerNumber
	}

	var missing []string
	if d.vapi.BearerToken == "" {
		missing = append(missing, "VAPI_BEARER_TOKEN")
	}
	if t.AccountSID == "" || t.AuthToken == "" || req.FromNumber == "" {
		missing = append(missing, "telephony credentials")
	}
	if req.CustomerNumber == "" {
		missing = append(missing, "customer number")
	}
	if len(missing) > 0 {
		return nil, &DispatchError{Code: CodeConfigMissing, Err: eris.Errorf("voice: missing %v", missing)}
	}

	return &CallRequest{
		AssistantID: d.vapi.AssistantID,
		Name:        d.vapi.AssistantName,
		Assistant: Assistant{
			Transcriber: Transcriber{Provider: d.vapi.TranscriberProvider},
			Model: Model{
				Provider:     d.vapi.ModelProvider,
				Model:        d.vapi.ModelName,
				SystemPrompt: d.vapi.SystemPrompt,
			},
			FirstMessage: req.FirstMessage,
		},
		PhoneNumber: PhoneNumber{
			TwilioAccountSID:  t.AccountSID,
			TwilioAuthToken:   t.AuthToken,
			TwilioPhoneNumber: req.FromNumber,
		},
		Customer: Customer{Number: req.CustomerNumber},
	}, nil
}
