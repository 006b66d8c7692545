package model

import (
	"errors"
	"fmt"
)

// DefaultModel is used when neither config nor settings name a model.
const DefaultModel = "claude-3-5-sonnet-20241022"

// ErrInvalidParams is wrapped by every RequestParameters validation failure.
var ErrInvalidParams = errors.New("invalid request parameters")

// RequestParameters is the sampling configuration sent with every request.
type RequestParameters struct {
	Model         string   `json:"model"`
	Temperature   float64  `json:"temperature"`
	MaxTokens     int      `json:"maxTokens"`
	TopP          float64  `json:"topP"`
	TopK          *int     `json:"topK,omitempty"`
	StopSequences []string `json:"stopSequences,omitempty"`
	SystemPrompt  string   `json:"systemPrompt,omitempty"`
}

// DefaultParams returns the parameter set a fresh install starts with.
func DefaultParams() RequestParameters {
	return RequestParameters{
		Model:       DefaultModel,
		Temperature: 0.7,
		MaxTokens:   4096,
		TopP:        1,
	}
}

// Validate reports the first out-of-range field.
func (p RequestParameters) Validate() error {
	switch {
	case p.Model == "":
		return fmt.Errorf("%w: model is required", ErrInvalidParams)
	case p.Temperature < 0 || p.Temperature > 1:
		return fmt.Errorf("%w: temperature %.2f outside [0,1]", ErrInvalidParams, p.Temperature)
	case p.MaxTokens <= 0:
		return fmt.Errorf("%w: maxTokens must be positive, got %d", ErrInvalidParams, p.MaxTokens)
	case p.TopP < 0 || p.TopP > 1:
		return fmt.Errorf("%w: topP %.2f outside [0,1]", ErrInvalidParams, p.TopP)
	case p.TopK != nil && *p.TopK <= 0:
		return fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidParams, *p.TopK)
	}
	return nil
}

// ParamOverrides replaces individual fields of a RequestParameters for a
// single request. Nil fields keep the base value.
type ParamOverrides struct {
	Model         *string
	Temperature   *float64
	MaxTokens     *int
	TopP          *float64
	TopK          *int
	StopSequences []string
	SystemPrompt  *string
}

// Merge returns a copy of p with the non-nil overrides applied.
func (p RequestParameters) Merge(o *ParamOverrides) RequestParameters {
	out := p
	out.StopSequences = append([]string(nil), p.StopSequences...)
	if p.TopK != nil {
		k := *p.TopK
		out.TopK = &k
	}
	if o == nil {
		return out
	}
	if o.Model != nil {
		out.Model = *o.Model
	}
	if o.Temperature != nil {
		out.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil {
		out.MaxTokens = *o.MaxTokens
	}
	if o.TopP != nil {
		out.TopP = *o.TopP
	}
	if o.TopK != nil {
		k := *o.TopK
		out.TopK = &k
	}
	if o.StopSequences != nil {
		out.StopSequences = append([]string(nil), o.StopSequences...)
	}
	if o.SystemPrompt != nil {
		out.SystemPrompt = *o.SystemPrompt
	}
	return out
}
