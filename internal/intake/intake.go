// Package intake validates submitted request forms before ticket creation.
//
// The chat-platform adapter renders the tier menu and the per-kind form; by
// the time a request reaches this package it is a flat field map. Validation
// here is presence and length only — field content is the requester's own.
package intake

import (
	"errors"
	"fmt"
)

// Kind is the class of request a ticket carries.
type Kind string

const (
	KindBrokeredTrade  Kind = "brokered-trade"
	KindGeneralSupport Kind = "general-support"
)

var ErrInvalidRequest = errors.New("invalid intake request")

// Field describes one form field of a request kind.
type Field struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required"`
	MaxLen      int    `json:"maxLen"`
	Multiline   bool   `json:"multiline,omitempty"`
}

// schemas is the closed set of request kinds and their form fields.
var schemas = map[Kind][]Field{
	KindBrokeredTrade: {
		{Name: "counterparty", Label: "Who are you trading with?", Placeholder: "@user or ID", Required: true, MaxLen: 100},
		{Name: "offering", Label: "What are you giving?", Placeholder: "Example: 200M", Required: true, MaxLen: 500, Multiline: true},
		{Name: "requesting", Label: "What is the other trader giving?", Placeholder: "Example: 500 Robux", Required: true, MaxLen: 500, Multiline: true},
		{Name: "bothJoin", Label: "Can both users join links?", Placeholder: "YES or NO", Required: true, MaxLen: 10},
		{Name: "tip", Label: "Will you tip the broker?", Placeholder: "Optional", Required: false, MaxLen: 200},
	},
	KindGeneralSupport: {
		{Name: "reason", Label: "What do you need help with?", Required: true, MaxLen: 200},
		{Name: "details", Label: "Details", Required: true, MaxLen: 1000, Multiline: true},
	},
}

// Schema returns the form fields for a kind, or an error for unknown kinds.
func Schema(k Kind) ([]Field, error) {
	fields, ok := schemas[k]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, k)
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out, nil
}

// Kinds returns the closed set of request kinds.
func Kinds() []Kind {
	return []Kind{KindBrokeredTrade, KindGeneralSupport}
}

// Request is a submitted form, one per ticket.
type Request struct {
	RequesterID string            `json:"requesterId"`
	TierKey     string            `json:"tierKey"`
	Kind        Kind              `json:"kind"`
	Fields      map[string]string `json:"fields"`
}

// Validate checks presence and length against the kind's schema and returns
// the normalized payload: required fields verbatim, optional fields filled
// with "None" when blank (so downstream notices always have a value).
func (r *Request) Validate() (map[string]string, error) {
	if r.RequesterID == "" {
		return nil, fmt.Errorf("%w: requesterId is required", ErrInvalidRequest)
	}
	if r.TierKey == "" {
		return nil, fmt.Errorf("%w: tierKey is required", ErrInvalidRequest)
	}
	schema, ok := schemas[r.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, r.Kind)
	}

	payload := make(map[string]string, len(schema))
	for _, f := range schema {
		v := r.Fields[f.Name]
		if f.Required && v == "" {
			return nil, fmt.Errorf("%w: field %q is required", ErrInvalidRequest, f.Name)
		}
		if f.MaxLen > 0 && len(v) > f.MaxLen {
			return nil, fmt.Errorf("%w: field %q exceeds %d characters", ErrInvalidRequest, f.Name, f.MaxLen)
		}
		if v == "" {
			v = "None"
		}
		payload[f.Name] = v
	}
	return payload, nil
}
