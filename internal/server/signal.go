package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/devricklin/inboxsync/internal/biz/domain"
)

// Signal types
const (
	SignalArrived = "inbox.arrived"
	SignalRead    = "inbox.read"
)

const signalSchemaURL = "inboxsync://schemas/signal.json"

const signalSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"enum": ["inbox.arrived", "inbox.read"]},
		"id": {"type": "string", "minLength": 1},
		"time": {"type": "string"},
		"visible": {"type": "boolean"},
		"expires": {"type": ["string", "null"]},
		"notification": {
			"type": "object",
			"required": ["id"],
			"properties": {
				"id": {"type": "string", "minLength": 1},
				"type": {"type": "string"},
				"title": {"type": "string"},
				"subtitle": {"type": "string"},
				"message": {"type": "string"},
				"attachments": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["uri"],
						"properties": {
							"mimeType": {"type": "string"},
							"uri": {"type": "string"}
						}
					}
				},
				"extra": {"type": "object"},
				"partial": {"type": "boolean"}
			}
		}
	},
	"allOf": [
		{
			"if": {"properties": {"type": {"const": "inbox.arrived"}}},
			"then": {"required": ["notification"]}
		},
		{
			"if": {"properties": {"type": {"const": "inbox.read"}}},
			"then": {"required": ["id"]}
		}
	]
}`

// Signal is one inbound inbox event
type Signal struct {
	Type         string               `json:"type"`
	ID           string               `json:"id,omitempty"`
	Time         *time.Time           `json:"time,omitempty"`
	Visible      *bool                `json:"visible,omitempty"`
	Expires      *time.Time           `json:"expires,omitempty"`
	Notification *domain.Notification `json:"notification,omitempty"`
}

// Arrival converts an arrival signal; visibility defaults to true
func (s *Signal) Arrival() domain.Arrival {
	a := domain.Arrival{
		ID:      s.ID,
		Visible: true,
		Expires: s.Expires,
	}
	if s.Notification != nil {
		a.Notification = *s.Notification
	}
	if s.Time != nil {
		a.Time = *s.Time
	}
	if s.Visible != nil {
		a.Visible = *s.Visible
	}
	return a
}

// SignalParser validates and decodes inbound signals
type SignalParser struct {
	schema *jsonschema.Schema
}

// NewSignalParser compiles the signal schema
func NewSignalParser() (*SignalParser, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(signalSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse signal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(signalSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add signal schema: %w", err)
	}
	sch, err := c.Compile(signalSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile signal schema: %w", err)
	}
	return &SignalParser{schema: sch}, nil
}

// Parse validates data against the signal schema and decodes it
func (p *SignalParser) Parse(data []byte) (*Signal, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid signal json: %w", err)
	}
	if err := p.schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("invalid signal: %w", err)
	}

	var sig Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, fmt.Errorf("failed to decode signal: %w", err)
	}
	return &sig, nil
}

// LooksLikeSignal cheaply filters chat text that cannot be a signal
func LooksLikeSignal(text string) bool {
	text = strings.TrimSpace(text)
	return strings.HasPrefix(text, "{") && strings.Contains(text, `"inbox.`)
}
