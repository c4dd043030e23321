// Package tools interprets the speech model's function-call intents and
// routes them to retrieval or an external service adapter.
package tools

import "time"

// Name identifies one of the known tools. The model emits an open-ended
// string; dispatch matches it against this closed set with an explicit
// unknown-tool arm.
type Name string

const (
	NameRetrieveKnowledge Name = "retrieve_knowledge"
	NameGetWeather        Name = "get_weather"
	NameWebSearch         Name = "web_search"
)

// ParseName maps a model-emitted tool name onto the closed set.
func ParseName(raw string) (Name, bool) {
	switch Name(raw) {
	case NameRetrieveKnowledge:
		return NameRetrieveKnowledge, true
	case NameGetWeather:
		return NameGetWeather, true
	case NameWebSearch:
		return NameWebSearch, true
	default:
		return "", false
	}
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusTimeout Status = "timeout"
)

// Request is a tool-call intent emitted by the speech model. Immutable once
// created. Name is kept as the raw model string so unrecognized tools can be
// reported instead of silently dropped.
type Request struct {
	CallID    string
	Name      string
	Arguments map[string]any
	TurnID    string
}

// Result is the outcome of one dispatched request. Exactly one Result is ever
// produced per call id; the orchestrator consumes it once and discards it.
type Result struct {
	CallID  string
	TurnID  string
	Status  Status
	Payload string
	Latency time.Duration
}
