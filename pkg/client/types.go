package client

import "encoding/json"

// Wire shapes of the supervisor control API. Every reply is a JSON object
// with an optional "status" code; detail calls carry their payload in "info"
// and omit it when the controller timed out.

type envelope struct {
	Status string          `json:"status,omitempty"`
	Info   json.RawMessage `json:"info,omitempty"`
}

// workerEntry is one value of the worker-info mapping, keyed by pid.
type workerEntry struct {
	Mem        *float64 `json:"mem"`
	CPU        *float64 `json:"cpu"`
	CreateTime *float64 `json:"create_time"`
}

type daemonEntry struct {
	PID        *int     `json:"pid"`
	CreateTime *float64 `json:"create_time"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
