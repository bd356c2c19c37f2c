package jsruntime

import "encoding/json"

// HostcallRequest is one sandbox-to-host asynchronous request. CallID is
// monotonically increasing per Runtime.
type HostcallRequest struct {
	CallID  int64
	Kind    string
	Payload json.RawMessage
}

// Outcome completes a hostcall: exactly one of Result/Err is set.
type Outcome struct {
	Result json.RawMessage
	Err    *OutcomeError
}

// OutcomeError is the error half of an Outcome.
type OutcomeError struct {
	Code    string
	Message string
}

// Success builds a successful Outcome from a JSON-marshalable value.
func Success(v any) Outcome {
	data, err := json.Marshal(v)
	if err != nil {
		return Outcome{Err: &OutcomeError{Code: "internal", Message: err.Error()}}
	}
	return Outcome{Result: data}
}

// Error builds a failed Outcome.
func Error(code, message string) Outcome {
	return Outcome{Err: &OutcomeError{Code: code, Message: message}}
}
