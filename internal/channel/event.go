package channel

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates decoded channel events.
type Kind string

const (
	KindProgress     Kind = "progress"
	KindStatus       Kind = "status"
	KindCompletion   Kind = "completion"
	KindError        Kind = "error"
	KindUnrecognized Kind = "unrecognized"
)

// Event is one decoded message from a generation status channel.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind

	// progress
	Value float64
	Max   float64

	// status, error
	Message string

	// completion
	Result string

	// unrecognized
	Raw []byte
	Err error
}

// wireMessage is the superset of fields the backend is known to send.
// Messages may also arrive wrapped as {"type": ..., "data": {...}}.
type wireMessage struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	Error    json.RawMessage `json:"error"`
	Progress *float64        `json:"progress"`
	Value    *float64        `json:"value"`
	Max      *float64        `json:"max"`
	Result   json.RawMessage `json:"result"`
	URL      string          `json:"url"`
	Link     string          `json:"link"`
}

// Decode turns a raw channel message into an Event. Malformed or unknown
// messages decode to KindUnrecognized rather than an error.
func Decode(raw []byte) Event {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Event{Kind: KindUnrecognized, Raw: raw, Err: err}
	}

	if len(msg.Data) > 0 && msg.Data[0] == '{' {
		var inner wireMessage
		if err := json.Unmarshal(msg.Data, &inner); err == nil {
			if inner.Status == "" && isCompletionType(msg.Type) {
				inner.Status = "completed"
			}
			if inner.Status == "" && isErrorType(msg.Type) {
				inner.Status = "error"
			}
			msg = inner
		}
	}

	status := strings.ToLower(strings.TrimSpace(msg.Status))

	switch {
	case status == "completed" || (msg.Progress != nil && *msg.Progress >= 100) || hasValue(msg.Result):
		return Event{Kind: KindCompletion, Result: completionResult(msg)}
	case status == "failed" || status == "error" || hasValue(msg.Error):
		return Event{Kind: KindError, Message: errorMessage(msg)}
	case msg.Value != nil && msg.Max != nil:
		return Event{Kind: KindProgress, Value: *msg.Value, Max: *msg.Max}
	case msg.Progress != nil:
		return Event{Kind: KindProgress, Value: *msg.Progress, Max: 100}
	case msg.Message != "":
		return Event{Kind: KindStatus, Message: msg.Message}
	case status != "":
		return Event{Kind: KindStatus, Message: msg.Status}
	}
	return Event{Kind: KindUnrecognized, Raw: raw, Err: fmt.Errorf("no known fields in message")}
}

func isCompletionType(t string) bool {
	return t == "completed" || t == "execution_success"
}

func isErrorType(t string) bool {
	return t == "error" || t == "execution_error"
}

func hasValue(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null" && s != `""` && s != "false"
}

// completionResult prefers an explicit result string, then url/link fields,
// then the raw result JSON.
func completionResult(msg wireMessage) string {
	if hasValue(msg.Result) {
		var s string
		if err := json.Unmarshal(msg.Result, &s); err == nil {
			return s
		}
		var nested struct {
			URL  string `json:"url"`
			Link string `json:"link"`
		}
		if err := json.Unmarshal(msg.Result, &nested); err == nil {
			if nested.URL != "" {
				return nested.URL
			}
			if nested.Link != "" {
				return nested.Link
			}
		}
	}
	if msg.URL != "" {
		return msg.URL
	}
	if msg.Link != "" {
		return msg.Link
	}
	if hasValue(msg.Result) {
		return string(msg.Result)
	}
	return ""
}

func errorMessage(msg wireMessage) string {
	if hasValue(msg.Error) {
		var s string
		if err := json.Unmarshal(msg.Error, &s); err == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(msg.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		if msg.Message == "" {
			return string(msg.Error)
		}
	}
	if msg.Message != "" {
		return msg.Message
	}
	return "generation failed"
}
