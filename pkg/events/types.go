package events

import "encoding/json"

// Event name constants
const (
	ReadingUpdated = "reading.updated"
	PollFailed     = "poll.failed"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// ReadingEvent is published after every successful poll, rounded the same
// way the sensors are.
type ReadingEvent struct {
	Voltage  float64 `json:"voltage"`
	Capacity int     `json:"capacity"`
	Ts       int64   `json:"ts"`
}

// PollFailedEvent is published when a poll fails and the cached reading is
// served instead.
type PollFailedEvent struct {
	Error    string `json:"error"`
	Failures int    `json:"consecutiveFailures"`
	Ts       int64  `json:"ts"`
}

// DecodeAs unmarshals the event payload into T, ignoring the event name.
// An empty payload yields the zero value of T.
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
