// Package response defines the uniform envelope every API route
// returns to the browser: {data, messages, state}.
package response

const (
	StateOK    = "OK"
	StateError = "ERROR"
)

type Envelope struct {
	Data     any      `json:"data"`
	Messages []string `json:"messages"`
	State    string   `json:"state"`
}

func OK(data any, messages ...string) Envelope {
	if messages == nil {
		messages = []string{}
	}
	return Envelope{Data: data, Messages: messages, State: StateOK}
}

func Error(messages ...string) Envelope {
	if len(messages) == 0 {
		messages = []string{"unexpected error"}
	}
	return Envelope{Data: nil, Messages: messages, State: StateError}
}
