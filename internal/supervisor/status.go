package supervisor

import (
	"encoding/json"
	"fmt"
)

type State int

const (
	StateNotInstalled State = iota
	StateStopped
	StateStarting
	StateRunning
	StateError
)

func (s State) String() string {
	switch s {
	case StateNotInstalled:
		return "not_installed"
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is the observable sidecar state. Message is only set for
// StateError.
type Status struct {
	State   State
	Message string
}

func (s Status) String() string {
	if s.State == StateError {
		return "error: " + s.Message
	}
	return s.State.String()
}

// MarshalJSON encodes plain states as strings and errors as
// {"error": "<message>"}.
func (s Status) MarshalJSON() ([]byte, error) {
	if s.State == StateError {
		return json.Marshal(map[string]string{"error": s.Message})
	}
	return json.Marshal(s.State.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		for st := StateNotInstalled; st <= StateRunning; st++ {
			if st.String() == name {
				*s = Status{State: st}
				return nil
			}
		}
		return fmt.Errorf("unknown sidecar status %q", name)
	}

	var tagged struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if tagged.Error == nil {
		return fmt.Errorf("unknown sidecar status %s", data)
	}
	*s = Status{State: StateError, Message: *tagged.Error}
	return nil
}
