package status

import "fmt"

// Sentinel codes the transport substitutes for a supervisor reply when the
// daemon could not be reached or the controller call timed out.
const (
	NotRunningCode = "daemon-error-not-running"
	TimeoutCode    = "daemon-error-timeout"
)

// Kind is the closed set of daemon status kinds.
type Kind int

const (
	Unknown Kind = iota
	NotRunning
	Stopped
	Error
	Timeout
	Active
)

func (k Kind) String() string {
	switch k {
	case NotRunning:
		return "not_running"
	case Stopped:
		return "stopped"
	case Error:
		return "error"
	case Timeout:
		return "timeout"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a kind name; unrecognized names decode to Unknown.
func (k *Kind) UnmarshalText(b []byte) error {
	*k = Unknown
	for _, c := range Kinds() {
		if c.String() == string(b) {
			*k = c
			break
		}
	}
	return nil
}

// Taxonomy returns the error-classification name of the kind.
func (k Kind) Taxonomy() string {
	switch k {
	case NotRunning:
		return "Unreachable"
	case Stopped:
		return "Paused"
	case Error:
		return "SupervisorError"
	case Timeout:
		return "ControllerTimeout"
	case Active:
		return "Active"
	default:
		return "UnknownCode"
	}
}

// Terminal reports whether a poll stops after the aggregate status call.
func (k Kind) Terminal() bool {
	switch k {
	case NotRunning, Stopped, Error, Timeout:
		return true
	}
	return false
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{Unknown, NotRunning, Stopped, Error, Timeout, Active}
}

// Status is one normalized observation. Raw keeps the code the supervisor sent.
type Status struct {
	Kind Kind   `json:"kind"`
	Raw  string `json:"raw,omitempty"`
}

// IsAck reports whether the status came from a command acknowledgment ("ok")
// rather than a liveness report ("active").
func (s Status) IsAck() bool { return s.Kind == Active && s.Raw == "ok" }

// Label is the short word shown to users.
func (s Status) Label() string {
	switch s.Kind {
	case Active:
		if s.IsAck() {
			return "OK"
		}
		return "RUNNING"
	case NotRunning:
		return "FAILED"
	case Timeout:
		return "TIMEOUT"
	case Stopped:
		return "PAUSED"
	case Error:
		return "ERROR"
	default:
		return s.Raw
	}
}

func (s Status) String() string {
	if s.Kind == Unknown {
		return fmt.Sprintf("unknown(%s)", s.Raw)
	}
	return s.Kind.String()
}

// Normalize maps a raw supervisor response to a Status. The boolean is false
// when the response carries no "status" field.
func Normalize(resp map[string]any) (Status, bool) {
	v, ok := resp["status"]
	if !ok {
		return Status{}, false
	}
	code, isStr := v.(string)
	if !isStr {
		code = fmt.Sprintf("%v", v)
	}
	return NormalizeCode(code), true
}

// NormalizeCode maps a single status code.
func NormalizeCode(code string) Status {
	switch code {
	case "active", "ok":
		return Status{Kind: Active, Raw: code}
	case "stopped":
		return Status{Kind: Stopped, Raw: code}
	case "error":
		return Status{Kind: Error, Raw: code}
	case NotRunningCode:
		return Status{Kind: NotRunning, Raw: code}
	case TimeoutCode, "timeout":
		return Status{Kind: Timeout, Raw: code}
	default:
		return Status{Kind: Unknown, Raw: code}
	}
}

// Of builds the canonical Status for a kind, as produced when the client
// derives a status itself rather than reading one from the supervisor.
func Of(k Kind) Status {
	switch k {
	case NotRunning:
		return Status{Kind: k, Raw: NotRunningCode}
	case Timeout:
		return Status{Kind: k, Raw: TimeoutCode}
	case Unknown:
		return Status{Kind: k}
	default:
		return Status{Kind: k, Raw: k.String()}
	}
}
