package claims

import (
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle position of an allocation entry.
type State uint8

const (
	StateAvailable State = iota
	StateReserved
	StateConsumed
)

func (s State) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateReserved:
		return "reserved"
	case StateConsumed:
		return "consumed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler so JSON renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState accepts the snapshot spelling of a state. An empty value means available.
func ParseState(text string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "", "available":
		return StateAvailable, nil
	case "reserved":
		return StateReserved, nil
	case "consumed":
		return StateConsumed, nil
	default:
		return 0, fmt.Errorf("unknown claim state %q", text)
	}
}

// Entry is one party's entitlement. Entries are value copies; only the Store mutates them.
type Entry struct {
	CanonicalID   string    `json:"address"`
	OriginalID    string    `json:"originalAddress"`
	Amount        Amount    `json:"amount"`
	State         State     `json:"state"`
	ReservedAt    time.Time `json:"reservedAt"`
	ReservationID string    `json:"reservationId,omitempty"`
}

// Stats counts entries per state.
type Stats struct {
	Available int `json:"available"`
	Reserved  int `json:"reserved"`
	Consumed  int `json:"consumed"`
}

// Total returns the number of entries.
func (s Stats) Total() int {
	return s.Available + s.Reserved + s.Consumed
}
