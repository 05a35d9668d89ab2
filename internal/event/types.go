package event

import "time"

type EventType string

const (
	EventTypeSingleClick EventType = "single_click"
	EventTypeMultiClick  EventType = "multi_click"
	EventTypeAppStart    EventType = "app_start"
	EventTypeAppStop     EventType = "app_stop"
)

// Button identifies the pointer button that produced a raw click.
type Button uint8

const (
	ButtonNone Button = iota
	ButtonLeft
	ButtonMiddle
	ButtonRight
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonMiddle:
		return "middle"
	case ButtonRight:
		return "right"
	default:
		return "none"
	}
}

// Raw is one occurrence of a click on a target. Only arrival order matters
// to the disambiguator; the other fields are carried through to callbacks.
type Raw struct {
	Timestamp time.Time `json:"ts"`
	Target    string    `json:"target"`
	Button    Button    `json:"button"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
}

// Event structure to store in DB
type Event struct {
	ID        int64     `db:"id" json:"id" yaml:"id"`
	Timestamp time.Time `db:"timestamp" json:"timestamp" yaml:"timestamp"` // First raw click of the group
	Type      EventType `db:"type" json:"type" yaml:"type"`
	Target    string    `db:"target" json:"target,omitempty" yaml:"target,omitempty"`
	Clicks    int       `db:"clicks" json:"clicks" yaml:"clicks"` // Raw clicks that reached dispatch
	GroupID   string    `db:"group_id" json:"group_id,omitempty" yaml:"group_id,omitempty"`
	Notes     string    `db:"notes" json:"notes,omitempty" yaml:"notes,omitempty"`
}
