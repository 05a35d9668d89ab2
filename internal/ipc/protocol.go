package ipc

import (
	"clicks/internal/clicks"
	"clicks/internal/event"
	"clicks/internal/router"
)

// Command represents a command sent over the socket
type Command struct {
	Name string      `json:"name"`
	Args interface{} `json:"args,omitempty"`
}

// Response represents a response sent back over the socket
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ClickArgs injects Count raw clicks on Target, Interval apart.
type ClickArgs struct {
	Target   string `json:"target"`
	Count    int    `json:"count"`
	Interval string `json:"interval"` // e.g. "100ms"
	Button   string `json:"button,omitempty"`
}

const (
	CmdPing   = "ping"
	CmdStatus = "status"
	CmdClick  = "click"
)

type StatusData struct {
	Config  clicks.Config       `json:"config"`
	Targets []router.TargetInfo `json:"targets"`
	Recent  []event.Event       `json:"recent"`
}
