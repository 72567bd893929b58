// Package mediatool is the boundary to the external media tool (ffmpeg).
// Callers see two operations, probe and encode, each producing a Session
// whose ReturnCode decides success.
package mediatool

import (
	"context"
	"time"
)

// Tool is the capability the export pipeline needs from the media tool.
type Tool interface {
	// Probe runs the tool in info-only mode against path. The duration line
	// appears in Session.Log.
	Probe(ctx context.Context, path string) (Session, error)

	// Encode runs the tool once with the given argument vector.
	Encode(ctx context.Context, args []string) (Session, error)
}

// ReturnCode is the structured outcome of a tool invocation.
type ReturnCode struct {
	Value     int  `json:"value"`
	Cancelled bool `json:"cancelled,omitempty"`
}

// IsSuccess returns true when the tool exited cleanly.
func (rc ReturnCode) IsSuccess() bool { return !rc.Cancelled && rc.Value == 0 }

// IsCancel returns true when the invocation was stopped before completion.
func (rc ReturnCode) IsCancel() bool { return rc.Cancelled }

// Session is the record of one tool invocation.
type Session struct {
	Args       []string      `json:"args"`
	ReturnCode ReturnCode    `json:"return_code"`
	Log        string        `json:"log,omitempty"` // tail of combined output
	Duration   time.Duration `json:"duration"`
}

// LogTail returns at most the last n bytes of the session log.
func (s Session) LogTail(n int) string {
	return truncate(s.Log, n)
}
