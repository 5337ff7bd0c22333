package api

import (
	"strings"

	"github.com/bryanchriswhite/hopper/internal/candidate"
	"github.com/bryanchriswhite/hopper/internal/daemon"
	herrors "github.com/bryanchriswhite/hopper/internal/errors"
)

// Command names accepted on the wire
const (
	CmdToggle   = "toggle"
	CmdShow     = "show"
	CmdHide     = "hide"
	CmdQuery    = "query"
	CmdSelect   = "select"
	CmdActivate = "activate"
	CmdQuit     = "quit"
	CmdRescan   = "rescan"
	CmdStatus   = "status"
)

// Request is one command sent by a client
type Request struct {
	Command string `json:"command"`
	Mode    string `json:"mode,omitempty"`
	Text    string `json:"text,omitempty"`
	Delta   int    `json:"delta,omitempty"`
}

// Response answers a Request. State is set on success.
type Response struct {
	OK    bool             `json:"ok"`
	Error string           `json:"error,omitempty"`
	Code  string           `json:"code,omitempty"`
	State *daemon.Snapshot `json:"state,omitempty"`
}

// Stream message types
const (
	MessageState    = "state"
	MessageResponse = "response"
)

// StreamMessage is pushed by the server over the websocket feed
type StreamMessage struct {
	Type     string           `json:"type"`
	State    *daemon.Snapshot `json:"state,omitempty"`
	Response *Response        `json:"response,omitempty"`
}

// Event converts a request into a daemon event
func (r Request) Event() (daemon.Event, error) {
	switch strings.ToLower(strings.TrimSpace(r.Command)) {
	case CmdToggle:
		return daemon.Toggle{}, nil
	case CmdShow:
		mode := candidate.AppLauncher
		if r.Mode != "" {
			m, err := candidate.ParseMode(r.Mode)
			if err != nil {
				return nil, herrors.Wrap(err, herrors.ErrCodeInvalidCommand, "invalid mode")
			}
			mode = m
		}
		return daemon.Show{Mode: mode}, nil
	case CmdHide:
		return daemon.Hide{}, nil
	case CmdQuery:
		return daemon.Query{Text: r.Text}, nil
	case CmdSelect:
		return daemon.Select{Delta: r.Delta}, nil
	case CmdActivate:
		return daemon.Activate{}, nil
	case CmdQuit:
		return daemon.Quit{}, nil
	case CmdRescan:
		return daemon.Rescan{}, nil
	case CmdStatus:
		return daemon.Status{}, nil
	case "":
		return nil, herrors.New(herrors.ErrCodeInvalidCommand, "missing command")
	}
	return nil, herrors.Newf(herrors.ErrCodeInvalidCommand, "unknown command %q", r.Command)
}

// NewResponse builds the reply for a processed command
func NewResponse(snap daemon.Snapshot, err error) Response {
	if err != nil {
		return ErrorResponse(err, &snap)
	}
	return Response{OK: true, State: &snap}
}

// ErrorResponse encodes err. snap may be nil.
func ErrorResponse(err error, snap *daemon.Snapshot) Response {
	code := herrors.GetCode(err)
	if code == "" {
		code = herrors.ErrCodeInternal
	}
	return Response{
		OK:    false,
		Error: herrors.Message(err),
		Code:  string(code),
		State: snap,
	}
}

// Err turns a failed response back into a coded error
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	code := herrors.ErrorCode(r.Code)
	if code == "" {
		code = herrors.ErrCodeInternal
	}
	return herrors.New(code, r.Error)
}
