// Package ipc carries control commands to a running listener over a unix
// socket, one JSON request and one JSON response per connection.
package ipc

import "fmt"

const (
	CommandStatus   = "status"
	CommandGrammars = "grammars"
	CommandActivate = "activate"
	CommandStop     = "stop"
)

type Request struct {
	Command string `json:"command"`
	Grammar string `json:"grammar,omitempty"`
}

// Validate rejects unknown commands and an activate without a grammar.
func (r Request) Validate() error {
	switch r.Command {
	case CommandStatus, CommandGrammars, CommandStop:
		return nil
	case CommandActivate:
		if r.Grammar == "" {
			return fmt.Errorf("activate requires a grammar name")
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", r.Command)
	}
}

type Response struct {
	OK            bool     `json:"ok"`
	State         string   `json:"state,omitempty"`
	Session       string   `json:"session,omitempty"`
	ActiveGrammar string   `json:"active_grammar,omitempty"`
	Grammars      []string `json:"grammars,omitempty"`
	Utterances    int      `json:"utterances,omitempty"`
	Message       string   `json:"message,omitempty"`
	Error         string   `json:"error,omitempty"`
}
