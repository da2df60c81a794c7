package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandListen   Command = "listen"
	CommandActivate Command = "activate"
	CommandGrammars Command = "grammars"
	CommandStatus   Command = "status"
	CommandStop     Command = "stop"
	CommandCheck    Command = "check"
	CommandVersion  Command = "version"
	CommandHelp     Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandListen:   {},
	CommandActivate: {},
	CommandGrammars: {},
	CommandStatus:   {},
	CommandStop:     {},
	CommandCheck:    {},
	CommandVersion:  {},
	CommandHelp:     {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	// InputPath replaces live capture with a WAV file (listen only).
	InputPath string
	// Grammar is the name to activate (activate only).
	Grammar string
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if err := parseCommandArgs(&parsed, args[i+1:]); err != nil {
				return Parsed{}, err
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

func parseCommandArgs(parsed *Parsed, rest []string) error {
	switch parsed.Command {
	case CommandListen:
		for i := 0; i < len(rest); i++ {
			if rest[i] != "--input" {
				return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
			}
			i++
			if i >= len(rest) || strings.TrimSpace(rest[i]) == "" {
				return errors.New("--input requires a WAV path")
			}
			parsed.InputPath = rest[i]
		}
		return nil
	case CommandActivate:
		if len(rest) != 1 || strings.TrimSpace(rest[0]) == "" {
			return errors.New("activate requires exactly one grammar name")
		}
		parsed.Grammar = strings.TrimSpace(rest[0])
		return nil
	default:
		if len(rest) > 0 {
			return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
		}
		return nil
	}
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command>

Commands:
  listen [--input WAV]  Recognize continuously from the microphone (or a WAV file)
  activate NAME         Switch the running listener to grammar NAME
  grammars              List grammars loaded by the running listener
  status                Print listener state, session and active grammar
  stop                  Stop the running listener
  check                 Run configuration and environment checks
  version               Print version information
  help                  Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/murmur/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
