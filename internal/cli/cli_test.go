package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/murmur.jsonc", "check"})
	require.NoError(t, err)
	require.Equal(t, CommandCheck, parsed.Command)
	require.Equal(t, "/tmp/murmur.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantErr     string
		wantCmd     Command
		wantHelp    bool
		wantPath    string
		wantInput   string
		wantGrammar string
	}{
		{name: "help short flag", args: []string{"-h"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "help long flag", args: []string{"--help"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "version flag", args: []string{"--version"}, wantCmd: CommandVersion},
		{name: "config after command", args: []string{"status", "--config", "/tmp/cfg"}, wantErr: "unexpected arguments after command"},
		{name: "missing config path", args: []string{"--config"}, wantErr: "requires a path"},
		{name: "unknown flag", args: []string{"--bogus"}, wantErr: "unknown flag"},
		{name: "unknown command", args: []string{"toggle"}, wantErr: "unknown command"},
		{name: "extra args after check", args: []string{"check", "extra"}, wantErr: "unexpected arguments"},
		{name: "listen live", args: []string{"listen"}, wantCmd: CommandListen},
		{name: "listen from file", args: []string{"--config", "/tmp/cfg", "listen", "--input", "/tmp/in.wav"}, wantCmd: CommandListen, wantPath: "/tmp/cfg", wantInput: "/tmp/in.wav"},
		{name: "listen missing input", args: []string{"listen", "--input"}, wantErr: "--input requires"},
		{name: "listen stray arg", args: []string{"listen", "now"}, wantErr: "unexpected arguments"},
		{name: "activate", args: []string{"activate", "menu"}, wantCmd: CommandActivate, wantGrammar: "menu"},
		{name: "activate missing name", args: []string{"activate"}, wantErr: "exactly one grammar"},
		{name: "activate two names", args: []string{"activate", "a", "b"}, wantErr: "exactly one grammar"},
		{name: "stop with config", args: []string{"--config", "/tmp/cfg", "stop"}, wantCmd: CommandStop, wantPath: "/tmp/cfg"},
		{name: "grammars", args: []string{"grammars"}, wantCmd: CommandGrammars},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
			require.Equal(t, tc.wantInput, parsed.InputPath)
			require.Equal(t, tc.wantGrammar, parsed.Grammar)
		})
	}
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("murmur")
	for _, want := range []string{"listen", "activate NAME", "grammars", "status", "stop", "check", "--config PATH"} {
		require.Contains(t, text, want)
	}
}
