package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/cli"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/doctor"
	"github.com/rbright/murmur/internal/engine"
	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/logging"
	"github.com/rbright/murmur/internal/publish"
	"github.com/rbright/murmur/internal/recognizer"
	"github.com/rbright/murmur/internal/session"
	"github.com/rbright/murmur/internal/telemetry"
	"github.com/rbright/murmur/internal/version"
)

const (
	forwardTimeout  = 220 * time.Millisecond
	trailingSilence = 500 * time.Millisecond
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// OpenEngine overrides engine.Open for listen.
	OpenEngine func(backend string, cfg engine.Config) (engine.Decoder, error)
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("murmur"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("murmur"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(cfgLoaded.Config.Log.Level)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandCheck:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandGrammars:
		return r.commandGrammars(ctx)
	case cli.CommandActivate:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandActivate, Grammar: parsed.Grammar})
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandStop})
	case cli.CommandListen:
		stateDir := filepath.Dir(logRuntime.Path)
		return r.commandListen(ctx, cfgLoaded.Config, parsed.InputPath, stateDir, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus})
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.State == "" {
		resp.State = "idle"
	}

	line := resp.State
	if resp.Session != "" {
		line += " session=" + resp.Session
	}
	if resp.ActiveGrammar != "" {
		line += " grammar=" + resp.ActiveGrammar
	}
	if resp.Session != "" {
		line += fmt.Sprintf(" utterances=%d", resp.Utterances)
	}
	fmt.Fprintln(r.Stdout, line)
	return 0
}

func (r Runner) commandGrammars(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandGrammars})
	if !handled {
		fmt.Fprintln(r.Stderr, "error: no running murmur listener")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(resp.Grammars) == 0 {
		fmt.Fprintln(r.Stdout, "no grammars loaded")
		return 0
	}
	for _, name := range resp.Grammars {
		mark := " "
		if name == resp.ActiveGrammar {
			mark = "*"
		}
		fmt.Fprintf(r.Stdout, "%s %s\n", mark, name)
	}
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, req)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: no running murmur listener")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandListen(ctx context.Context, cfg config.Config, inputPath string, stateDir string, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: a murmur listener is already running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	tel, err := telemetry.Setup("murmur", version.Version, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()
	if cfg.Metrics.Listen != "" {
		if err := tel.Serve(cfg.Metrics.Listen); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
	}

	opts := session.Options{
		Logger:     logger,
		Meter:      tel.Meter("github.com/rbright/murmur/recognizer"),
		Output:     r.Stdout,
		DumpDir:    filepath.Join(stateDir, "dumps"),
		OpenEngine: r.OpenEngine,
	}
	if cfg.Publish.NATSURL != "" {
		pub, err := publish.Connect(publish.Config{URL: cfg.Publish.NATSURL, Subject: cfg.Publish.Subject}, logger)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		defer pub.Close()
		opts.Publisher = pub
	}

	controller, err := session.New(cfg, opts)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("session setup failed", "error", err.Error())
		return 1
	}

	src, closeSource, err := openSource(ctx, cfg.Audio, inputPath)
	if err != nil {
		_ = controller.Close()
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("audio source failed", "error", err.Error())
		return 1
	}
	defer closeSource()

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	result := controller.Run(ctx, src)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logSessionResult(logger, result)

	if result.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}
	return 0
}

// openSource returns live Pulse capture, or the WAV file at inputPath.
func openSource(ctx context.Context, cfg config.AudioConfig, inputPath string) (recognizer.Source, func(), error) {
	if strings.TrimSpace(inputPath) != "" {
		src, err := audio.OpenWAV(inputPath, cfg.BlockFrames, trailingSilence)
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil
	}

	capture, err := audio.StartCapture(ctx, audio.CaptureConfig{
		Source:      cfg.Source,
		SampleRate:  cfg.SampleRate,
		Channels:    cfg.Channels,
		BlockFrames: cfg.BlockFrames,
	})
	if err != nil {
		return nil, nil, err
	}
	return capture, capture.Close, nil
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"session_id", result.SessionID,
		"reason", result.Reason,
		"state", result.State,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"utterances", result.Utterances,
		"dispatched", result.Dispatched,
		"publish_errors", result.PublishErrors,
	}
	if result.AudioDump != "" {
		fields = append(fields, "audio_dump", result.AudioDump)
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, forwardTimeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if ipc.IsNotRunning(err) {
		return ipc.Response{}, false, nil
	}
	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}
