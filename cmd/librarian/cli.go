package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/callbacks"
	"github.com/effective-security/librarian/chatmodel"
	"github.com/effective-security/librarian/config"
	"github.com/effective-security/librarian/encoding"
	"github.com/effective-security/librarian/mcp"
	"github.com/effective-security/librarian/pkg/llmutils"
	"github.com/effective-security/librarian/server"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/librarian", "cmd")

const usageText = `Usage:
  librarian [flags] <command> [args]

Commands:
  serve                 start the web UI and the JSON API
  tools                 list the tools
  call <tool> [json]    call a tool with JSON arguments
  catalog [format]      print the catalog as json, yaml or toml
  chat                  chat with the librarian, reading questions from stdin
  mcp                   serve the tools over MCP on stdin and stdout

Flags:
  -config <file>        config file
  -log-level <level>    TRACE|DEBUG|INFO|NOTICE|WARNING|ERROR|CRITICAL
  -verbose              print chat and tool events
`

// signals stop the serve command
var signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("librarian", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = io.WriteString(stderr, usageText)
	}

	cfgFile := fs.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "config file")
	logLevel := fs.String("log-level", "", "log level")
	verbose := fs.Bool("verbose", false, "print chat and tool events")
	if err := fs.Parse(args); err != nil {
		return err
	}

	remaining := fs.Args()
	if len(remaining) == 0 {
		fs.Usage()
		return errors.New("command is required")
	}

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.LogLevel = strings.ToUpper(*logLevel)
		if err = cfg.Validate(); err != nil {
			return err
		}
	}
	setupLogging(stderr, cfg.LogLevel)

	var printer callbacks.Handler
	if *verbose {
		printer = callbacks.NewPrinter(stderr, callbacks.ModeVerbose)
	}

	dir := ""
	if *cfgFile != "" {
		dir = filepath.Dir(*cfgFile)
	}
	rt, err := newRuntime(ctx, cfg, dir, printer)
	if err != nil {
		return err
	}
	defer rt.Close()

	cmd, cmdArgs := remaining[0], remaining[1:]
	switch cmd {
	case "serve":
		return runServe(ctx, rt)
	case "tools":
		_, err = io.WriteString(stdout, rt.registry.Descriptions())
		return err
	case "call":
		return runCall(ctx, rt, cmdArgs, stdout)
	case "catalog":
		return runCatalog(rt, cmdArgs, stdout)
	case "chat":
		return runChat(ctx, rt, stdin, stdout)
	case "mcp":
		return mcp.NewServer(rt.registry, "librarian", server.Version).ServeStdio(ctx, stdin, stdout)
	default:
		fs.Usage()
		return errors.Errorf("unknown command: %s", cmd)
	}
}

func setupLogging(w io.Writer, level string) {
	xlog.SetFormatter(xlog.NewStringFormatter(w))
	switch level {
	case "TRACE":
		xlog.SetGlobalLogLevel(xlog.TRACE)
	case "DEBUG":
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	case "NOTICE":
		xlog.SetGlobalLogLevel(xlog.NOTICE)
	case "WARNING":
		xlog.SetGlobalLogLevel(xlog.WARNING)
	case "ERROR":
		xlog.SetGlobalLogLevel(xlog.ERROR)
	case "CRITICAL":
		xlog.SetGlobalLogLevel(xlog.CRITICAL)
	default:
		xlog.SetGlobalLogLevel(xlog.INFO)
	}
}

func runServe(ctx context.Context, rt *runtime) error {
	opts := []server.Option{server.WithHistory(rt.history)}
	if rt.assistant != nil {
		opts = append(opts, server.WithAssistant(rt.assistant))
	} else {
		logger.KV(xlog.WARNING, "reason", "chat_disabled", "details", "no LLM providers configured")
	}

	app, err := server.New(rt.cfg.HTTPAddr, rt.catalog, rt.registry, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, signals...)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- app.Start()
	}()

	select {
	case err = <-done:
		return err
	case <-ctx.Done():
	}

	logger.KV(xlog.NOTICE, "status", "shutting_down")
	if err = app.Shutdown(context.Background()); err != nil {
		return err
	}
	return <-done
}

func runCall(ctx context.Context, rt *runtime, args []string, stdout io.Writer) error {
	if len(args) == 0 || len(args) > 2 {
		return errors.New("call requires <tool> [json]")
	}
	input := "{}"
	if len(args) == 2 {
		input = args[1]
	}
	_, err := fmt.Fprintln(stdout, rt.registry.Call(ctx, args[0], input))
	return err
}

func runCatalog(rt *runtime, args []string, stdout io.Writer) error {
	format := ""
	if len(args) > 0 {
		format = args[0]
	}
	mode, err := encoding.ParseMode(format)
	if err != nil {
		return err
	}
	bs, err := encoding.Marshal(mode, rt.catalog.Snapshot())
	if err != nil {
		return err
	}
	_, err = stdout.Write(bs)
	return err
}

// runChat reads questions line by line until EOF or /exit.
// /reset clears the history, /stats prints the usage of the chat.
func runChat(ctx context.Context, rt *runtime, stdin io.Reader, stdout io.Writer) error {
	if rt.assistant == nil {
		return errors.New("chat requires an LLM provider in the config")
	}

	chatID := chatmodel.NewChatID()
	ctx = chatmodel.WithChatContext(ctx, chatmodel.NewChatContext(chatID, nil))
	_, _ = fmt.Fprintf(stdout, "Chat %s with %s, type /exit to quit.\n", chatID, rt.assistant.Model().GetName())

	scanner := bufio.NewScanner(stdin)
	for {
		_, _ = io.WriteString(stdout, "> ")
		if !scanner.Scan() {
			_, _ = io.WriteString(stdout, "\n")
			return errors.WithStack(scanner.Err())
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if err := rt.history.Reset(ctx); err != nil {
				return err
			}
			rt.stats.Reset(chatID)
			_, _ = fmt.Fprintln(stdout, "History cleared.")
			continue
		case "/stats":
			s := rt.stats.Get(chatID)
			_, _ = fmt.Fprintf(stdout, "runs: %d, failed: %d, llm calls: %d, tool calls: %d, input tokens: %d, output tokens: %d\n",
				s.Runs, s.RunsFailed, s.LLMCalls, s.ToolCalls, s.LLMInputTokens, s.LLMOutputTokens)
			continue
		}

		reply, err := rt.assistant.Run(ctx, line)
		if err != nil {
			_, _ = fmt.Fprintf(stdout, "error: %s\n", err.Error())
			continue
		}
		_, _ = io.WriteString(stdout, llmutils.EnsureEndsWithNewline(reply))
	}
}
