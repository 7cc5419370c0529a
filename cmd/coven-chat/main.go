// ABOUTME: Entry point for coven-chat, a terminal client for the chat server
// ABOUTME: Dispatches subcommands and wires config, logging and the REST client

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/coven-chat/internal/api"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/session"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                      _           _
  ___ _____   _____ _ __          ___| |__   __ _| |_
 / __/ _ \ \ / / _ \ '_ \ _____  / __| '_ \ / _' | __|
| (_| (_) \ V /  __/ | | |_____ | (__| | | | (_| | |_
 \___\___/ \_/ \___|_| |_|       \___|_| |_|\__,_|\__|
`

func printUsage() {
	fmt.Println("Usage: coven-chat <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init [--server URL]                    Write a starter config file")
	fmt.Println("  login --username NAME                  Sign in and store the session token")
	fmt.Println("  conversations                          List your conversations")
	fmt.Println("  history <conversation-id>              Print recent messages")
	fmt.Println("  send <conversation-id> <text>          Send a message")
	fmt.Println("  group --name NAME --members ID,ID      Create a group (or --id G to add members)")
	fmt.Println("  export <conversation-id> <file.html>   Write an HTML transcript")
	fmt.Println("  chat <conversation-id>                 Open a live chat session")
	fmt.Println("  version                                Print the version")
	fmt.Println()
	fmt.Println("Every command accepts --config PATH (default: $COVEN_CHAT_CONFIG or ~/.config/coven/chat.yaml).")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(args)
	case "login":
		err = runLogin(ctx, args)
	case "conversations":
		err = runConversations(ctx, args)
	case "history":
		err = runHistory(ctx, args)
	case "send":
		err = runSend(ctx, args)
	case "group":
		err = runGroup(ctx, args)
	case "export":
		err = runExport(ctx, args)
	case "chat":
		err = runChat(ctx, args)
	case "version", "--version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set carrying the shared --config flag.
func newFlagSet(name string) (*pflag.FlagSet, *string) {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", config.DefaultPath(), "config file path")
	return flags, configPath
}

// app holds what every networked command needs.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	client     *api.Client
}

func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	client := api.New(cfg.Server.BaseURL, cfg.Session.Token)
	client.Prefix = cfg.Server.APIPrefix

	return &app{
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		client:     client,
	}, nil
}

// identity checks the stored token locally, then asks the server who it
// belongs to. The channel is addressed by the returned user id.
func (a *app) identity(ctx context.Context) (session.Identity, error) {
	if a.cfg.Session.Token == "" {
		return session.Identity{}, errors.New("no session token configured; run `coven-chat login`")
	}

	tok, err := session.ParseToken(a.cfg.Session.Token, time.Now())
	if err != nil {
		if errors.Is(err, session.ErrExpiredToken) {
			return session.Identity{}, fmt.Errorf("%w; run `coven-chat login` again", err)
		}
		return session.Identity{}, fmt.Errorf("session token: %w", err)
	}

	me, err := a.client.Me(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return session.Identity{}, fmt.Errorf("server rejected the session token; run `coven-chat login` again: %w", err)
		}
		return session.Identity{}, fmt.Errorf("fetching profile: %w", err)
	}

	if tok.Subject != me.Username {
		a.logger.Warn("token subject does not match profile",
			"subject", tok.Subject,
			"username", me.Username)
	}

	return session.Identity{
		UserID:      me.ID,
		Username:    me.Username,
		DisplayName: me.DisplayName,
	}, nil
}

// requireArgs parses flags and checks the positional argument count.
func requireArgs(flags *pflag.FlagSet, args []string, n int, usage string) ([]string, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	rest := flags.Args()
	if len(rest) < n {
		return nil, fmt.Errorf("usage: coven-chat %s", usage)
	}
	return rest, nil
}
