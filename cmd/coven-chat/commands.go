// ABOUTME: One-shot subcommands: init, login, conversations, history, send, group, export
// ABOUTME: Each parses its own pflag set and talks to the REST API

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/coven-chat/internal/api"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/dispatch"
	"github.com/2389/coven-chat/internal/messages"
	"github.com/2389/coven-chat/internal/transcript"
)

// tokenEnvVar is where login stores the session token; the starter config
// references it as ${COVEN_CHAT_TOKEN}.
const tokenEnvVar = "COVEN_CHAT_TOKEN"

func runInit(args []string) error {
	flags, configPath := newFlagSet("init")
	server := flags.String("server", "", "chat server base URL")
	force := flags.Bool("force", false, "overwrite an existing config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*configPath); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", *configPath)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(*configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(*configPath, []byte(config.Starter(*server)), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	color.Cyan(banner)
	color.Green("    ▶ Config written to %s", *configPath)
	fmt.Println("    Next: coven-chat login --username <name>")
	return nil
}

func runLogin(ctx context.Context, args []string) error {
	flags, configPath := newFlagSet("login")
	username := flags.StringP("username", "u", "", "username")
	password := flags.String("password", "", "password (prompted when empty)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("usage: coven-chat login --username NAME")
	}

	a, err := loadApp(*configPath)
	if err != nil {
		return err
	}

	if *password == "" {
		fmt.Print("Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		*password = strings.TrimRight(line, "\r\n")
	}

	anon := *a.client
	anon.Token = ""
	resp, err := anon.Login(ctx, *username, *password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	envPath := filepath.Join(filepath.Dir(a.configPath), ".env")
	env, err := godotenv.Read(envPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading %s: %w", envPath, err)
		}
		env = map[string]string{}
	}
	env[tokenEnvVar] = resp.AccessToken
	if err := godotenv.Write(env, envPath); err != nil {
		return fmt.Errorf("writing %s: %w", envPath, err)
	}
	if err := os.Chmod(envPath, 0o600); err != nil {
		return fmt.Errorf("securing %s: %w", envPath, err)
	}

	color.Green("Signed in as %s (%s)", resp.User.DisplayName, resp.User.Username)
	fmt.Printf("Token saved to %s\n", envPath)
	return nil
}

func runConversations(ctx context.Context, args []string) error {
	flags, configPath := newFlagSet("conversations")
	if err := flags.Parse(args); err != nil {
		return err
	}

	a, err := loadApp(*configPath)
	if err != nil {
		return err
	}
	me, err := a.identity(ctx)
	if err != nil {
		return err
	}

	convs, err := a.client.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}
	if len(convs) == 0 {
		fmt.Println("No conversations yet")
		return nil
	}

	now := time.Now()
	for _, c := range convs {
		printConversation(os.Stdout, c, me.UserID, now)
	}
	return nil
}

// fetchHistory loads a conversation's recent messages through a Store so
// they come out ordered and de-duplicated.
func (a *app) fetchHistory(ctx context.Context, store *messages.Store, conversationID string, limit int) (int, error) {
	if limit <= 0 {
		limit = a.cfg.History.Limit
	}
	history, err := a.client.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return 0, fmt.Errorf("loading history: %w", err)
	}
	return store.Load(conversationID, history), nil
}

func runHistory(ctx context.Context, args []string) error {
	flags, configPath := newFlagSet("history")
	limit := flags.IntP("limit", "n", 0, "number of messages (default history.limit)")
	rest, err := requireArgs(flags, args, 1, "history <conversation-id> [--limit N]")
	if err != nil {
		return err
	}
	conversationID := rest[0]

	a, err := loadApp(*configPath)
	if err != nil {
		return err
	}
	me, err := a.identity(ctx)
	if err != nil {
		return err
	}

	store := messages.NewStore(a.logger)
	n, err := a.fetchHistory(ctx, store, conversationID, *limit)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("No messages")
		return nil
	}

	now := time.Now()
	for m := range store.Snapshot(conversationID) {
		printMessage(os.Stdout, m, me.UserID, now)
	}
	return nil
}

func runSend(ctx context.Context, args []string) error {
	flags, configPath := newFlagSet("send")
	rest, err := requireArgs(flags, args, 2, "send <conversation-id> <text>")
	if err != nil {
		return err
	}
	conversationID := rest[0]
	content, err := dispatch.Validate(conversationID, strings.Join(rest[1:], " "))
	if err != nil {
		return err
	}

	a, err := loadApp(*configPath)
	if err != nil {
		return err
	}

	m, err := a.client.SendMessage(ctx, conversationID, content)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	a.logger.Debug("message sent", "conversation_id", conversationID, "message_id", m.ID)
	color.Green("sent %s", m.ID)
	return nil
}

func runGroup(ctx context.Context, args []string) error {
	flags, configPath := newFlagSet("group")
	name := flags.String("name", "", "group name")
	description := flags.String("description", "", "group description")
	members := flags.StringSlice("members", nil, "comma-separated user ids")
	groupID := flags.String("id", "", "existing group to add members to")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if len(*members) == 0 {
		return errors.New("usage: coven-chat group --name NAME --members ID,ID | --id GROUP --members ID,ID")
	}

	a, err := loadApp(*configPath)
	if err != nil {
		return err
	}

	if *groupID != "" {
		if err := a.client.AddParticipants(ctx, *groupID, *members); err != nil {
			if errors.Is(err, api.ErrForbidden) {
				return fmt.Errorf("you are not a member of group %s: %w", *groupID, err)
			}
			return fmt.Errorf("adding participants: %w", err)
		}
		color.Green("added %s to %s", humanize.Comma(int64(len(*members)))+" member(s)", *groupID)
		return nil
	}

	if strings.TrimSpace(*name) == "" {
		return errors.New("--name is required to create a group")
	}
	g, err := a.client.CreateGroup(ctx, *name, *description, *members)
	if err != nil {
		return fmt.Errorf("creating group: %w", err)
	}
	color.Green("created group %s (%s) with %d participants", g.GroupName, g.ID, len(g.Participants))
	return nil
}

func runExport(ctx context.Context, args []string) error {
	flags, configPath := newFlagSet("export")
	limit := flags.IntP("limit", "n", 0, "number of messages (default history.limit)")
	rest, err := requireArgs(flags, args, 2, "export <conversation-id> <file.html> [--limit N]")
	if err != nil {
		return err
	}
	conversationID, outPath := rest[0], rest[1]

	a, err := loadApp(*configPath)
	if err != nil {
		return err
	}
	me, err := a.identity(ctx)
	if err != nil {
		return err
	}

	store := messages.NewStore(a.logger)
	n, err := a.fetchHistory(ctx, store, conversationID, *limit)
	if err != nil {
		return err
	}

	title := conversationID
	if convs, err := a.client.ListConversations(ctx); err == nil {
		for _, c := range convs {
			if c.ID == conversationID {
				title = c.Title(me.UserID)
				break
			}
		}
	} else {
		a.logger.Warn("could not resolve conversation title", "error", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	if err := transcript.Render(f, title, store.Snapshot(conversationID), transcript.Options{SelfID: me.UserID}); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", outPath, err)
	}

	size := int64(0)
	if info, err := os.Stat(outPath); err == nil {
		size = info.Size()
	}
	color.Green("exported %d messages to %s (%s)", n, outPath, humanize.Bytes(uint64(size)))
	return nil
}
