package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/client"
	"github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat client",
		RunE:  runChat,
	}

	flags := cmd.Flags()
	flags.String("url", "", "relay websocket url (default from config)")
	flags.String("user", "cli-user", "participant id")
	flags.String("name", "", "display name (defaults to the participant id)")
	flags.String("room", "general", "room to join")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	overrideString(cmd, "url", &cfg.Client.URL)
	user, _ := flags.GetString("user")
	name, _ := flags.GetString("name")
	room, _ := flags.GetString("room")
	level, _ := flags.GetString("log-level")
	if name == "" {
		name = user
	}

	logger := log.NewWithWriter(os.Stderr, level, "console")

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := cmd.OutOrStdout()
	var joinOnce sync.Once
	var c *client.Client
	c = client.New(client.Options{
		URL:                  cfg.Client.URL,
		UserID:               user,
		MaxReconnectAttempts: cfg.Client.MaxReconnectAttempts,
		ReconnectBase:        cfg.Client.ReconnectBase,
		ReconnectMax:         cfg.Client.ReconnectMax,
		Logger:               logger,
		OnStateChange: func(_, to client.State) {
			switch to {
			case client.StateOpen:
				// Later opens replay the join on their own.
				joinOnce.Do(func() {
					if err := c.JoinRoom(room); err != nil {
						fmt.Fprintf(out, "join %s: %v\n", room, err)
					}
				})
				fmt.Fprintf(out, "Connected to %s as %s in room %s\n", cfg.Client.URL, user, room)
			case client.StateGivenUp:
				fmt.Fprintln(out, "Connection lost, giving up.")
				cancel()
			case client.StateDisconnected:
				cancel()
			}
		},
		OnReconnect: func(attempt int, delay time.Duration) {
			fmt.Fprintf(out, "Reconnecting in %s (attempt %d)\n", delay, attempt)
		},
	})
	defer c.Close()

	c.On(proto.TypeNewMessage, func(env proto.Envelope) {
		msg := env.(proto.NewMessage)
		printMessage(out, msg)
	})
	c.On(proto.TypeError, func(env proto.Envelope) {
		e := env.(proto.Error)
		fmt.Fprintf(out, "error: %s %s\n", e.Code, e.Msg)
	})

	if err := c.Connect(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Type messages and press Enter to send. Ctrl+C to exit.")

	sendLines(ctx, cmd.InOrStdin(), func(text string) {
		err := c.SendMessage(room, proto.Message{
			Content: text,
			Sender:  &proto.Sender{ID: user, Name: name},
		})
		if err != nil {
			fmt.Fprintf(out, "not sent: %v\n", err)
		}
	})
	return nil
}

func printMessage(w io.Writer, msg proto.NewMessage) {
	var sender string
	if msg.Message.Sender != nil {
		sender = msg.Message.Sender.Name
	}
	if sender == "" {
		sender = msg.Message.SenderID
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", msg.RoomID, sender, msg.Message.Content)
}

func sendLines(ctx context.Context, in io.Reader, send func(string)) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			send(text)
		}
	}
}
