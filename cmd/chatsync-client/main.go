// Command chatsync-client is a minimal terminal chat client built on the
// sync agent. It prints the mirror after every applied event and reads
// outgoing messages from stdin:
//
//	<text>            create a message
//	/edit <id> <text> update a message
//	/rm <id>          delete a message
//	/retry            retry after the agent failed
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chatsync/chatsync/client"
	v1 "github.com/chatsync/chatsync/protocol/v1"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	var (
		wsURL = flag.String("url", "ws://127.0.0.1:3001/ws", "WebSocket URL")
		user  = flag.String("user", defaultUser(), "User name attached to created messages")
		quiet = flag.Bool("q", false, "Suppress agent logs")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *quiet {
		logLevel = slog.LevelError
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	agent, err := client.NewAgent(client.Options{
		URL:    *wsURL,
		Logger: log,
		OnEvent: func(ev v1.Event) {
			fmt.Printf("-- %s --\n", ev.Type)
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- agent.Run(ctx) }()
	defer func() { _ = agent.Close() }()

	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			handleLine(agent, *user, line)
		}
		cancel()
	}()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastRendered int
	for {
		select {
		case err := <-runDone:
			return err
		case <-ticker.C:
			msgs := agent.Messages()
			if len(msgs) == lastRendered {
				continue
			}
			lastRendered = len(msgs)
			render(msgs)
		}
	}
}

func handleLine(agent *client.Agent, user, line string) {
	var req v1.Request

	switch {
	case line == "/retry":
		agent.Retry()
		return

	case strings.HasPrefix(line, "/edit "):
		rest := strings.TrimPrefix(line, "/edit ")
		idStr, text, ok := strings.Cut(rest, " ")
		if !ok {
			fmt.Fprintln(os.Stderr, "usage: /edit <id> <text>")
			return
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad id:", idStr)
			return
		}
		req = v1.Request{Type: v1.TypeUpdate, ID: id, Text: text}

	case strings.HasPrefix(line, "/rm "):
		idStr := strings.TrimSpace(strings.TrimPrefix(line, "/rm "))
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad id:", idStr)
			return
		}
		req = v1.Request{Type: v1.TypeDelete, ID: id}

	default:
		req = v1.Request{Type: v1.TypeCreate, User: user, Text: line}
	}

	if !agent.TrySend(req) {
		fmt.Fprintf(os.Stderr, "not connected (%s): queued as pending\n", agent.State())
	}
}

func render(msgs []v1.Message) {
	fmt.Printf("---- %d messages ----\n", len(msgs))
	for _, m := range msgs {
		ts := time.UnixMilli(m.Timestamp).Format("15:04:05")
		fmt.Printf("[%d] %s %s: %s\n", m.ID, ts, m.User, m.Text)
	}
}

func defaultUser() string {
	return fmt.Sprintf("user-%d", os.Getpid())
}
