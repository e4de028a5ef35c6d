/*
Package main is the relaychat terminal client.

It wires a websocket event channel into a session controller and renders the
resulting state snapshots as plain terminal output. All chat semantics live in the
session package; this binary only reads snapshots and forwards line commands.
*/
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/rs/zerolog"

	"relaychat/internal/app/session"
	"relaychat/internal/configs"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/transport"
)

const joinTimeout = 10 * time.Second

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Keep transport/session noise off the chat display; warnings still reach stderr.
	logx.InitGlobalLogger(true)
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	channel := transport.NewWSChannel(cfg.ServerURL)

	controller := session.NewController(channel, session.Options{
		Notify:    printToast,
		TypingTTL: cfg.TypingTTL,
	})
	controller.Start()
	defer controller.Stop()

	stdin := bufio.NewScanner(os.Stdin)

	if !join(controller, stdin) {
		return
	}

	go renderLoop(controller)

	color.Bold.Println("Connected. Type to chat, /help for commands.")

	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			_ = controller.NotifyTyping()
			if err := controller.SendPublicMessage(line); err != nil {
				printError(err)
			}
			continue
		}

		if quit := runCommand(controller, line); quit {
			return
		}
	}
}

// join prompts for a username until the server accepts one.
func join(controller *session.Controller, stdin *bufio.Scanner) bool {
	for {
		color.Bold.Print("Enter your name: ")
		if !stdin.Scan() {
			return false
		}

		username := strings.TrimSpace(stdin.Text())

		ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		err := controller.Join(ctx, username)
		cancel()

		if err == nil {
			return true
		}

		printError(err)
	}
}

// runCommand executes one slash command. It returns true when the client should quit.
func runCommand(controller *session.Controller, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		fmt.Println("/users            list the roster")
		fmt.Println("/to <name>        select a user for private messages")
		fmt.Println("/msg <text>       send a private message to the selected user")
		fmt.Println("/quit             leave the chat")

	case "/users":
		printRoster(controller.Snapshot())

	case "/to":
		if err := selectPeerByName(controller, arg); err != nil {
			printError(err)
		}

	case "/msg":
		_ = controller.NotifyTyping()
		if err := controller.SendPrivateMessage(arg); err != nil {
			printError(err)
		}

	case "/quit":
		return true

	default:
		color.Yellow.Printf("Unknown command %q, try /help\n", cmd)
	}

	return false
}

// selectPeerByName resolves a username (or raw ID) against the roster and selects it.
func selectPeerByName(controller *session.Controller, name string) error {
	snap := controller.Snapshot()

	target := name
	for _, u := range snap.Users {
		if u.Username == name {
			target = u.ID
			break
		}
	}

	if err := controller.SelectPeer(target); err != nil {
		return err
	}

	color.Cyan.Printf("Now messaging %s privately (/msg <text>)\n", name)
	return nil
}

// printRoster renders the user list with presence and unread markers.
func printRoster(snap session.Snapshot) {
	for _, u := range snap.Users {
		dot := color.Green.Sprint("●")
		if !u.Connected {
			dot = color.Red.Sprint("●")
		}

		label := u.Username
		if u.Self {
			label += " (yourself)"
		}
		if u.ID == snap.SelectedPeer {
			label += " (selected)"
		}
		if u.HasNewMessages {
			label += color.Red.Sprintf(" +%d", len(u.Messages))
		}

		fmt.Printf("%s %s\n", dot, label)
	}
}

// renderLoop prints feed and typing updates as the controller signals changes.
func renderLoop(controller *session.Controller) {
	publicSeen := 0
	privateSeen := make(map[string]int)
	lastTyping := ""

	for range controller.Changes() {
		snap := controller.Snapshot()

		for _, m := range snap.PublicFeed[publicSeen:] {
			color.Bold.Printf("%s", m.Name)
			fmt.Printf(" - %s\n", m.Message)
		}
		publicSeen = len(snap.PublicFeed)

		for _, u := range snap.Users {
			for _, m := range u.Messages[privateSeen[u.ID]:] {
				if m.FromSelf {
					color.Cyan.Printf("(you → %s)", u.Username)
				} else {
					color.Cyan.Printf("(%s → you)", u.Username)
				}
				fmt.Printf(" %s\n", m.Message)
			}
			privateSeen[u.ID] = len(u.Messages)
		}

		if snap.Typing != lastTyping {
			if snap.Typing != "" {
				color.Gray.Printf("%s is typing...\n", snap.Typing)
			}
			lastTyping = snap.Typing
		}
	}
}

// printToast renders controller notifications (joins, departures, rejections).
func printToast(kind session.NotifyKind, text string) {
	if kind == session.NotifyError {
		color.Red.Println(text)
		return
	}
	color.Green.Println(text)
}

func printError(err error) {
	color.Red.Printf("error: %v\n", err)
}
