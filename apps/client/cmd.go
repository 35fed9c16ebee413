package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/literate-limited/beeline/core"
	"github.com/literate-limited/beeline/core/call"
	"github.com/literate-limited/beeline/core/session"
)

// pairResolver derives a chat id from the two participant ids. The production
// resolver is the REST backend's get-or-create endpoint; the stub server is
// happy with any stable id both sides agree on.
type pairResolver struct {
	userID string
}

func (r pairResolver) GetOrCreateChat(_ context.Context, peerID string) (string, error) {
	return PairChatID(r.userID, peerID), nil
}

// PairChatID builds the deterministic id used against the stub server.
func PairChatID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return "chat-" + strings.Join(ids, "-")
}

type commandLine struct {
	sess *session.Session
}

func (cli *commandLine) printUsage() {
	fmt.Println("Commands:")
	fmt.Println("  open <peer>                 - open (or restore) the chat window for a peer")
	fmt.Println("  msg <peer> <text>           - send a message")
	fmt.Println("  typing <peer>               - simulate a keystroke in the peer's chat")
	fmt.Println("  log <peer>                  - print the chat log")
	fmt.Println("  who                         - list online peers")
	fmt.Println("  windows                     - list open windows")
	fmt.Println("  min|restore|close <peer>    - window controls")
	fmt.Println("  call <peer> <audio|video>   - start a call")
	fmt.Println("  accept|reject|hangup <peer> - call controls")
	fmt.Println("  quit")
}

func (cli *commandLine) run() {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" {
			return
		}
		if err := cli.exec(fields); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func (cli *commandLine) exec(fields []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := fields[0]
	args := fields[1:]
	switch cmd {
	case "min", "restore", "close", "accept", "reject", "hangup":
		if len(args) < 1 {
			return fmt.Errorf("usage: %s <peer>", cmd)
		}
	}
	switch cmd {
	case "help":
		cli.printUsage()

	case "open":
		if len(args) < 1 {
			return fmt.Errorf("usage: open <peer>")
		}
		if _, err := cli.sess.OpenChat(ctx, args[0]); err != nil {
			return err
		}

	case "msg":
		if len(args) < 2 {
			return fmt.Errorf("usage: msg <peer> <text>")
		}
		cli.sess.JoinChat(cli.chatID(args[0]))
		_, err := cli.sess.SendMessage(cli.chatID(args[0]), strings.Join(args[1:], " "))
		return err

	case "typing":
		if len(args) < 1 {
			return fmt.Errorf("usage: typing <peer>")
		}
		cli.sess.Typing().NotifyTyping(cli.chatID(args[0]), true)

	case "log":
		if len(args) < 1 {
			return fmt.Errorf("usage: log <peer>")
		}
		for _, m := range cli.sess.Chat().Log().Messages(cli.chatID(args[0])) {
			marker := ""
			if m.Pending {
				marker = " (sending...)"
			}
			fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Format("15:04:05"), m.SenderID, m.Content, marker)
		}

	case "who":
		for _, id := range cli.sess.Presence().Online() {
			fmt.Println(id)
		}

	case "windows":
		for _, w := range cli.sess.Windows().Windows() {
			state := "visible"
			if w.Minimized {
				state = "minimized"
			}
			fmt.Printf("%s (%s)\n", w.PeerID, state)
		}

	case "min":
		return cli.sess.Windows().Minimize(args[0])
	case "restore":
		return cli.sess.Windows().Restore(args[0])
	case "close":
		cli.sess.Windows().Close(args[0])

	case "call":
		if len(args) < 2 {
			return fmt.Errorf("usage: call <peer> <audio|video>")
		}
		if err := cli.sess.Calls().StartCall(ctx, cli.chatID(args[0]), args[0], call.Type(args[1])); err != nil {
			return err
		}
		cli.printRoom(cli.chatID(args[0]))

	case "accept":
		if err := cli.sess.Calls().Accept(ctx, cli.chatID(args[0])); err != nil {
			return err
		}
		cli.sess.Calls().ConferenceJoined(cli.chatID(args[0]))
		cli.printRoom(cli.chatID(args[0]))

	case "reject":
		return cli.sess.Calls().Reject(cli.chatID(args[0]))

	case "hangup":
		return cli.sess.Calls().Hangup(cli.chatID(args[0]))

	default:
		cli.printUsage()
	}
	return nil
}

func (cli *commandLine) chatID(peerID string) string {
	return PairChatID(cli.sess.UserID(), peerID)
}

// printRoom shows the conference room the widget would join for this call.
func (cli *commandLine) printRoom(chatID string) {
	if sess, ok := cli.sess.Calls().Session(chatID); ok {
		fmt.Println("conference room:", call.RoomName(core.Conf.Conference.AppID, sess.RoomID))
	}
}
