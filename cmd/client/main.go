// Command client is a terminal front end for chatrelay. It registers a
// username, turns slash commands into protocol actions, and renders the
// traffic of the current room.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/olekukonko/tablewriter"

	"chatrelay/internal/server"
)

const helpText = `commands:
  /create <room>   create a room
  /join <room>     switch to a room
  /leave           go back to the default room
  /rooms           list rooms and their occupancy
  /users [room]    list the members of a room
  /quit            disconnect
anything else is sent to your current room`

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "relay websocket endpoint")
	username := flag.String("username", "", "username to claim")
	flag.Parse()

	if *username == "" {
		fmt.Fprintln(os.Stderr, "usage: client -username <name> [-addr ws://host:port/ws]")
		os.Exit(2)
	}

	if err := runClient(*addr, *username); err != nil {
		color.Red.Printf("✗ %v\n", err)
		os.Exit(1)
	}
}

func runClient(addr, username string) error {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	// Registration handshake: the bare username frame, no envelope.
	if err := conn.WriteJSON(map[string]string{"username": username}); err != nil {
		return fmt.Errorf("sending registration: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- readLoop(conn)
	}()

	color.Gray.Println(helpText)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			break
		}
		if line == "/help" {
			color.Gray.Println(helpText)
			continue
		}

		msg, err := parseLine(line)
		if err != nil {
			color.Red.Printf("✗ %v\n", err)
			continue
		}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("sending message: %w", err)
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return <-done
}

// parseLine converts one input line into a protocol envelope.
func parseLine(line string) (server.Message, error) {
	if !strings.HasPrefix(line, "/") {
		return server.NewMessage(server.ActionSendMessage, map[string]any{"message": line}), nil
	}

	command, argument, _ := strings.Cut(line, " ")
	argument = strings.TrimSpace(argument)

	switch command {
	case "/create":
		if argument == "" {
			return server.Message{}, fmt.Errorf("usage: /create <room>")
		}
		return server.NewMessage(server.ActionCreateRoom, map[string]any{"room_name": argument}), nil
	case "/join":
		if argument == "" {
			return server.Message{}, fmt.Errorf("usage: /join <room>")
		}
		return server.NewMessage(server.ActionJoinRoom, map[string]any{"room_name": argument}), nil
	case "/leave":
		return server.NewMessage(server.ActionLeaveRoom, nil), nil
	case "/rooms":
		return server.NewMessage(server.ActionListRooms, nil), nil
	case "/users":
		data := map[string]any{}
		if argument != "" {
			data["room_name"] = argument
		}
		return server.NewMessage(server.ActionListUsers, data), nil
	default:
		return server.Message{}, fmt.Errorf("unknown command %s (try /help)", command)
	}
}

// readLoop renders every server frame until the connection closes.
func readLoop(conn *websocket.Conn) error {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		var msg server.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			color.Red.Printf("✗ unreadable frame: %v\n", err)
			continue
		}
		render(msg)
	}
}

func render(msg server.Message) {
	switch msg.Action {
	case server.ActionReceiveMessage:
		room := msg.StringField("room_name")
		sender := msg.StringField("username")
		text := msg.StringField("message")
		if sender == server.SystemUsername {
			color.Yellow.Printf("[%s] * %s\n", room, text)
			return
		}
		fmt.Printf("[%s] %s: %s\n", color.Cyan.Render(room), color.Bold.Render(sender), text)

	case server.ActionListRooms:
		renderRoomTable(msg)

	case server.ActionSuccess:
		color.Green.Printf("✓ %s\n", msg.StringField("message"))
		if users, ok := msg.Data["users"].([]any); ok {
			names := make([]string, 0, len(users))
			for _, u := range users {
				if name, ok := u.(string); ok {
					names = append(names, name)
				}
			}
			sort.Strings(names)
			fmt.Printf("  %s\n", strings.Join(names, ", "))
		}

	case server.ActionError:
		color.Red.Printf("✗ %s\n", msg.StringField("error"))

	default:
		color.Gray.Printf("? unhandled action %q\n", msg.Action)
	}
}

func renderRoomTable(msg server.Message) {
	rooms, ok := msg.Data["rooms"].(map[string]any)
	if !ok {
		return
	}

	names := make([]string, 0, len(rooms))
	for name := range rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Room", "Members"})
	for _, name := range names {
		count, _ := rooms[name].(float64)
		table.Append([]string{name, fmt.Sprintf("%d", int(count))})
	}
	table.Render()
}
