package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newConnectCommand() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a relay, greet it, and relay stdin lines",
		Long: `Connect to a relay and send GREET. Each stdin line is then sent as:

  /to <id> <text>   TEXT to a single client
  /say <text>       TEXT with no destination (logged by the relay only)
  anything else     BROADCAST to every other client`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), url, nil)
			if err != nil {
				return errors.Wrapf(err, "dial %s", url)
			}
			defer conn.Close()
			return runSession(cmd.Context(), conn, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://localhost:"+DefaultPort+DefaultPath, "relay websocket URL")
	return cmd
}

// session tracks the identifier the relay granted us.
type session struct {
	conn    *websocket.Conn
	out     io.Writer
	granted chan string
}

func runSession(ctx context.Context, conn *websocket.Conn, in io.Reader, out io.Writer) error {
	s := &session{conn: conn, out: out, granted: make(chan string, 1)}
	if err := s.send(MessageGreet, Message{}); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(s.readLoop)
	g.Go(func() error {
		var id string
		select {
		case id = <-s.granted:
		case <-ctx.Done():
			return nil
		}
		err := s.writeLoop(id, in)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return err
	})
	return g.Wait()
}

func (s *session) send(messageType MessageType, payload Message) error {
	data, err := Encode(messageType, payload)
	if err != nil {
		return err
	}
	return errors.Wrap(s.conn.WriteMessage(websocket.TextMessage, data), "write")
}

func (s *session) readLoop() error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return errors.Wrap(err, "read")
		}
		msg, ok := Decode(data)
		if !ok {
			continue
		}
		switch msg.MessageType {
		case MessageGrantIdentifier:
			fmt.Fprintf(s.out, "granted identifier %s\n", msg.ID)
			select {
			case s.granted <- msg.ID:
			default:
			}
		case MessageBroadcast:
			fmt.Fprintf(s.out, "[%s] %s\n", msg.ID, msg.Broadcast)
		case MessageText:
			fmt.Fprintf(s.out, "[%s -> you] %s\n", msg.ID, msg.Text)
		default:
			log.Debug().Str("message_type", string(msg.MessageType)).Msg("ignoring message")
		}
	}
}

func (s *session) writeLoop(id string, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		messageType, payload := parseInput(id, line)
		if err := s.send(messageType, payload); err != nil {
			return err
		}
	}
	return errors.Wrap(scanner.Err(), "read stdin")
}

// parseInput maps one input line onto an outbound message.
func parseInput(id, line string) (MessageType, Message) {
	switch {
	case strings.HasPrefix(line, "/to "):
		rest := strings.TrimSpace(strings.TrimPrefix(line, "/to "))
		dest, text, _ := strings.Cut(rest, " ")
		return MessageText, Message{ID: id, Destination: dest, Text: strings.TrimSpace(text)}
	case strings.HasPrefix(line, "/say "):
		return MessageText, Message{ID: id, Text: strings.TrimSpace(strings.TrimPrefix(line, "/say "))}
	default:
		return MessageBroadcast, Message{ID: id, Broadcast: line}
	}
}
