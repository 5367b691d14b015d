package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		line     string
		wantType MessageType
		want     Message
	}{
		{"hello everyone", MessageBroadcast, Message{ID: "me", Broadcast: "hello everyone"}},
		{"/to abc hi there", MessageText, Message{ID: "me", Destination: "abc", Text: "hi there"}},
		{"/to abc", MessageText, Message{ID: "me", Destination: "abc"}},
		{"/say just logging", MessageText, Message{ID: "me", Text: "just logging"}},
	}
	for _, tt := range tests {
		gotType, got := parseInput("me", tt.line)
		require.Equal(t, tt.wantType, gotType, tt.line)
		require.Equal(t, tt.want, got, tt.line)
	}
}

func TestRunSessionAgainstServer(t *testing.T) {
	_, ts := startTestServer(t, nil)
	peer := dial(t, ts, "/")
	greetOverWire(t, peer)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- runSession(ctx, conn, strings.NewReader("hello from stdin\n"), &out)
	}()

	msg := readMessage(t, peer)
	require.Equal(t, MessageBroadcast, msg.MessageType)
	require.Equal(t, "hello from stdin", msg.Broadcast)
	require.NotEmpty(t, msg.ID)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish after stdin closed")
	}
	require.Contains(t, out.String(), "granted identifier "+msg.ID)
}
