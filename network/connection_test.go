package network

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestEncodeDecode(t *testing.T) {
	body := []byte(`{"answer":"paris"}`)
	packet, err := Encode(MsgTypeSubmitAnswer, body)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(packet) != headerSize+len(body) {
		t.Fatalf("unexpected packet length %d", len(packet))
	}

	decoded, err := Decode(packet)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.MsgID != MsgTypeSubmitAnswer || decoded.Length != uint32(len(body)) || !bytes.Equal(decoded.Data, body) {
		t.Errorf("unexpected packet %+v", decoded)
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := Decode([]byte{0, 1, 0}); !errors.Is(err, io.ErrShortBuffer) {
		t.Errorf("short header should fail, got %v", err)
	}
	packet, _ := Encode(MsgTypeBuzzIn, []byte("{}"))
	if _, err := Decode(packet[:len(packet)-1]); !errors.Is(err, io.ErrShortBuffer) {
		t.Errorf("truncated body should fail, got %v", err)
	}
	huge := []byte{0, 1, 0xff, 0xff, 0xff, 0xff}
	if _, err := Decode(huge); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("oversized length should fail, got %v", err)
	}
	if _, err := Encode(MsgTypeBuzzIn, make([]byte, MaxPayload+1)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("oversized payload should fail, got %v", err)
	}
}

func TestWSConnection_EchoAndClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWSConnection(ws, 8)
		conn.SetHeartbeat(time.Second)
		packet, err := conn.ReadPacket()
		if err != nil {
			return
		}
		conn.Send(packet.MsgID+100, packet.Data)
		conn.Close()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	out, _ := Encode(MsgTypeCreateRoom, []byte(`{"userId":"u1"}`))
	if err := client.WriteMessage(websocket.BinaryMessage, out); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	reply, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if reply.MsgID != MsgTypeCreateRoom+100 || string(reply.Data) != `{"userId":"u1"}` {
		t.Errorf("unexpected reply %d %s", reply.MsgID, reply.Data)
	}

	if _, _, err := client.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected a normal close after the queued reply, got %v", err)
	}
}

func TestWSConnection_SendAfterClose(t *testing.T) {
	done := make(chan error, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			done <- err
			return
		}
		conn := NewWSConnection(ws, 1)
		conn.Close()
		done <- conn.Send(MsgTypeRoomState, []byte("{}"))
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("expected ErrConnectionClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server handler did not finish")
	}
}
