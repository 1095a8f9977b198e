package main

import (
	"bufio"
	"encoding/json"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
	"github.com/wfunc/quizserver/network"
)

const usage = `commands:
  user <name>          register a display name
  create               create a session
  join <code>          join a session
  watch <code>         spectate a session
  list                 list sessions
  leave                leave the current session
  start                start the game (host)
  pick <questionId>    select a question
  buzz                 buzz in
  answer <text>        answer the open question
  wager <n>            daily double wager
  fwager <n>           final round wager
  fanswer <text>       final round answer
  stats                show your stats`

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, payload any) error {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return err
		}
	}
	packet, err := network.Encode(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	host := pflag.StringP("addr", "a", "localhost:8080", "server address")
	userID := pflag.StringP("user", "u", "", "stable user id (minted by the server when empty)")
	name := pflag.StringP("name", "n", "Player", "display name")
	pflag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	created := make(chan string, 1)

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packet, err := network.Decode(message)
			if err != nil {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			if packet.MsgID == network.MsgTypeUserCreated {
				var uc network.UserCreated
				if json.Unmarshal(packet.Data, &uc) == nil {
					select {
					case created <- uc.UserID:
					default:
					}
				}
			}
			if packet.MsgID == network.MsgTypeRoomState {
				continue
			}
			log.Printf("<- RECV (ID: %d): %s", packet.MsgID, string(packet.Data))
		}
	}()

	if err := send(c, network.MsgTypeCreateUser, network.CreateUserRequest{UserID: *userID, Name: *name}); err != nil {
		log.Println("Write error:", err)
		return
	}
	select {
	case id := <-created:
		*userID = id
		log.Printf("Registered as %s (%s)", *name, id)
	case <-time.After(5 * time.Second):
		log.Println("No user id received.")
		return
	}
	log.Println(usage)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	lines := make(chan string)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		for {
			text, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- strings.TrimSpace(text)
		}
	}()

	// Write loop
	for {
		select {
		case <-done:
			return
		case <-heartbeat.C:
			send(c, network.MsgTypeHeartbeat, nil)
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case text, ok := <-lines:
			if !ok {
				return
			}
			if err := command(c, text, *userID, *name); err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}

func command(c *websocket.Conn, text, userID, name string) error {
	cmd, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "":
		return nil
	case "user":
		return send(c, network.MsgTypeCreateUser, network.CreateUserRequest{UserID: userID, Name: arg})
	case "create":
		return send(c, network.MsgTypeCreateRoom, network.CreateRoomRequest{UserID: userID, UserName: name})
	case "join", "watch":
		return send(c, network.MsgTypeJoinRoom, network.JoinRoomRequest{
			RoomCode:    arg,
			UserID:      userID,
			UserName:    name,
			AsSpectator: cmd == "watch",
		})
	case "list":
		return send(c, network.MsgTypeListRooms, nil)
	case "leave":
		return send(c, network.MsgTypeLeaveRoom, nil)
	case "start":
		return send(c, network.MsgTypeStartGame, nil)
	case "pick":
		return send(c, network.MsgTypeSelectQuestion, network.SelectQuestionRequest{QuestionID: arg})
	case "buzz":
		return send(c, network.MsgTypeBuzzIn, nil)
	case "answer":
		return send(c, network.MsgTypeSubmitAnswer, network.SubmitAnswerRequest{Answer: arg})
	case "fanswer":
		return send(c, network.MsgTypeSubmitFinalAnswer, network.SubmitAnswerRequest{Answer: arg})
	case "wager", "fwager":
		n, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			log.Printf("not a number: %q", arg)
			return nil
		}
		msgID := uint16(network.MsgTypeSubmitWager)
		if cmd == "fwager" {
			msgID = network.MsgTypeSubmitFinalWager
		}
		return send(c, msgID, network.WagerRequest{Wager: n})
	case "stats":
		return send(c, network.MsgTypeGetUserStats, network.GetUserStatsRequest{UserID: userID})
	default:
		log.Println(usage)
		return nil
	}
}
