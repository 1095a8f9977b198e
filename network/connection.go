// network/connection.go
package network

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	headerSize = 6
	// MaxPayload bounds a single frame body.
	MaxPayload = 1 << 20
	writeWait  = 10 * time.Second
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendQueueFull    = errors.New("send queue full")
	ErrPayloadTooLarge  = errors.New("payload too large")
)

type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint32
}

type Connection interface {
	Send(msgID uint16, data []byte) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadPacket() (*Packet, error)
}

// Encode 封包: 2字节消息ID + 4字节数据长度 + 数据
func Encode(msgID uint16, data []byte) ([]byte, error) {
	if len(data) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	packet := make([]byte, headerSize+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint32(packet[2:6], uint32(len(data)))
	copy(packet[headerSize:], data)
	return packet, nil
}

// Decode 解包
func Decode(data []byte) (*Packet, error) {
	if len(data) < headerSize {
		return nil, io.ErrShortBuffer
	}
	msgID := binary.BigEndian.Uint16(data[0:2])
	length := binary.BigEndian.Uint32(data[2:6])
	if length > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	if uint64(len(data)) < uint64(headerSize)+uint64(length) {
		return nil, io.ErrShortBuffer
	}
	return &Packet{
		MsgID:  msgID,
		Length: length,
		Data:   data[headerSize : headerSize+int(length)],
	}, nil
}

// WSConnection frames packets over a websocket. Sends are queued and written by a single
// pump goroutine so a slow peer never blocks the caller.
type WSConnection struct {
	conn        *websocket.Conn
	send        chan []byte
	heartbeatCh chan time.Duration
	done        chan struct{}
	closeOnce   sync.Once
	heartbeat   time.Duration
	mutex       sync.Mutex
}

func NewWSConnection(conn *websocket.Conn, queueSize int) *WSConnection {
	if queueSize <= 0 {
		queueSize = 64
	}
	c := &WSConnection{
		conn:        conn,
		send:        make(chan []byte, queueSize),
		heartbeatCh: make(chan time.Duration, 1),
		done:        make(chan struct{}),
	}
	conn.SetReadLimit(MaxPayload + headerSize)
	go c.writePump()
	return c
}

// Send enqueues a packet. It fails fast when the queue is full instead of waiting on the socket.
func (c *WSConnection) Send(msgID uint16, data []byte) error {
	packet, err := Encode(msgID, data)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- packet:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

func (c *WSConnection) writePump() {
	var ticker *time.Ticker
	var tick <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		c.conn.Close()
	}()

	for {
		select {
		case packet := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, packet); err != nil {
				c.shutdown()
				return
			}
		case interval := <-c.heartbeatCh:
			if ticker != nil {
				ticker.Stop()
			}
			ticker = time.NewTicker(interval)
			tick = ticker.C
		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			c.drain()
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// drain flushes packets queued before Close.
func (c *WSConnection) drain() {
	for {
		select {
		case packet := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, packet); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *WSConnection) ReadPacket() (*Packet, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	c.extendDeadline()
	return Decode(data)
}

// SetHeartbeat pings every interval and drops the peer after two silent intervals.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.mutex.Lock()
	c.heartbeat = interval
	c.mutex.Unlock()

	c.conn.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})
	c.extendDeadline()
	select {
	case c.heartbeatCh <- interval:
	default:
	}
}

func (c *WSConnection) extendDeadline() {
	c.mutex.Lock()
	interval := c.heartbeat
	c.mutex.Unlock()
	if interval > 0 {
		c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	}
}

func (c *WSConnection) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Close flushes queued packets and closes the socket.
func (c *WSConnection) Close() error {
	c.shutdown()
	return nil
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
