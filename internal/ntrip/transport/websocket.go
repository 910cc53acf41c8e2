package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/bramburn/rtkcore/internal/ntrip"
)

const websocketOpenTimeout = 10 * time.Second

// controlFrame is a client→bridge command per spec §4.4.3.
type controlFrame struct {
	Command string          `json:"command"`
	Config  *bridgeConfig   `json:"config,omitempty"`
	Data    string          `json:"data,omitempty"`
}

type bridgeConfig struct {
	CasterHost string `json:"casterHost"`
	CasterPort int    `json:"casterPort"`
	Mountpoint string `json:"mountpoint"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
}

// statusFrame is a bridge→client frame per spec §4.4.3. Its Type
// discriminates status/info/error/ping; Connected and Message are only
// meaningful for "status".
type statusFrame struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

// Websocket is the §4.4.3 transport: it has no teacher precedent in this
// repo, so its connect/read/close lifecycle is grounded on the teacher's
// pkg/ntrip/client.go stream-ownership pattern (mutex-guarded connected
// flag, Read/Close symmetry) applied to a *websocket.Conn.
type Websocket struct {
	Dialer *websocket.Dialer
	Log    *logrus.Entry
}

func NewWebsocket(log *logrus.Entry) *Websocket {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Websocket{Dialer: websocket.DefaultDialer, Log: log}
}

func (w *Websocket) Name() string { return "websocket" }

func (w *Websocket) Open(ctx context.Context, cfg ntrip.Config) (ntrip.Session, error) {
	openCtx, cancel := context.WithTimeout(ctx, websocketOpenTimeout)
	defer cancel()

	conn, _, err := w.Dialer.DialContext(openCtx, cfg.WebsocketURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport.Websocket: dial: %w", err)
	}

	frame := controlFrame{
		Command: "connect",
		Config: &bridgeConfig{
			CasterHost: cfg.CasterHost,
			CasterPort: cfg.CasterPort,
			Mountpoint: cfg.Mountpoint,
			Username:   cfg.Username,
			Password:   cfg.Password,
		},
	}
	if err := conn.WriteJSON(frame); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport.Websocket: sending connect frame: %w", err)
	}

	if err := awaitConnected(conn, openCtx); err != nil {
		conn.Close()
		return nil, err
	}

	return &wsSession{conn: conn, log: w.Log}, nil
}

// awaitConnected reads status/info/error frames until it sees a status
// frame (connected=true ends the handshake, connected=false or an error
// frame fails it), or openCtx expires.
func awaitConnected(conn *websocket.Conn, openCtx context.Context) error {
	type result struct {
		err error
	}
	done := make(chan result, 1)

	go func() {
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				done <- result{err: fmt.Errorf("transport.Websocket: handshake read: %w", err)}
				return
			}
			if msgType != websocket.TextMessage {
				continue // binary RTCM arriving before the handshake completes is unexpected; ignore
			}
			var frame statusFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			switch frame.Type {
			case "status":
				if frame.Connected {
					done <- result{}
				} else {
					done <- result{err: fmt.Errorf("transport.Websocket: bridge refused connect: %s", frame.Message)}
				}
				return
			case "error":
				done <- result{err: fmt.Errorf("transport.Websocket: bridge error: %s", frame.Message)}
				return
			case "ping", "info":
				continue
			}
		}
	}()

	select {
	case r := <-done:
		return r.err
	case <-openCtx.Done():
		return fmt.Errorf("transport.Websocket: handshake timed out: %w", openCtx.Err())
	}
}

// wsSession adapts a *websocket.Conn into an ntrip.Session. It buffers
// binary RTCM payloads between Read calls since websocket delivers whole
// messages, not a continuous byte stream.
type wsSession struct {
	conn *websocket.Conn
	log  *logrus.Entry

	mu     sync.Mutex
	buf    []byte
	closed bool
}

func (s *wsSession) Read(p []byte) (int, error) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			n := copy(p, s.buf)
			s.buf = s.buf[n:]
			s.mu.Unlock()
			return n, nil
		}
		if s.closed {
			s.mu.Unlock()
			return 0, io.EOF
		}
		s.mu.Unlock()

		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("transport.Websocket: read: %w", err)
		}
		switch msgType {
		case websocket.BinaryMessage:
			s.mu.Lock()
			s.buf = append(s.buf, data...)
			s.mu.Unlock()
		case websocket.TextMessage:
			s.handleControlFrame(data)
		}
	}
}

// handleControlFrame processes a JSON status/info/error/ping frame that
// arrives interleaved with binary RTCM traffic after the handshake. A
// connected=false status frame ends the session, matching spec §4.5's
// "connected → closing ... on bridge status connected=false".
func (s *wsSession) handleControlFrame(data []byte) {
	var frame statusFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}
	if frame.Type == "status" && !frame.Connected {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	}
}

func (s *wsSession) SendGGA(ctx context.Context, sentence string) error {
	frame := controlFrame{Command: "gga", Data: sentence}
	if err := s.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("transport.Websocket: sending GGA: %w", err)
	}
	return nil
}

func (s *wsSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.conn.WriteJSON(controlFrame{Command: "disconnect"})
	return s.conn.Close()
}
