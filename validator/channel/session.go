package channel

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	socketBufferSize = 1024
	maxMessageBytes  = 1 << 20
	writeTimeout     = 10 * time.Second
	sendQueueSize    = 16
)

// session is one registered agent connection. All writes to the socket go
// through the write loop so a single goroutine owns it.
type session struct {
	agentID  string
	username string
	conn     *websocket.Conn

	send      chan interface{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(agentID, username string, conn *websocket.Conn) *session {
	return &session{
		agentID:  agentID,
		username: username,
		conn:     conn,
		send:     make(chan interface{}, sendQueueSize),
		done:     make(chan struct{}),
	}
}

// enqueue hands a frame to the write loop. It reports false when the session
// is closing or its queue is saturated; callers treat both as undeliverable.
func (s *session) enqueue(frame interface{}) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// close tears the connection down once, sending a close frame with the given
// code first so well-behaved agents learn why.
func (s *session) close(code int, reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(code, reason)
		deadline := time.Now().Add(writeTimeout)
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && err != websocket.ErrCloseSent {
			log.WithError(err).WithField("agent", s.agentID).Debug("Could not write close frame")
		}
		if err := s.conn.Close(); err != nil {
			log.WithError(err).WithField("agent", s.agentID).Debug("Could not close session socket")
		}
	})
}

// writeLoop drains queued frames and pings idle connections. After a ping
// goes out a read deadline is armed; the pong handler installed at
// registration clears it, so a silent agent times the reader out.
func (s *session) writeLoop(heartbeat time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			data, err := json.Marshal(frame)
			if err != nil {
				log.WithError(err).WithField("agent", s.agentID).Error("Could not encode outbound frame")
				continue
			}
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				s.close(websocket.CloseAbnormalClosure, "write deadline failed")
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.WithError(err).WithField("agent", s.agentID).Debug("Session write failed")
				s.close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.WithError(err).WithField("agent", s.agentID).Debug("Session ping failed")
				s.close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
			if err := s.conn.SetReadDeadline(time.Now().Add(heartbeat)); err != nil {
				s.close(websocket.CloseAbnormalClosure, "read deadline failed")
				return
			}
		}
	}
}
