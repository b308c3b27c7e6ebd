package connection

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// link is one live websocket. Writes go through send so only writePump
// touches the connection's writer.
type link struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newLink(conn *websocket.Conn) *link {
	return &link{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (l *link) enqueue(data []byte) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.send <- data:
		return true
	default:
		return false
	}
}

func (l *link) writePump(logger *zap.Logger) {
	for {
		select {
		case data := <-l.send:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Warn("connection write failed", zap.Error(err))
				l.close()
				return
			}
		case <-l.done:
			return
		}
	}
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		l.conn.Close()
	})
}
