package server

import (
	"context"
	"fmt"
	"time"

	"github.com/atinylittleshell/quill/pkg/wire"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	clientBuffer = 64
)

// client is one websocket session.
type client struct {
	server  *Server
	conn    *websocket.Conn
	session string
	user    string
	logger  *zap.Logger

	send    chan []byte
	lookups chan wire.Frame
	done    chan struct{}
	sub     Subscription
}

func newClient(s *Server, conn *websocket.Conn, user string) *client {
	session := uuid.NewString()
	return &client{
		server:  s,
		conn:    conn,
		session: session,
		user:    user,
		logger:  s.logger.With(zap.String("session", session)),
		send:    make(chan []byte, clientBuffer),
		lookups: make(chan wire.Frame, clientBuffer),
		done:    make(chan struct{}),
	}
}

// run blocks until the websocket is closed.
func (c *client) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		if c.sub != nil {
			_ = c.sub.Close()
		}
		close(c.done)
		c.conn.Close()
	}()

	go c.writePump()
	go c.lookupWorker(ctx)

	c.enqueueFrame(wire.Connected(c.session))
	c.readPump(ctx)
}

func (c *client) readPump(ctx context.Context) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("server read failed", zap.Error(err))
			}
			return
		}

		frame, err := wire.Decode(data)
		if err != nil {
			c.logger.Warn("server dropping malformed frame", zap.Error(err))
			c.enqueueFrame(wire.Failure(0, err))
			continue
		}

		switch frame.Type {
		case wire.TypeSubscribe:
			c.subscribe(ctx, frame)
		case wire.TypePublish:
			if frame.Topic != wire.TopicSuggest {
				c.enqueueFrame(wire.Failure(frame.ID, fmt.Errorf("unknown topic %q", frame.Topic)))
				continue
			}
			select {
			case c.lookups <- frame:
			default:
				c.enqueueFrame(wire.Failure(frame.ID, fmt.Errorf("too many pending lookups")))
			}
		default:
			c.enqueueFrame(wire.Failure(frame.ID, fmt.Errorf("unsupported frame type %q", frame.Type)))
		}
	}
}

func (c *client) subscribe(ctx context.Context, frame wire.Frame) {
	if frame.Topic != wire.TopicSynonyms {
		c.enqueueFrame(wire.Failure(frame.ID, fmt.Errorf("unknown topic %q", frame.Topic)))
		return
	}
	if c.sub != nil {
		c.logger.Debug("server ignoring duplicate subscription")
		return
	}

	sub, err := c.server.broker.Subscribe(ctx, userTopic(c.session))
	if err != nil {
		c.logger.Error("server subscribe failed", zap.Error(err))
		c.enqueueFrame(wire.Failure(frame.ID, err))
		return
	}
	c.sub = sub

	go func() {
		for payload := range sub.Messages() {
			c.enqueue(payload)
		}
	}()
}

// lookupWorker answers lookups one at a time so replies leave in request
// order.
func (c *client) lookupWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.lookups:
			c.lookup(ctx, frame)
		}
	}
}

func (c *client) lookup(ctx context.Context, frame wire.Frame) {
	req, err := wire.DecodeRequest(frame.Body)
	if err != nil {
		c.logger.Warn("server malformed lookup", zap.Error(err))
		c.enqueueFrame(wire.Failure(frame.ID, err))
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.server.opts.LookupTimeout)
	defer cancel()

	resp, err := c.server.provider.Synonyms(lookupCtx, req.Word)
	if err != nil {
		c.logger.Warn("server lookup failed", zap.String("word", req.Word), zap.Error(err))
		c.enqueueFrame(wire.Failure(frame.ID, err))
		return
	}
	if resp.Synonyms == nil {
		resp.Synonyms = []string{}
	}

	id := frame.ID
	if !c.server.opts.EchoIDs {
		id = 0
	}
	reply, err := wire.Deliver(wire.TopicSynonyms, id, resp)
	if err != nil {
		c.logger.Error("server failed to build reply", zap.Error(err))
		return
	}
	data, err := wire.Encode(reply)
	if err != nil {
		c.logger.Error("server failed to encode reply", zap.Error(err))
		return
	}

	c.logger.Debug("server answering lookup", zap.String("word", req.Word), zap.Strings("synonyms", resp.Synonyms))
	if err := c.server.broker.Publish(ctx, userTopic(c.session), data); err != nil {
		c.logger.Error("server publish failed", zap.Error(err))
	}
}

func (c *client) enqueueFrame(f wire.Frame) {
	data, err := wire.Encode(f)
	if err != nil {
		c.logger.Error("server failed to encode frame", zap.Error(err))
		return
	}
	c.enqueue(data)
}

func (c *client) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("server send buffer full, dropping frame")
	}
}

func (c *client) writePump() {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("server write failed", zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}
