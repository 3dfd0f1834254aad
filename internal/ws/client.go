package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"bbqapp-core/internal/geo"
	"bbqapp-core/internal/geocode"
)

const (
	// sendChannelSize controls the max number
	// of messages that can be queued for a client.
	sendChannelSize = 16
	pingPeriod      = (60 * 9 * time.Second) / 10
)

type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newMessage(msgType string, data any) (Message, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Data: payload}, nil
}

type Client struct {
	ID      string
	Conn    *websocket.Conn
	Manager *Manager
	send    chan Message
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewClient(id string, conn *websocket.Conn, manager *Manager) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:      id,
		Conn:    conn,
		Manager: manager,
		send:    make(chan Message, sendChannelSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *Client) Start() {
	go c.readPump()
	go c.writePump()
	go c.watchLocation()
	c.Manager.register <- c
}

func (c *Client) Close() {
	if err := c.Conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		c.Manager.logger.Warn("failed to close connection", "error", err)
	}
	c.cancel()
}

func (c *Client) Send(msg Message) {
	select {
	case c.send <- msg:
	default:
		c.Manager.forceDisconnect(c)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.Manager.unregister <- c
		c.Close()
	}()

	for {
		var msg Message
		if err := wsjson.Read(c.ctx, c.Conn, &msg); err != nil {
			c.Manager.logger.Warn("failed to read message", "clientID", c.ID, "error", err)
			break
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.Conn.Close(websocket.StatusNormalClosure, "bye")
				return
			}
			if err := wsjson.Write(c.ctx, c.Conn, msg); err != nil {
				c.Manager.logger.Warn("failed to write message", "clientID", c.ID, "error", err)
				return
			}
			c.Manager.logger.Debug("message sent", "clientID", c.ID, "type", msg.Type)
		case <-ticker.C:
			if err := c.Conn.Ping(c.ctx); err != nil {
				c.Manager.logger.Debug("failed to ping client", "clientID", c.ID, "error", err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// fixPayload is the wire form of a live position fix, annotated with
// the distance traveled since the previous fix sent to this client.
type fixPayload struct {
	Fix       geo.PositionFix `json:"fix"`
	DistanceM float64         `json:"distance_m"`
}

func newFixPayload(prev *geo.PositionFix, fix geo.PositionFix) fixPayload {
	payload := fixPayload{Fix: fix}
	if prev != nil {
		payload.DistanceM = geo.Haversine(prev.Point, fix.Point)
	}
	return payload
}

// watchLocation gives this client its own subscription to the location
// stream, so live updates run exactly while clients are connected.
func (c *Client) watchLocation() {
	sub := c.Manager.stream.Observe()
	defer sub.Close()

	var prev *geo.PositionFix
	for {
		select {
		case fix, ok := <-sub.Fixes():
			if !ok {
				if err := sub.Err(); err != nil {
					c.sendError(err)
				}
				return
			}
			c.sendData("fix", newFixPayload(prev, fix))
			prev = &fix
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "geocode":
		c.Manager.logger.Debug("received geocode message", "clientID", c.ID, "data", msg.Data)

		var req struct {
			Query string     `json:"query"`
			Point *geo.Point `json:"point"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.Manager.logger.Warn("failed to unmarshal geocode message", "clientID", c.ID, "error", err)
			return
		}

		go c.pumpAddresses(c.lookup(req.Query, req.Point))
	default:
		c.Manager.logger.Debug("received unknown type message", "clientID", c.ID, "type", msg.Type)
	}
}

func (c *Client) lookup(query string, point *geo.Point) *geocode.Lookup {
	if point != nil {
		return c.Manager.resolver.ResolvePoint(*point)
	}
	return c.Manager.resolver.ResolveQuery(query)
}

// pumpAddresses forwards one resolution's addresses followed by a
// completion or error message.
func (c *Client) pumpAddresses(lookup *geocode.Lookup) {
	defer lookup.Close()

	for address := range lookup.Addresses() {
		c.sendData("address", address)
	}
	if err := lookup.Err(); err != nil {
		c.sendError(err)
		return
	}
	c.sendData("geocode_done", struct{}{})
}

func (c *Client) sendData(msgType string, data any) {
	msg, err := newMessage(msgType, data)
	if err != nil {
		c.Manager.logger.Warn("failed to marshal message", "clientID", c.ID, "type", msgType, "error", err)
		return
	}
	c.Send(msg)
}

func (c *Client) sendError(err error) {
	c.sendData("error", map[string]string{"message": err.Error()})
}
