package ipc

import (
	"encoding/json"
	"net"
	"sync"
	"time"
)

// conn wraps one accepted unix-socket connection. Writes are serialised
// since a connection can receive both a direct reply to its own request
// and an async broadcast/unicast from another goroutine.
type conn struct {
	id         string
	nc         net.Conn
	writeMu    sync.Mutex
	subscribed bool
	providerID string // set once ui.register succeeds on this connection
}

func newConn(id string, nc net.Conn) *conn {
	return &conn{id: id, nc: nc}
}

func (c *conn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.nc.SetWriteDeadline(time.Now().Add(WriteTimeout))
	_, err = c.nc.Write(data)
	return err
}
