package client

import (
	"errors"
	"net"
	"time"

	"conformal/pkg/protocol"
)

// Client is the binary-protocol SDK for a running prediction server.
// Requests reconnect and retry once on a broken connection.
type Client struct {
	conn net.Conn
	addr string
}

func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn: conn,
		addr: addr,
	}, nil
}

// Predict requests a point prediction and interval bounds at each alpha.
func (c *Client) Predict(req *protocol.PredictRequest) (*protocol.PredictResponse, error) {
	key, val := req.Marshal()

	data, err := c.roundtripValue(protocol.OpPredict, key, val)
	if err != nil {
		return nil, err
	}
	return protocol.UnmarshalPredictResponse(data)
}

// Adapt feeds a realized observation back to the server so the
// calibration window rolls forward and the level adapts.
func (c *Client) Adapt(req *protocol.AdaptRequest) error {
	key, val := req.Marshal()

	if err := protocol.Encode(c.conn, protocol.OpAdapt, key, val); err != nil {
		return c.reconnectAndRetry(protocol.OpAdapt, key, val)
	}
	return c.expectOK()
}

// Stats fetches the server-side workload and coverage counters.
func (c *Client) Stats() (*protocol.StatsResponse, error) {
	data, err := c.roundtripValue(protocol.OpStats, nil, nil)
	if err != nil {
		return nil, err
	}
	return protocol.UnmarshalStatsResponse(data)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundtripValue(op byte, key, val []byte) ([]byte, error) {
	if err := protocol.Encode(c.conn, op, key, val); err != nil {
		return c.reconnectAndRetryValues(op, key, val)
	}

	pkg, err := protocol.Decode(c.conn)
	if err != nil {
		return c.reconnectAndRetryValues(op, key, val)
	}

	switch pkg.Op {
	case protocol.RespVal:
		return pkg.Value, nil
	case protocol.RespErr:
		return nil, errors.New(string(pkg.Value))
	default:
		return nil, errors.New("unknown response")
	}
}

func (c *Client) expectOK() error {
	pkg, err := protocol.Decode(c.conn)
	if err != nil {
		return err
	}
	switch pkg.Op {
	case protocol.RespOK:
		return nil
	case protocol.RespErr:
		return errors.New(string(pkg.Value))
	default:
		return errors.New("operation failed")
	}
}

func (c *Client) reconnectAndRetry(op byte, key, val []byte) error {
	c.conn.Close()
	conn, err := net.DialTimeout("tcp", c.addr, 5*time.Second)
	if err != nil {
		return err
	}
	c.conn = conn

	// Re-send
	if err := protocol.Encode(c.conn, op, key, val); err != nil {
		return err
	}
	// Re-read
	return c.expectOK()
}

func (c *Client) reconnectAndRetryValues(op byte, key, val []byte) ([]byte, error) {
	c.conn.Close()
	conn, err := net.DialTimeout("tcp", c.addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	if err := protocol.Encode(c.conn, op, key, val); err != nil {
		return nil, err
	}

	pkg, err := protocol.Decode(c.conn)
	if err != nil {
		return nil, err
	}

	if pkg.Op == protocol.RespVal {
		return pkg.Value, nil
	}
	return nil, errors.New("operation failed")
}
