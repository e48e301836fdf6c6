package main

import (
	"errors"
	"fmt"
	"net"
	"time"
)

const dnsPort = 53

// Client is the ordinary, unprivileged UDP query channel: it asks a
// resolver for an A record and waits a bounded time for the reply. The
// attack path reuses it as the trigger mechanism, fire-and-forget.
type Client struct {
	Server  string
	Port    int
	Timeout time.Duration
}

// NewClient returns a client for server, which may be an IP or a
// hostname resolvable by the local stack.
func NewClient(server string) *Client {
	return &Client{
		Server:  server,
		Port:    dnsPort,
		Timeout: 10 * time.Second,
	}
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.Dial("udp4", net.JoinHostPort(c.Server, fmt.Sprintf("%d", c.Port)))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.Server, err)
	}
	return conn, nil
}

// Query sends an A query for hostname and returns the decoded response.
// No reply within the timeout is reported as ErrTimeout; the caller
// decides whether that is fatal. Malformed replies are dropped and
// reported as ErrMalformedMessage.
func (c *Client) Query(id uint16, hostname string) (*Message, error) {
	query, err := NewQuery(id, hostname)
	if err != nil {
		return nil, err
	}
	payload, err := query.Encode()
	if err != nil {
		return nil, err
	}

	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("sending query: %w", err)
	}

	buf := make([]byte, maxUDPSize)
	conn.SetReadDeadline(time.Now().Add(c.Timeout))
	n, err := conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("no reply from %s within %s: %w", c.Server, c.Timeout, ErrTimeout)
		}
		return nil, fmt.Errorf("reading reply: %w", err)
	}
	return DecodeMessage(buf[:n])
}

// SendNoWait emits a query without waiting for any reply. The attack
// orchestrator uses this so the flood can start the moment the trigger
// is accepted for sending; awaiting the genuine answer would forfeit the
// race window.
func (c *Client) SendNoWait(msg *Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("sending trigger query: %w", err)
	}
	return nil
}
