// Package rcon speaks the Minecraft remote console protocol and parses
// the loosely structured text it returns.
package rcon

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

const (
	packetTypeResponse = 0
	packetTypeCommand  = 2
	packetTypeAuth     = 3

	// Server responses are capped at 4096 bytes of payload; headers add 10.
	maxPacketSize  = 4110
	defaultTimeout = 5 * time.Second
)

// Client issues commands over the Minecraft RCON protocol. Every Send
// opens a fresh authenticated TCP connection, runs exactly one command
// and closes the connection. There is no pooling and no retry.
type Client struct {
	addr     string
	password string
	timeout  time.Duration
}

// NewClient creates a client for the given host/port/password triple.
// A zero timeout falls back to the default of 5 seconds.
func NewClient(host string, port int, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		addr:     net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		password: password,
		timeout:  timeout,
	}
}

// Send executes a single command and returns the raw response text.
// Any network or authentication failure comes back as a wrapped error;
// the remote server state is the only side effect.
func (c *Client) Send(ctx context.Context, command string) (string, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", c.addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	// Authenticate. The server echoes our request ID on success and
	// answers with ID -1 when the password is rejected.
	if err := writePacket(conn, 1, packetTypeAuth, c.password); err != nil {
		return "", fmt.Errorf("sending auth: %w", err)
	}
	authID, _, _, err := readPacket(conn)
	if err != nil {
		return "", fmt.Errorf("reading auth response: %w", err)
	}
	if authID == -1 {
		return "", fmt.Errorf("auth rejected by %s", c.addr)
	}

	if err := writePacket(conn, 2, packetTypeCommand, command); err != nil {
		return "", fmt.Errorf("sending command: %w", err)
	}
	id, _, body, err := readPacket(conn)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if id != 2 {
		return "", fmt.Errorf("response id mismatch: got %d", id)
	}

	return body, nil
}

// writePacket frames and writes one RCON packet: little-endian length,
// request ID, type, body, two NUL terminators.
func writePacket(conn net.Conn, id, packetType int32, body string) error {
	buf := make([]byte, 14+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(10+len(body)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(id))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(packetType))
	copy(buf[12:], body)
	// Trailing pair of NUL bytes is part of the frame
	_, err := conn.Write(buf)
	return err
}

// readPacket reads one full RCON packet from the connection.
func readPacket(conn net.Conn) (id, packetType int32, body string, err error) {
	header := make([]byte, 4)
	if _, err = readFull(conn, header); err != nil {
		return 0, 0, "", err
	}

	length := int32(binary.LittleEndian.Uint32(header))
	if length < 10 || length > maxPacketSize {
		return 0, 0, "", fmt.Errorf("invalid packet length %d", length)
	}

	payload := make([]byte, length)
	if _, err = readFull(conn, payload); err != nil {
		return 0, 0, "", err
	}

	id = int32(binary.LittleEndian.Uint32(payload[0:4]))
	packetType = int32(binary.LittleEndian.Uint32(payload[4:8]))
	body = string(payload[8 : length-2])
	return id, packetType, body, nil
}

// readFull reads exactly len(buf) bytes, looping over short reads.
func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
