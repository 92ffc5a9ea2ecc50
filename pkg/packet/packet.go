// Package packet implements the length-prefixed packet protocol git's
// long-running filter process speaks on stdin/stdout, as specified in §4.1.
package packet

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MaxPayload is the largest payload a single packet may carry. Callers that
// need to emit a larger buffer must split it into chunks of this size.
const MaxPayload = 65516

// lengthPrefixSize is the width of the hex length prefix, counted as part of
// the packet's total length.
const lengthPrefixSize = 4

// Channel owns the two streams of a packet session and is the only thing in
// this package that touches I/O. All framing primitives are methods on it.
type Channel struct {
	r *bufio.Reader
	w *bufio.Writer
}

// NewChannel wraps a reader and writer as a packet Channel. w is always
// buffered internally so WritePacket/WriteFlush's "then flush" step is
// observable on the wire rather than relying on the underlying writer being
// unbuffered.
func NewChannel(r io.Reader, w io.Writer) *Channel {
	return &Channel{r: bufio.NewReader(r), w: bufio.NewWriter(w)}
}

// ErrProtocol is returned for any malformed length prefix or short read.
type ErrProtocol struct {
	Reason string
}

func (e *ErrProtocol) Error() string {
	return fmt.Sprintf("packet protocol violation: %s", e.Reason)
}

// ReadPacket returns one packet's payload. It returns empty bytes, nil for
// both a flush marker (0000) and end of stream; callers distinguish the two
// only by protocol context, per §4.1.
func (c *Channel) ReadPacket() ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	n, err := io.ReadFull(c.r, prefix[:])
	if err == io.EOF && n == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, &ErrProtocol{Reason: fmt.Sprintf("short length prefix: %v", err)}
	}

	length, err := strconv.ParseUint(string(prefix[:]), 16, 32)
	if err != nil {
		return nil, &ErrProtocol{Reason: fmt.Sprintf("malformed length prefix %q: %v", prefix, err)}
	}
	if length == 0 {
		return nil, nil
	}
	if length < lengthPrefixSize {
		return nil, &ErrProtocol{Reason: fmt.Sprintf("length prefix %d shorter than header", length)}
	}

	payload := make([]byte, length-lengthPrefixSize)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return nil, &ErrProtocol{Reason: fmt.Sprintf("short packet body: %v", err)}
	}
	return payload, nil
}

// ReadPacketText reads one packet and decodes it as whitespace-trimmed UTF-8
// text.
func (c *Channel) ReadPacketText() (string, error) {
	payload, err := c.ReadPacket()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(payload)), nil
}

// WritePacket emits a packet carrying payload, then flushes the output.
func (c *Channel) WritePacket(payload []byte) error {
	if len(payload) > MaxPayload {
		return &ErrProtocol{Reason: fmt.Sprintf("payload of %d bytes exceeds max %d", len(payload), MaxPayload)}
	}
	length := len(payload) + lengthPrefixSize
	if _, err := fmt.Fprintf(c.w, "%04x", length); err != nil {
		return err
	}
	if _, err := c.w.Write(payload); err != nil {
		return err
	}
	return c.flush()
}

// WritePacketText encodes s as UTF-8 and writes it as one packet.
func (c *Channel) WritePacketText(s string) error {
	return c.WritePacket([]byte(s))
}

// WriteFlush emits the literal flush marker 0000.
func (c *Channel) WriteFlush() error {
	if _, err := c.w.Write([]byte("0000")); err != nil {
		return err
	}
	return c.flush()
}

// WritePacketChunks splits data into MaxPayload-sized packets and writes each
// one in order. Used by handlers that re-emit payloads larger than one
// packet can carry (§4.4, §4.5).
func (c *Channel) WritePacketChunks(data []byte) error {
	for i := 0; i < len(data); i += MaxPayload {
		end := i + MaxPayload
		if end > len(data) {
			end = len(data)
		}
		if err := c.WritePacket(data[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) flush() error {
	return c.w.Flush()
}
