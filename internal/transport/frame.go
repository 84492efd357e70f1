package transport

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

const maxFrameLen = 16 << 20 // 16 MiB, generous bound against a corrupt length prefix

// WriteMessage writes msg to w as a 4-byte big-endian length prefix
// followed by its gob encoding, matching the teacher's own p2p framing.
func WriteMessage(w io.Writer, msg Message) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&msg); err != nil {
		return fmt.Errorf("transport: failed to encode message: %w", err)
	}
	body := buf.Bytes()

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("transport: failed to write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("transport: failed to write message body: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed gob-encoded Message from r.
func ReadMessage(r *bufio.Reader) (Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameLen {
		return Message{}, fmt.Errorf("transport: frame length %d exceeds maximum %d", n, maxFrameLen)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("transport: failed to read message body: %w", err)
	}

	var msg Message
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("transport: failed to decode message: %w", err)
	}
	return msg, nil
}
