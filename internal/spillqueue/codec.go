package spillqueue

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Codec marshals and unmarshals a single queue element to and from bytes.
// Callers supply a Codec for their element type; the queue never
// introspects E via reflection.
type Codec[E any] struct {
	Encode func(E) ([]byte, error)
	Decode func([]byte) (E, error)
}

// writeRecord appends one length-prefixed, checksummed record to w:
// [8-byte big-endian payload length][8-byte xxhash checksum][payload].
// The explicit frame format keeps spill files stable across schema changes,
// unlike a language-native serialization of E.
func writeRecord(w *bufio.Writer, payload []byte) error {
	var header [16]byte
	binary.BigEndian.PutUint64(header[0:8], uint64(len(payload)))
	binary.BigEndian.PutUint64(header[8:16], xxhash.Sum64(payload))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write record header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write record payload: %w", err)
	}
	return nil
}

// readRecord reads one record written by writeRecord, returning io.EOF
// (unwrapped) only when the stream ends exactly at a record boundary.
func readRecord(r *bufio.Reader) ([]byte, error) {
	var header [16]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("spill file truncated mid-record header: %w", err)
		}
		return nil, err
	}
	length := binary.BigEndian.Uint64(header[0:8])
	checksum := binary.BigEndian.Uint64(header[8:16])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("spill file truncated mid-record payload: %w", err)
	}
	if got := xxhash.Sum64(payload); got != checksum {
		return nil, fmt.Errorf("spill file record checksum mismatch: got %x want %x", got, checksum)
	}
	return payload, nil
}
