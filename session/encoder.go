package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const sessionFormatVersionCurrent = 1

var errFieldTooLong = errors.New("session field too long")

// Encode serializes the immutable part of s for the Redis adapter. The
// session id and LastActive are stored beside the blob, not inside it.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	for _, field := range []string{s.UserID, s.IP, s.Browser, s.OS, s.Device} {
		if len(field) > 255 {
			return nil, errFieldTooLong
		}
		buf.WriteByte(byte(len(field)))
		buf.WriteString(field)
	}

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob written by Encode.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}
	for _, field := range []*string{&s.UserID, &s.IP, &s.Browser, &s.OS, &s.Device} {
		n, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	var createdAt int64
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, err
	}
	s.CreatedAt = time.UnixMilli(createdAt)

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session blob")
	}
	return s, nil
}
