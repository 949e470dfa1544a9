package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordFormatVersion = 1

var errCorruptRecord = errors.New("corrupt session record")

// Encode serializes r into the compact binary layout stored in Redis:
// version, username, secret hash, created-at and expires-at (unix millis).
// The record ID is the hash field and is not repeated in the value.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(1 + 1 + len(r.Username) + 1 + len(r.SecretHash) + 16)

	buf.WriteByte(recordFormatVersion)

	if len(r.Username) > 255 {
		return nil, errors.New("username too long")
	}
	buf.WriteByte(byte(len(r.Username)))
	buf.WriteString(r.Username)

	if len(r.SecretHash) == 0 || len(r.SecretHash) > 255 {
		return nil, errors.New("invalid secret hash length")
	}
	buf.WriteByte(byte(len(r.SecretHash)))
	buf.Write(r.SecretHash)

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a value produced by Encode. id is the Redis hash field.
func Decode(id string, data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errCorruptRecord
	}
	if version != recordFormatVersion {
		return nil, errors.New("invalid session version")
	}

	r := &Record{ID: id}

	username, err := readShortBytes(reader)
	if err != nil {
		return nil, err
	}
	r.Username = string(username)

	if r.SecretHash, err = readShortBytes(reader); err != nil {
		return nil, err
	}
	if len(r.SecretHash) == 0 {
		return nil, errCorruptRecord
	}

	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, errCorruptRecord
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, errCorruptRecord
	}
	if reader.Len() != 0 {
		return nil, errCorruptRecord
	}

	return r, nil
}

func readShortBytes(reader *bytes.Reader) ([]byte, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return nil, errCorruptRecord
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, errCorruptRecord
	}
	return out, nil
}
