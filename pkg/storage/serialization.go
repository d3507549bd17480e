// Package storage - serialization helpers for stored records.
package storage

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Stored records carry a small header so future format changes can be
// detected instead of misdecoded.
const (
	serializationMagic   = "\xffGDB"
	serializationVersion = byte(1)
)

func encodeRecord(value any) ([]byte, error) {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(serializationMagic)+1+len(payload))
	out = append(out, serializationMagic...)
	out = append(out, serializationVersion)
	out = append(out, payload...)
	return out, nil
}

func decodeRecord(data []byte, value any) error {
	if len(data) < len(serializationMagic)+1 {
		return fmt.Errorf("record too short: %d bytes", len(data))
	}
	if string(data[:len(serializationMagic)]) != serializationMagic {
		return fmt.Errorf("bad record magic")
	}
	version := data[len(serializationMagic)]
	if version != serializationVersion {
		return fmt.Errorf("unsupported record version: %d", version)
	}
	return msgpack.Unmarshal(data[len(serializationMagic)+1:], value)
}

func encodeEntity(e *Entity) ([]byte, error) {
	data, err := encodeRecord(e)
	if err != nil {
		return nil, fmt.Errorf("encoding entity %d: %w", e.ID, err)
	}
	return data, nil
}

func decodeEntity(data []byte) (*Entity, error) {
	var e Entity
	if err := decodeRecord(data, &e); err != nil {
		return nil, fmt.Errorf("decoding entity: %w", err)
	}
	return &e, nil
}

// encodeValuePayload serializes a property value without the record
// header; the enclosing property record or overflow chain owns framing.
func encodeValuePayload(v PropertyValue) ([]byte, error) {
	return msgpack.Marshal(&v)
}

func decodeValuePayload(data []byte) (PropertyValue, error) {
	var v PropertyValue
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return PropertyValue{}, fmt.Errorf("decoding property value: %w", err)
	}
	return v, nil
}
