/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"strconv"
	"unicode/utf16"
)

const (
	// HeaderSize is the fixed frame header length.
	HeaderSize = 8
	// MaxEnvelopeSize is the largest envelope the uint16 length field can describe.
	MaxEnvelopeSize = math.MaxUint16
)

var (
	// ErrFraming covers malformed headers, length mismatches and truncated reads.
	ErrFraming = errors.New("framing error")

	// ErrChecksumMismatch means the envelope CRC-32 disagrees with the header.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrEnvelopeTooLarge means the serialized envelope exceeds MaxEnvelopeSize.
	ErrEnvelopeTooLarge = errors.New("envelope exceeds 65535 bytes")

	// ErrMalformedPayload means a payload could not be decoded into its typed form.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Header is the fixed 8-byte frame prefix.
//
//	byte 0     type
//	bytes 1-2  envelope length (big-endian)
//	byte 3     options
//	bytes 4-7  CRC-32 of the envelope (big-endian)
type Header struct {
	Type     MessageType
	Length   uint16
	Options  uint8
	Checksum uint32
}

// ParseHeader decodes the first HeaderSize bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header has %d bytes, need %d", ErrFraming, len(b), HeaderSize)
	}
	return Header{
		Type:     MessageType(b[0]),
		Length:   binary.BigEndian.Uint16(b[1:3]),
		Options:  b[3],
		Checksum: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// AppendHeader appends the wire form of h to dst.
func AppendHeader(dst []byte, h Header) []byte {
	dst = append(dst, byte(h.Type))
	dst = binary.BigEndian.AppendUint16(dst, h.Length)
	dst = append(dst, h.Options)
	return binary.BigEndian.AppendUint32(dst, h.Checksum)
}

// envelope is the JSON object following the header.
type envelope struct {
	Payload    string `json:"payload"`
	ClientAddr string `json:"client_ip"`
	ServerAddr string `json:"server_ip"`
	Timestamp  string `json:"timestamp"`
}

// marshalEnvelope renders the envelope in its canonical layout: fixed key
// order, ": " and ", " separators, everything outside printable ASCII escaped.
// Peers that verify the checksum by re-serializing produce the same bytes.
func marshalEnvelope(m *Message) []byte {
	buf := make([]byte, 0, 64+len(m.Payload)+len(m.ClientAddr)+len(m.ServerAddr)+len(m.Timestamp))
	buf = append(buf, `{"payload": `...)
	buf = appendQuoted(buf, m.Payload)
	buf = append(buf, `, "client_ip": `...)
	buf = appendQuoted(buf, m.ClientAddr)
	buf = append(buf, `, "server_ip": `...)
	buf = appendQuoted(buf, m.ServerAddr)
	buf = append(buf, `, "timestamp": `...)
	buf = appendQuoted(buf, m.Timestamp)
	return append(buf, '}')
}

func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for _, r := range s {
		switch r {
		case '"':
			dst = append(dst, '\\', '"')
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\f':
			dst = append(dst, '\\', 'f')
		default:
			switch {
			case r >= 0x20 && r < 0x7f:
				dst = append(dst, byte(r))
			case r > 0xffff:
				r1, r2 := utf16.EncodeRune(r)
				dst = appendEscapedRune(dst, r1)
				dst = appendEscapedRune(dst, r2)
			default:
				dst = appendEscapedRune(dst, r)
			}
		}
	}
	return append(dst, '"')
}

func appendEscapedRune(dst []byte, r rune) []byte {
	dst = append(dst, '\\', 'u')
	hex := strconv.FormatInt(int64(r), 16)
	for i := len(hex); i < 4; i++ {
		dst = append(dst, '0')
	}
	return append(dst, hex...)
}

// MarshalBinary encodes m as a complete frame. The computed checksum is
// recorded on m.
func (m *Message) MarshalBinary() ([]byte, error) {
	env := marshalEnvelope(m)
	if len(env) > MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrEnvelopeTooLarge, len(env))
	}
	m.Checksum = crc32.ChecksumIEEE(env)

	frame := make([]byte, 0, HeaderSize+len(env))
	frame = AppendHeader(frame, Header{
		Type:     m.Type,
		Length:   uint16(len(env)),
		Options:  m.Options,
		Checksum: m.Checksum,
	})
	return append(frame, env...), nil
}

// Encode builds a freshly timestamped message and returns its frame.
func Encode(t MessageType, payload string, options uint8, clientAddr, serverAddr string) ([]byte, error) {
	m := NewMessage(t, payload, clientAddr, serverAddr)
	m.Options = options
	return m.MarshalBinary()
}

// DecodeEnvelope validates body against h and returns the message it carries.
// The checksum is verified before the envelope is parsed.
func DecodeEnvelope(h Header, body []byte) (*Message, error) {
	if len(body) != int(h.Length) {
		return nil, fmt.Errorf("%w: envelope has %d bytes, header says %d", ErrFraming, len(body), h.Length)
	}
	if sum := crc32.ChecksumIEEE(body); sum != h.Checksum {
		return nil, fmt.Errorf("%w: header %08x, computed %08x", ErrChecksumMismatch, h.Checksum, sum)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrFraming, err)
	}

	return &Message{
		Type:       h.Type,
		Options:    h.Options,
		Payload:    env.Payload,
		ClientAddr: env.ClientAddr,
		ServerAddr: env.ServerAddr,
		Timestamp:  env.Timestamp,
		Checksum:   h.Checksum,
	}, nil
}

// Decode parses one complete frame.
func Decode(frame []byte) (*Message, error) {
	h, err := ParseHeader(frame)
	if err != nil {
		return nil, err
	}
	return DecodeEnvelope(h, frame[HeaderSize:])
}

// ReadHeader reads exactly one header from r. A clean end of stream before
// any header byte is returned as io.EOF; a partial header is a framing error.
func ReadHeader(r io.Reader) (Header, error) {
	var b [HeaderSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, fmt.Errorf("%w: truncated header", ErrFraming)
		}
		return Header{}, err
	}
	return ParseHeader(b[:])
}

// ReadEnvelope reads the h.Length envelope bytes that follow h and decodes them.
func ReadEnvelope(r io.Reader, h Header) (*Message, error) {
	body := make([]byte, h.Length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated envelope", ErrFraming)
		}
		return nil, err
	}
	return DecodeEnvelope(h, body)
}

// ReadMessage reads one frame from r, however the bytes are split across reads.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	return ReadEnvelope(r, h)
}

// WriteMessage encodes m and writes the whole frame to w.
func WriteMessage(w io.Writer, m *Message) error {
	frame, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}
