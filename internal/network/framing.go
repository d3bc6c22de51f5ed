package network

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Framing selects how JSON documents are delimited on the TCP stream
type Framing string

const (
	// FramingLength prefixes each document with a 4-byte big-endian length
	FramingLength Framing = "length"
	// FramingLine terminates each document with '\n'
	FramingLine Framing = "line"
	// FramingStream sends documents back to back with no delimiter
	FramingStream Framing = "stream"
)

// DefaultMaxFrameBytes bounds a single frame
const DefaultMaxFrameBytes = 1 << 20

// ErrFrameTooLarge is returned when a peer announces or sends an oversized frame
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// ParseFraming validates a framing name from flags or profiles
func ParseFraming(s string) (Framing, error) {
	switch Framing(s) {
	case FramingLength, FramingLine, FramingStream:
		return Framing(s), nil
	case "":
		return FramingLength, nil
	default:
		return "", fmt.Errorf("unknown framing %q", s)
	}
}

// FrameReader yields one complete JSON document per call.
// io.EOF means the peer closed cleanly between frames.
type FrameReader interface {
	ReadFrame() ([]byte, error)
}

// NewFrameReader wraps r according to framing
func NewFrameReader(r io.Reader, framing Framing, maxSize int) FrameReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameBytes
	}
	switch framing {
	case FramingLine:
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), maxSize)
		return &lineReader{scanner: scanner}
	case FramingStream:
		return &streamReader{dec: json.NewDecoder(r), max: maxSize}
	default:
		return &lengthReader{r: bufio.NewReader(r), max: maxSize}
	}
}

type lengthReader struct {
	r   *bufio.Reader
	max int
}

func (l *lengthReader) ReadFrame() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(l.r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(l.max) {
		return nil, fmt.Errorf("%w: announced %d bytes, limit %d", ErrFrameTooLarge, size, l.max)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(l.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

type lineReader struct {
	scanner *bufio.Scanner
}

func (l *lineReader) ReadFrame() ([]byte, error) {
	for l.scanner.Scan() {
		line := bytes.TrimSpace(l.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := l.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrFrameTooLarge, err)
		}
		return nil, err
	}
	return nil, io.EOF
}

type streamReader struct {
	dec *json.Decoder
	max int
}

func (s *streamReader) ReadFrame() ([]byte, error) {
	var raw json.RawMessage
	if err := s.dec.Decode(&raw); err != nil {
		return nil, err
	}
	if len(raw) > s.max {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, len(raw), s.max)
	}
	return raw, nil
}

// AppendFrame returns payload wrapped for framing
func AppendFrame(dst []byte, framing Framing, payload []byte) ([]byte, error) {
	switch framing {
	case FramingLine:
		if bytes.IndexByte(payload, '\n') >= 0 {
			return nil, fmt.Errorf("payload contains a newline")
		}
		dst = append(dst, payload...)
		return append(dst, '\n'), nil
	case FramingStream:
		return append(dst, payload...), nil
	case FramingLength, "":
		if uint64(len(payload)) > uint64(^uint32(0)) {
			return nil, ErrFrameTooLarge
		}
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
		return append(dst, payload...), nil
	default:
		return nil, fmt.Errorf("unknown framing %q", framing)
	}
}

// WriteFrame writes one framed payload in a single Write call
func WriteFrame(w io.Writer, framing Framing, payload []byte) error {
	frame, err := AppendFrame(make([]byte, 0, len(payload)+4), framing, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}
