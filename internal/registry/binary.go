package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFieldLength bounds a single stored field, terminator included.
const MaxFieldLength = 4096

var byteOrder = binary.LittleEndian

var (
	ErrCorrupt   = errors.New("channel registry file is corrupt")
	errTruncated = errors.New("truncated record")
)

// writeField writes a uint64 length (counting the trailing NUL), the bytes
// of s and a NUL terminator.
func writeField(w io.Writer, s string) error {
	if err := binary.Write(w, byteOrder, uint64(len(s)+1)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, s); err != nil {
		return err
	}
	_, err := w.Write([]byte{0})
	return err
}

// readField reads one field written by writeField. io.EOF is returned only
// when the stream ends exactly before the field.
func readField(r io.Reader) (string, error) {
	var length uint64
	if err := binary.Read(r, byteOrder, &length); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return "", errTruncated
		}
		return "", err
	}
	if length == 0 || length > MaxFieldLength {
		return "", fmt.Errorf("%w: field length %d", ErrCorrupt, length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", errTruncated
		}
		return "", err
	}
	if buf[length-1] != 0 {
		return "", fmt.Errorf("%w: field is not NUL terminated", ErrCorrupt)
	}
	return string(buf[:length-1]), nil
}

func writeEntry(w io.Writer, e ChannelEntry) error {
	if err := writeField(w, e.Channel); err != nil {
		return err
	}
	return writeField(w, e.Requester)
}

// readEntry reads a channel/requester pair. A stream ending inside the pair
// yields errTruncated.
func readEntry(r io.Reader) (ChannelEntry, error) {
	channel, err := readField(r)
	if err != nil {
		return ChannelEntry{}, err
	}
	requester, err := readField(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ChannelEntry{}, errTruncated
		}
		return ChannelEntry{}, err
	}
	return ChannelEntry{Channel: channel, Requester: requester}, nil
}
