package transport

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	tpktVersion    = 3
	tpktHeaderSize = 4
	maxTPKTPayload = 0xFFFF - tpktHeaderSize
)

// WriteFrame записывает PDU с заголовком TPKT одной операцией записи.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxTPKTPayload {
		return errors.Wrapf(ErrFrameTooLarge, "%d байт", len(payload))
	}
	frame := make([]byte, tpktHeaderSize+len(payload))
	frame[0] = tpktVersion
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(frame)))
	copy(frame[tpktHeaderSize:], payload)
	_, err := w.Write(frame)
	return err
}

// ReadFrame читает один PDU с заголовком TPKT.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [tpktHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	if header[0] != tpktVersion {
		return nil, errors.Wrapf(ErrInvalidFrame, "версия %d", header[0])
	}
	length := int(binary.BigEndian.Uint16(header[2:4]))
	if length < tpktHeaderSize {
		return nil, errors.Wrapf(ErrInvalidFrame, "длина %d", length)
	}
	size := length - tpktHeaderSize
	if maxSize > 0 && size > maxSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d байт", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
