package comm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const (
	frameData byte = iota + 1
	frameAck
)

// frameHeaderSize is the kind byte, the tag, and the
// payload length.
const frameHeaderSize = 9

// maxFrameSize bounds the payload of a single frame.
const maxFrameSize = 1 << 31

type frame struct {
	kind    byte
	tag     Tag
	payload []byte
}

func writeFrame(w io.Writer, f *frame) error {
	if uint64(len(f.payload)) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes is too large", len(f.payload))
	}
	var header [frameHeaderSize]byte
	header[0] = f.kind
	binary.BigEndian.PutUint32(header[1:], uint32(f.tag))
	binary.BigEndian.PutUint32(header[5:], uint32(len(f.payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(f.payload) > 0 {
		if _, err := w.Write(f.payload); err != nil {
			return err
		}
	}
	return nil
}

func readFrame(r io.Reader) (*frame, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	f := &frame{
		kind: header[0],
		tag:  Tag(binary.BigEndian.Uint32(header[1:])),
	}
	if f.kind != frameData && f.kind != frameAck {
		return nil, fmt.Errorf("unknown frame kind %d", f.kind)
	}
	size := binary.BigEndian.Uint32(header[5:])
	if uint64(size) > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes is too large", size)
	}
	f.payload = make([]byte, size)
	if _, err := io.ReadFull(r, f.payload); err != nil {
		return nil, err
	}
	return f, nil
}

var helloMagic = [4]byte{'S', 'P', 'M', 'D'}

const helloVersion = 1

// helloSize is the magic, version, session, rank and size.
const helloSize = 4 + 1 + 16 + 4 + 4

// A hello is sent by the dialing side of a connection to
// identify itself.
type hello struct {
	session uuid.UUID
	rank    int
	size    int
}

func writeHello(w io.Writer, h *hello) error {
	var buf [helloSize]byte
	copy(buf[:4], helloMagic[:])
	buf[4] = helloVersion
	copy(buf[5:21], h.session[:])
	binary.BigEndian.PutUint32(buf[21:], uint32(h.rank))
	binary.BigEndian.PutUint32(buf[25:], uint32(h.size))
	_, err := w.Write(buf[:])
	return err
}

func readHello(r io.Reader) (*hello, error) {
	var buf [helloSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	if [4]byte{buf[0], buf[1], buf[2], buf[3]} != helloMagic {
		return nil, errors.New("bad handshake magic")
	}
	if buf[4] != helloVersion {
		return nil, fmt.Errorf("unsupported handshake version %d", buf[4])
	}
	h := &hello{
		rank: int(binary.BigEndian.Uint32(buf[21:])),
		size: int(binary.BigEndian.Uint32(buf[25:])),
	}
	copy(h.session[:], buf[5:21])
	return h, nil
}
