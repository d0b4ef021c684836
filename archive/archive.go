// Package archive is the typed put/get stream databases and reports are
// serialized through, plus the envelope that compresses and signs it.
package archive

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrCorrupt means the stream does not decode.
var ErrCorrupt = errors.New("archive corrupt")

const maxChunk = 1 << 30

// Writer encodes values. The first failure is sticky; check Err or Flush
// once at the end.
type Writer struct {
	w   *bufio.Writer
	buf [binary.MaxVarintLen64]byte
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (a *Writer) write(p []byte) {
	if a.err != nil {
		return
	}
	_, a.err = a.w.Write(p)
}

func (a *Writer) PutUint8(v uint8) { a.write([]byte{v}) }

func (a *Writer) PutBool(v bool) {
	if v {
		a.PutUint8(1)
	} else {
		a.PutUint8(0)
	}
}

func (a *Writer) PutUint64(v uint64) {
	n := binary.PutUvarint(a.buf[:], v)
	a.write(a.buf[:n])
}

func (a *Writer) PutInt64(v int64) {
	n := binary.PutVarint(a.buf[:], v)
	a.write(a.buf[:n])
}

func (a *Writer) PutInt(v int) { a.PutInt64(int64(v)) }

func (a *Writer) PutBytes(p []byte) {
	a.PutUint64(uint64(len(p)))
	a.write(p)
}

func (a *Writer) PutString(s string) {
	a.PutUint64(uint64(len(s)))
	if a.err == nil {
		_, a.err = a.w.WriteString(s)
	}
}

func (a *Writer) PutStrings(ss []string) {
	a.PutUint64(uint64(len(ss)))
	for _, s := range ss {
		a.PutString(s)
	}
}

// PutTime stores t with nanosecond precision in UTC. The zero time survives
// the round trip.
func (a *Writer) PutTime(t time.Time) {
	if t.IsZero() {
		a.PutBool(false)
		return
	}
	a.PutBool(true)
	a.PutInt64(t.Unix())
	a.PutInt64(int64(t.Nanosecond()))
}

func (a *Writer) Err() error { return a.err }

func (a *Writer) Flush() error {
	if a.err != nil {
		return a.err
	}
	return a.w.Flush()
}

// Reader decodes values written by Writer. After the first failure every
// getter returns the zero value.
type Reader struct {
	r   *bufio.Reader
	err error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

func (a *Reader) fail(err error) {
	if a.err != nil {
		return
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = fmt.Errorf("%w: unexpected end of data", ErrCorrupt)
	}
	a.err = err
}

func (a *Reader) Err() error { return a.err }

// SetErr records a decoding failure found by the caller.
func (a *Reader) SetErr(err error) { a.fail(err) }

func (a *Reader) GetUint8() uint8 {
	if a.err != nil {
		return 0
	}
	b, err := a.r.ReadByte()
	if err != nil {
		a.fail(err)
		return 0
	}
	return b
}

func (a *Reader) GetBool() bool {
	switch a.GetUint8() {
	case 0:
		return false
	case 1:
		return true
	}
	a.fail(fmt.Errorf("%w: bad boolean", ErrCorrupt))
	return false
}

func (a *Reader) GetUint64() uint64 {
	if a.err != nil {
		return 0
	}
	v, err := binary.ReadUvarint(a.r)
	if err != nil {
		a.fail(err)
		return 0
	}
	return v
}

func (a *Reader) GetInt64() int64 {
	if a.err != nil {
		return 0
	}
	v, err := binary.ReadVarint(a.r)
	if err != nil {
		a.fail(err)
		return 0
	}
	return v
}

func (a *Reader) GetInt() int { return int(a.GetInt64()) }

// GetLen reads a length or count and checks it against a sanity limit.
func (a *Reader) GetLen() int {
	n := a.GetUint64()
	if n > maxChunk {
		a.fail(fmt.Errorf("%w: length %d too large", ErrCorrupt, n))
		return 0
	}
	return int(n)
}

func (a *Reader) GetBytes() []byte {
	n := a.GetLen()
	if a.err != nil {
		return nil
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(a.r, p); err != nil {
		a.fail(err)
		return nil
	}
	return p
}

func (a *Reader) GetString() string { return string(a.GetBytes()) }

func (a *Reader) GetStrings() []string {
	n := a.GetLen()
	if n == 0 || a.err != nil {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n && a.err == nil; i++ {
		out = append(out, a.GetString())
	}
	return out
}

func (a *Reader) GetTime() time.Time {
	if !a.GetBool() {
		return time.Time{}
	}
	sec := a.GetInt64()
	nsec := a.GetInt64()
	if a.err != nil {
		return time.Time{}
	}
	return time.Unix(sec, nsec).UTC()
}
