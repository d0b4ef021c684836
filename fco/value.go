package fco

import (
	"bytes"
	"encoding/hex"
	"io/fs"
	"strconv"
	"time"
)

// Kind is the storage type of a property value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindTime
	KindBytes
	KindString
	KindMode
	KindFileType
)

// Value is one typed property value. Implementations are immutable.
type Value interface {
	Kind() Kind
	Equal(Value) bool
	String() string
}

type IntValue int64

func (v IntValue) Kind() Kind { return KindInt }
func (v IntValue) Equal(o Value) bool {
	ov, ok := o.(IntValue)
	return ok && ov == v
}
func (v IntValue) String() string { return strconv.FormatInt(int64(v), 10) }

type TimeValue struct {
	T time.Time
}

func (v TimeValue) Kind() Kind { return KindTime }
func (v TimeValue) Equal(o Value) bool {
	ov, ok := o.(TimeValue)
	return ok && ov.T.Equal(v.T)
}
func (v TimeValue) String() string { return v.T.UTC().Format(time.RFC3339Nano) }

type BytesValue []byte

func (v BytesValue) Kind() Kind { return KindBytes }
func (v BytesValue) Equal(o Value) bool {
	ov, ok := o.(BytesValue)
	return ok && bytes.Equal(ov, v)
}
func (v BytesValue) String() string { return hex.EncodeToString(v) }

type StringValue string

func (v StringValue) Kind() Kind { return KindString }
func (v StringValue) Equal(o Value) bool {
	ov, ok := o.(StringValue)
	return ok && ov == v
}
func (v StringValue) String() string { return string(v) }

// ModeValue holds permission and special bits (setuid, setgid, sticky).
type ModeValue fs.FileMode

func (v ModeValue) Kind() Kind { return KindMode }
func (v ModeValue) Equal(o Value) bool {
	ov, ok := o.(ModeValue)
	return ok && ov == v
}
func (v ModeValue) String() string { return fs.FileMode(v).String() }

type FileTypeValue FileType

func (v FileTypeValue) Kind() Kind { return KindFileType }
func (v FileTypeValue) Equal(o Value) bool {
	ov, ok := o.(FileTypeValue)
	return ok && ov == v
}
func (v FileTypeValue) String() string { return FileType(v).String() }

// FileType classifies filesystem objects.
type FileType uint8

const (
	TypeUnknown FileType = iota
	TypeFile
	TypeDirectory
	TypeSymlink
	TypeBlockDevice
	TypeCharDevice
	TypeFIFO
	TypeSocket
)

func (t FileType) String() string {
	switch t {
	case TypeFile:
		return "Regular File"
	case TypeDirectory:
		return "Directory"
	case TypeSymlink:
		return "Symbolic Link"
	case TypeBlockDevice:
		return "Block Device"
	case TypeCharDevice:
		return "Character Device"
	case TypeFIFO:
		return "FIFO"
	case TypeSocket:
		return "Socket"
	}
	return "Unknown"
}

// FileTypeOf maps the type bits of a FileMode.
func FileTypeOf(mode fs.FileMode) FileType {
	switch {
	case mode.IsRegular():
		return TypeFile
	case mode.IsDir():
		return TypeDirectory
	case mode&fs.ModeSymlink != 0:
		return TypeSymlink
	case mode&fs.ModeDevice != 0 && mode&fs.ModeCharDevice != 0:
		return TypeCharDevice
	case mode&fs.ModeDevice != 0:
		return TypeBlockDevice
	case mode&fs.ModeNamedPipe != 0:
		return TypeFIFO
	case mode&fs.ModeSocket != 0:
		return TypeSocket
	}
	return TypeUnknown
}
