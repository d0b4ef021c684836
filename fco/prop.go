package fco

import (
	"math/bits"
	"strings"
)

// Prop identifies a property of a filesystem object.
type Prop uint8

const (
	PropFileType Prop = iota
	PropDevice
	PropRDevice
	PropInode
	PropMode
	PropNLink
	PropUID
	PropGID
	PropSize
	PropBlocks
	PropATime
	PropMTime
	PropCTime
	PropGrowing
	PropCRC32
	PropMD5
	PropSHA1
	PropSHA256
	PropXXHash
	PropBLAKE3
	PropTLSH
	PropContentType
	PropXattrs
	PropLinkTarget

	NumProps
)

type propInfo struct {
	letter byte
	name   string
	kind   Kind
}

var propTable = [NumProps]propInfo{
	PropFileType:    {'t', "file_type", KindFileType},
	PropDevice:      {'d', "device", KindInt},
	PropRDevice:     {'r', "rdevice", KindInt},
	PropInode:       {'i', "inode", KindInt},
	PropMode:        {'p', "mode", KindMode},
	PropNLink:       {'n', "nlink", KindInt},
	PropUID:         {'u', "uid", KindInt},
	PropGID:         {'g', "gid", KindInt},
	PropSize:        {'s', "size", KindInt},
	PropBlocks:      {'b', "blocks", KindInt},
	PropATime:       {'a', "atime", KindTime},
	PropMTime:       {'m', "mtime", KindTime},
	PropCTime:       {'c', "ctime", KindTime},
	PropGrowing:     {'l', "growing", KindInt},
	PropCRC32:       {'C', "crc32", KindBytes},
	PropMD5:         {'M', "md5", KindBytes},
	PropSHA1:        {'S', "sha1", KindBytes},
	PropSHA256:      {'H', "sha256", KindBytes},
	PropXXHash:      {'X', "xxhash", KindBytes},
	PropBLAKE3:      {'B', "blake3", KindBytes},
	PropTLSH:        {'F', "tlsh", KindString},
	PropContentType: {'y', "content_type", KindString},
	PropXattrs:      {'x', "xattrs", KindString},
	PropLinkTarget:  {'k', "link_target", KindString},
}

func (p Prop) valid() bool { return p < NumProps }

func (p Prop) String() string {
	if !p.valid() {
		return "invalid"
	}
	return propTable[p].name
}

// Letter is the single character used for p in property masks.
func (p Prop) Letter() byte {
	if !p.valid() {
		return '?'
	}
	return propTable[p].letter
}

func (p Prop) Kind() Kind {
	if !p.valid() {
		return KindInvalid
	}
	return propTable[p].kind
}

// PropByLetter resolves a property mask letter.
func PropByLetter(c byte) (Prop, bool) {
	for i := Prop(0); i < NumProps; i++ {
		if propTable[i].letter == c {
			return i, true
		}
	}
	return 0, false
}

// PropByName resolves a property by its long name.
func PropByName(name string) (Prop, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := Prop(0); i < NumProps; i++ {
		if propTable[i].name == name {
			return i, true
		}
	}
	return 0, false
}

// Vector is a fixed size set of properties.
type Vector uint64

// DigestProps are the properties computed from object content.
var DigestProps = NewVector(PropCRC32, PropMD5, PropSHA1, PropSHA256, PropXXHash, PropBLAKE3, PropTLSH, PropContentType)

// AllProps selects every known property.
var AllProps = Vector(1<<uint(NumProps) - 1)

func NewVector(props ...Prop) Vector {
	var v Vector
	for _, p := range props {
		v = v.Add(p)
	}
	return v
}

func (v Vector) Has(p Prop) bool {
	return p.valid() && v&(1<<uint(p)) != 0
}

func (v Vector) Add(p Prop) Vector {
	if !p.valid() {
		return v
	}
	return v | 1<<uint(p)
}

func (v Vector) Remove(p Prop) Vector {
	return v &^ (1 << uint(p))
}

func (v Vector) Union(o Vector) Vector     { return v | o }
func (v Vector) Intersect(o Vector) Vector { return v & o }
func (v Vector) Minus(o Vector) Vector     { return v &^ o }
func (v Vector) IsEmpty() bool             { return v&AllProps == 0 }
func (v Vector) Count() int                { return bits.OnesCount64(uint64(v & AllProps)) }

// Contains reports whether every property of o is in v.
func (v Vector) Contains(o Vector) bool { return o&^v == 0 }

// Props lists the selected properties in id order.
func (v Vector) Props() []Prop {
	props := make([]Prop, 0, v.Count())
	for i := Prop(0); i < NumProps; i++ {
		if v.Has(i) {
			props = append(props, i)
		}
	}
	return props
}

// String renders the vector as mask letters, e.g. "pinugsmH".
func (v Vector) String() string {
	var b strings.Builder
	for _, p := range v.Props() {
		b.WriteByte(p.Letter())
	}
	return b.String()
}
