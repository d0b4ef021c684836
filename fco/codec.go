package fco

import (
	"fmt"
	"io/fs"
	"sort"

	"tripline/archive"
)

func encodeValue(w *archive.Writer, v Value) {
	w.PutUint8(uint8(v.Kind()))
	switch x := v.(type) {
	case IntValue:
		w.PutInt64(int64(x))
	case TimeValue:
		w.PutTime(x.T)
	case BytesValue:
		w.PutBytes(x)
	case StringValue:
		w.PutString(string(x))
	case ModeValue:
		w.PutUint64(uint64(x))
	case FileTypeValue:
		w.PutUint8(uint8(x))
	}
}

func decodeValue(r *archive.Reader) Value {
	switch Kind(r.GetUint8()) {
	case KindInt:
		return IntValue(r.GetInt64())
	case KindTime:
		return TimeValue{T: r.GetTime()}
	case KindBytes:
		return BytesValue(r.GetBytes())
	case KindString:
		return StringValue(r.GetString())
	case KindMode:
		return ModeValue(fs.FileMode(r.GetUint64()))
	case KindFileType:
		return FileTypeValue(r.GetUint8())
	}
	if r.Err() == nil {
		r.SetErr(fmt.Errorf("%w: unknown value kind", archive.ErrCorrupt))
	}
	return nil
}

// EncodeName writes a name's segments.
func EncodeName(w *archive.Writer, n Name) { w.PutStrings(n.segs) }

func DecodeName(r *archive.Reader) Name { return NewName(r.GetStrings()...) }

// Encode writes the object's name and every valid property.
func (o *Object) Encode(w *archive.Writer) {
	EncodeName(w, o.Name)
	o.EncodeProps(w)
}

// EncodeProps writes only the property set.
func (o *Object) EncodeProps(w *archive.Writer) {
	props := o.Props.valid.Props()
	w.PutUint64(uint64(len(props)))
	for _, p := range props {
		w.PutUint8(uint8(p))
		encodeValue(w, o.Props.values[p])
	}
}

// DecodeObject reads an object written by Encode.
func DecodeObject(r *archive.Reader) *Object {
	o := NewObject(DecodeName(r))
	DecodeProps(r, o)
	return o
}

// DecodeProps reads a property set written by EncodeProps into o.
func DecodeProps(r *archive.Reader, o *Object) {
	n := r.GetLen()
	for i := 0; i < n && r.Err() == nil; i++ {
		p := Prop(r.GetUint8())
		v := decodeValue(r)
		if r.Err() != nil {
			return
		}
		if !p.valid() || v.Kind() != p.Kind() {
			r.SetErr(fmt.Errorf("%w: property %d with kind %d", archive.ErrCorrupt, p, v.Kind()))
			return
		}
		o.Props.Set(p, v)
	}
}

// Encode writes the remembered owner names in id order.
func (d *PropDisplayer) Encode(w *archive.Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w.PutBool(d.HexDigests)
	encodeNames(w, d.Users)
	encodeNames(w, d.Groups)
}

func encodeNames(w *archive.Writer, names map[int64]string) {
	ids := make([]int64, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	w.PutUint64(uint64(len(ids)))
	for _, id := range ids {
		w.PutInt64(id)
		w.PutString(names[id])
	}
}

// DecodePropDisplayer reads a displayer written by Encode.
func DecodePropDisplayer(r *archive.Reader) *PropDisplayer {
	d := NewPropDisplayer()
	d.HexDigests = r.GetBool()
	decodeNames(r, d.Users)
	decodeNames(r, d.Groups)
	return d
}

func decodeNames(r *archive.Reader, into map[int64]string) {
	n := r.GetLen()
	for i := 0; i < n && r.Err() == nil; i++ {
		id := r.GetInt64()
		into[id] = r.GetString()
	}
}
