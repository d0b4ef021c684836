package hierdb

import (
	"bytes"
	"fmt"

	"tripline/archive"
	"tripline/fco"
	"tripline/policy"
)

// SaveOptions control how the database file is sealed.
type SaveOptions = archive.SealOptions

// LoadOptions control signature checking on load.
type LoadOptions = archive.OpenOptions

// EncodeHeader writes h.
func EncodeHeader(w *archive.Writer, h *Header) {
	w.PutString(h.ID)
	w.PutString(h.Creator)
	w.PutString(h.SystemName)
	w.PutString(h.IPAddress)
	w.PutString(h.HostID)
	w.PutTime(h.CreationTime)
	w.PutTime(h.LastUpdateTime)
	w.PutString(h.PolicyFile)
	w.PutString(h.PolicyDigest)
	w.PutString(h.ConfigFile)
	w.PutString(h.DBFile)
	w.PutString(h.Version)
}

func DecodeHeader(r *archive.Reader) Header {
	return Header{
		ID:             r.GetString(),
		Creator:        r.GetString(),
		SystemName:     r.GetString(),
		IPAddress:      r.GetString(),
		HostID:         r.GetString(),
		CreationTime:   r.GetTime(),
		LastUpdateTime: r.GetTime(),
		PolicyFile:     r.GetString(),
		PolicyDigest:   r.GetString(),
		ConfigFile:     r.GetString(),
		DBFile:         r.GetString(),
		Version:        r.GetString(),
	}
}

// Encode writes the whole database. Genres are written in id order and
// objects in name order, so equal databases encode to equal bytes.
func (d *DatabaseFile) Encode(w *archive.Writer) {
	EncodeHeader(w, &d.Header)
	genres := d.Genres()
	w.PutUint64(uint64(len(genres)))
	for _, g := range genres {
		d.genres[g].encode(w)
	}
}

func (g *GenreDB) encode(w *archive.Writer) {
	w.PutUint64(uint64(g.Genre))
	policy.EncodeSpecList(w, g.Specs)
	g.Displayer.Encode(w)
	w.PutInt(g.ObjectsScanned)

	// Start point marks first so empty start points survive, then objects.
	var marks []*Node
	_ = g.Tree.Walk(func(n *Node) error {
		if n.spec != "" {
			marks = append(marks, n)
		}
		return nil
	})
	w.PutUint64(uint64(len(marks)))
	for _, n := range marks {
		fco.EncodeName(w, n.Name())
		w.PutString(n.spec)
	}
	objs := g.Tree.Objects()
	w.PutUint64(uint64(len(objs)))
	for _, o := range objs {
		o.Encode(w)
	}
}

// Decode reads a database written by Encode.
func Decode(r *archive.Reader) (*DatabaseFile, error) {
	d := &DatabaseFile{Header: DecodeHeader(r), genres: map[fco.Genre]*GenreDB{}}
	n := r.GetLen()
	for i := 0; i < n && r.Err() == nil; i++ {
		gdb := decodeGenre(r)
		if r.Err() != nil {
			break
		}
		if _, dup := d.genres[gdb.Genre]; dup {
			return nil, fmt.Errorf("%w: genre %s stored twice", archive.ErrCorrupt, gdb.Genre)
		}
		d.genres[gdb.Genre] = gdb
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeGenre(r *archive.Reader) *GenreDB {
	gdb := NewGenreDB(fco.Genre(r.GetUint64()))
	gdb.Specs = policy.DecodeSpecList(r)
	if r.Err() == nil && gdb.Specs.Genre() != gdb.Genre {
		r.SetErr(fmt.Errorf("%w: spec list genre %s in %s section", archive.ErrCorrupt, gdb.Specs.Genre(), gdb.Genre))
		return gdb
	}
	gdb.Displayer = fco.DecodePropDisplayer(r)
	gdb.ObjectsScanned = r.GetInt()
	marks := r.GetLen()
	for i := 0; i < marks && r.Err() == nil; i++ {
		name := fco.DecodeName(r)
		gdb.Tree.MarkSpec(name, r.GetString())
	}
	objs := r.GetLen()
	for i := 0; i < objs && r.Err() == nil; i++ {
		o := fco.DecodeObject(r)
		if r.Err() == nil {
			gdb.Tree.Put(o)
		}
	}
	return gdb
}

// Marshal encodes d into a byte slice.
func (d *DatabaseFile) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	w := archive.NewWriter(&buf)
	d.Encode(w)
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a payload produced by Marshal.
func Unmarshal(p []byte) (*DatabaseFile, error) {
	return Decode(archive.NewReader(bytes.NewReader(p)))
}

// Save writes d to path, sealed per opts.
func Save(path string, d *DatabaseFile, opts SaveOptions) error {
	p, err := d.Marshal()
	if err != nil {
		return fmt.Errorf("encode database: %w", err)
	}
	if err := archive.WriteFile(path, archive.KindDatabase, p, opts); err != nil {
		return fmt.Errorf("write database %s: %w", path, err)
	}
	return nil
}

// Load reads a database from path.
func Load(path string, opts LoadOptions) (*DatabaseFile, error) {
	p, _, err := archive.ReadFile(path, archive.KindDatabase, opts)
	if err != nil {
		return nil, fmt.Errorf("read database %s: %w", path, err)
	}
	d, err := Unmarshal(p)
	if err != nil {
		return nil, fmt.Errorf("decode database %s: %w", path, err)
	}
	return d, nil
}
