package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const (
	magic          = "TRIPLINE"
	formatVersion  = 1
	flagCompressed = 1 << 0
	flagSigned     = 1 << 1
	// maxPayload bounds the sealed body; the decoded payload may be larger.
	maxPayload     = 1 << 30
	maxDecoded     = 4 << 30
	maxSignature   = 1 << 12
)

// Kinds of sealed files.
const (
	KindDatabase = "TLDB"
	KindReport   = "TLRP"
)

var (
	ErrBadMagic     = errors.New("not a tripline file")
	ErrWrongKind    = errors.New("unexpected file kind")
	ErrUnsigned     = errors.New("file is not signed")
	ErrNoVerifier   = errors.New("file is signed but no key was given to verify it")
	ErrBadSignature = errors.New("signature verification failed")
)

// Signer signs the sealed payload.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
}

// Verifier checks a signature made by the matching Signer.
type Verifier interface {
	Verify(msg, sig []byte) error
}

type SealOptions struct {
	Compress bool
	Signer   Signer
}

type OpenOptions struct {
	// Verifier checks signed files. Without one a signed file is rejected
	// unless AllowUnverified is set.
	Verifier Verifier
	// RequireSignature rejects unsigned files.
	RequireSignature bool
	// AllowUnverified accepts signed files without checking the signature.
	AllowUnverified bool
}

// Info describes a sealed file.
type Info struct {
	Kind       string
	Compressed bool
	Signed     bool
}

func signedBytes(kind string, flags byte, body []byte) []byte {
	msg := make([]byte, 0, len(magic)+len(kind)+1+len(body))
	msg = append(msg, magic...)
	msg = append(msg, kind...)
	msg = append(msg, flags)
	return append(msg, body...)
}

// Seal writes payload in the envelope format.
func Seal(w io.Writer, kind string, payload []byte, opts SealOptions) error {
	if len(kind) != 4 {
		return fmt.Errorf("kind %q must be four bytes", kind)
	}
	var flags byte
	body := payload
	if opts.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		body = enc.EncodeAll(payload, nil)
		enc.Close()
		flags |= flagCompressed
	}
	var sig []byte
	if opts.Signer != nil {
		flags |= flagSigned
		var err error
		sig, err = opts.Signer.Sign(signedBytes(kind, flags, body))
		if err != nil {
			return fmt.Errorf("sign: %w", err)
		}
	}

	var hdr bytes.Buffer
	hdr.WriteString(magic)
	hdr.WriteByte(formatVersion)
	hdr.WriteString(kind)
	hdr.WriteByte(flags)
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(body)))
	hdr.Write(lenBuf[:])
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if flags&flagSigned != 0 {
		var sigLen [2]byte
		binary.BigEndian.PutUint16(sigLen[:], uint16(len(sig)))
		if _, err := w.Write(sigLen[:]); err != nil {
			return err
		}
		if _, err := w.Write(sig); err != nil {
			return err
		}
	}
	return nil
}

// Open reads an envelope of the given kind and returns its payload.
func Open(r io.Reader, kind string, opts OpenOptions) ([]byte, Info, error) {
	var hdr [len(magic) + 1 + 4 + 1 + 8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, Info{}, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if string(hdr[:len(magic)]) != magic {
		return nil, Info{}, ErrBadMagic
	}
	off := len(magic)
	if hdr[off] != formatVersion {
		return nil, Info{}, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, hdr[off])
	}
	info := Info{Kind: string(hdr[off+1 : off+5])}
	flags := hdr[off+5]
	info.Compressed = flags&flagCompressed != 0
	info.Signed = flags&flagSigned != 0
	if info.Kind != kind {
		return nil, info, fmt.Errorf("%w: got %s, want %s", ErrWrongKind, info.Kind, kind)
	}
	size := binary.BigEndian.Uint64(hdr[off+6:])
	if size > maxPayload {
		return nil, info, fmt.Errorf("%w: payload of %d bytes", ErrCorrupt, size)
	}
	// The length is not authenticated yet; grow the buffer as data arrives.
	body, err := io.ReadAll(io.LimitReader(r, int64(size)))
	if err != nil {
		return nil, info, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if uint64(len(body)) != size {
		return nil, info, fmt.Errorf("%w: truncated payload", ErrCorrupt)
	}

	if info.Signed {
		var sigLen [2]byte
		if _, err := io.ReadFull(r, sigLen[:]); err != nil {
			return nil, info, fmt.Errorf("%w: truncated signature", ErrCorrupt)
		}
		n := int(binary.BigEndian.Uint16(sigLen[:]))
		if n > maxSignature {
			return nil, info, fmt.Errorf("%w: signature of %d bytes", ErrCorrupt, n)
		}
		sig := make([]byte, n)
		if _, err := io.ReadFull(r, sig); err != nil {
			return nil, info, fmt.Errorf("%w: truncated signature", ErrCorrupt)
		}
		switch {
		case opts.Verifier != nil:
			if err := opts.Verifier.Verify(signedBytes(info.Kind, flags, body), sig); err != nil {
				return nil, info, fmt.Errorf("%w: %v", ErrBadSignature, err)
			}
		case !opts.AllowUnverified:
			return nil, info, ErrNoVerifier
		}
	} else if opts.RequireSignature {
		return nil, info, ErrUnsigned
	}

	if !info.Compressed {
		return body, info, nil
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecoded))
	if err != nil {
		return nil, info, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()
	payload, err := dec.DecodeAll(body, nil)
	if err != nil {
		return nil, info, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return payload, info, nil
}

// WriteFile seals payload into path, replacing it atomically.
func WriteFile(path, kind string, payload []byte, opts SealOptions) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := Seal(tmp, kind, payload, opts); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadFile opens a sealed file.
func ReadFile(path, kind string, opts OpenOptions) ([]byte, Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Info{}, err
	}
	defer f.Close()
	return Open(f, kind, opts)
}
