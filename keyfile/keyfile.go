// Package keyfile manages the signing key pair. The private key is stored
// encrypted under a passphrase and is only decrypted inside WithSigner.
package keyfile

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"tripline/archive"
)

const (
	kindPublic  = "TLPK"
	kindPrivate = "TLSK"
	algorithm   = "ed25519"
	saltLen     = 16
	derivedLen  = 32
)

// kdfIterations is the PBKDF2-SHA256 work factor for new keys.
var kdfIterations = 210000

var (
	ErrBadPassphrase = errors.New("wrong passphrase or damaged key file")
	ErrKeyMismatch   = errors.New("private key does not match public key")
	ErrSignerClosed  = errors.New("signer used outside its scope")
)

// PublicKey verifies signatures.
type PublicKey struct {
	key ed25519.PublicKey
}

func (p *PublicKey) Verify(msg, sig []byte) error {
	if !ed25519.Verify(p.key, msg, sig) {
		return errors.New("ed25519 signature mismatch")
	}
	return nil
}

// Fingerprint is a short stable identifier of the key.
func (p *PublicKey) Fingerprint() string {
	sum := sha256.Sum256(p.key)
	return hex.EncodeToString(sum[:8])
}

// PrivateKey is the encrypted form of a signing key.
type PrivateKey struct {
	Public     *PublicKey
	Iterations int
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
}

// Generate creates a key pair and encrypts the private half.
func Generate(passphrase []byte) (*PublicKey, *PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	seed := priv.Seed()
	defer clear(seed)
	defer clear(priv)

	pk := &PrivateKey{Public: &PublicKey{key: pub}, Iterations: kdfIterations}
	pk.Salt = make([]byte, saltLen)
	if _, err := rand.Read(pk.Salt); err != nil {
		return nil, nil, err
	}
	aead, err := pk.cipher(passphrase)
	if err != nil {
		return nil, nil, err
	}
	pk.Nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(pk.Nonce); err != nil {
		return nil, nil, err
	}
	pk.Ciphertext = aead.Seal(nil, pk.Nonce, seed, pub)
	return pk.Public, pk, nil
}

func (k *PrivateKey) cipher(passphrase []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key(passphrase, k.Salt, k.Iterations, derivedLen, sha256.New)
	defer clear(derived)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

type signer struct {
	key    ed25519.PrivateKey
	closed bool
}

func (s *signer) Sign(msg []byte) ([]byte, error) {
	if s.closed {
		return nil, ErrSignerClosed
	}
	return ed25519.Sign(s.key, msg), nil
}

// WithSigner decrypts the key, hands a signer to fn and wipes the key
// material when fn returns, on every path.
func (k *PrivateKey) WithSigner(passphrase []byte, fn func(archive.Signer) error) error {
	aead, err := k.cipher(passphrase)
	if err != nil {
		return err
	}
	seed, err := aead.Open(nil, k.Nonce, k.Ciphertext, k.Public.key)
	if err != nil {
		return ErrBadPassphrase
	}
	defer clear(seed)
	if len(seed) != ed25519.SeedSize {
		return ErrBadPassphrase
	}
	s := &signer{key: ed25519.NewKeyFromSeed(seed)}
	defer func() {
		clear(s.key)
		s.closed = true
	}()
	if !bytes.Equal(s.key.Public().(ed25519.PublicKey), k.Public.key) {
		return ErrKeyMismatch
	}
	return fn(s)
}

// SavePublic writes the public key file.
func SavePublic(path string, p *PublicKey) error {
	var buf bytes.Buffer
	w := archive.NewWriter(&buf)
	w.PutString(algorithm)
	w.PutBytes(p.key)
	if err := w.Flush(); err != nil {
		return err
	}
	return archive.WriteFile(path, kindPublic, buf.Bytes(), archive.SealOptions{})
}

// LoadPublic reads a public key file.
func LoadPublic(path string) (*PublicKey, error) {
	data, _, err := archive.ReadFile(path, kindPublic, archive.OpenOptions{})
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	r := archive.NewReader(bytes.NewReader(data))
	alg := r.GetString()
	key := r.GetBytes()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	if alg != algorithm || len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("read public key: unsupported key %s/%d", alg, len(key))
	}
	return &PublicKey{key: key}, nil
}

// SavePrivate writes the encrypted private key file.
func SavePrivate(path string, k *PrivateKey) error {
	var buf bytes.Buffer
	w := archive.NewWriter(&buf)
	w.PutString(algorithm)
	w.PutBytes(k.Public.key)
	w.PutInt(k.Iterations)
	w.PutBytes(k.Salt)
	w.PutBytes(k.Nonce)
	w.PutBytes(k.Ciphertext)
	if err := w.Flush(); err != nil {
		return err
	}
	return archive.WriteFile(path, kindPrivate, buf.Bytes(), archive.SealOptions{})
}

// LoadPrivate reads an encrypted private key file.
func LoadPrivate(path string) (*PrivateKey, error) {
	data, _, err := archive.ReadFile(path, kindPrivate, archive.OpenOptions{})
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	r := archive.NewReader(bytes.NewReader(data))
	alg := r.GetString()
	pub := r.GetBytes()
	k := &PrivateKey{
		Public:     &PublicKey{key: pub},
		Iterations: r.GetInt(),
		Salt:       r.GetBytes(),
		Nonce:      r.GetBytes(),
		Ciphertext: r.GetBytes(),
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	if alg != algorithm || len(pub) != ed25519.PublicKeySize || k.Iterations <= 0 {
		return nil, fmt.Errorf("read private key: unsupported key")
	}
	return k, nil
}

// WithSigner loads the private key at path and runs fn with it.
func WithSigner(path string, passphrase []byte, fn func(archive.Signer) error) error {
	k, err := LoadPrivate(path)
	if err != nil {
		return err
	}
	return k.WithSigner(passphrase, fn)
}
