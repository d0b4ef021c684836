package keyfile

import (
	"errors"
	"path/filepath"
	"testing"

	"tripline/archive"
)

func init() {
	kdfIterations = 1000
}

func TestGenerateSaveLoadSign(t *testing.T) {
	dir := t.TempDir()
	pass := []byte("correct horse")
	pub, priv, err := Generate(pass)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	pubPath := filepath.Join(dir, "site.key")
	privPath := filepath.Join(dir, "local.key")
	if err := SavePublic(pubPath, pub); err != nil {
		t.Fatal(err)
	}
	if err := SavePrivate(privPath, priv); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadPublic(pubPath)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Fingerprint() != pub.Fingerprint() {
		t.Fatal("fingerprint changed across save/load")
	}

	msg := []byte("database payload")
	var sig []byte
	err = WithSigner(privPath, pass, func(s archive.Signer) error {
		var err error
		sig, err = s.Sign(msg)
		return err
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := loaded.Verify(msg, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if loaded.Verify([]byte("other"), sig) == nil {
		t.Fatal("verification must fail for other content")
	}
}

func TestWrongPassphrase(t *testing.T) {
	_, priv, err := Generate([]byte("right"))
	if err != nil {
		t.Fatal(err)
	}
	called := false
	err = priv.WithSigner([]byte("wrong"), func(archive.Signer) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrBadPassphrase) || called {
		t.Fatalf("expected ErrBadPassphrase without callback, got %v", err)
	}
}

func TestSignerWipedAfterScope(t *testing.T) {
	pass := []byte("pw")
	_, priv, _ := Generate(pass)
	var kept archive.Signer
	boom := errors.New("boom")
	err := priv.WithSigner(pass, func(s archive.Signer) error {
		kept = s
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("callback error not returned: %v", err)
	}
	if _, err := kept.Sign([]byte("late")); !errors.Is(err, ErrSignerClosed) {
		t.Fatalf("expected ErrSignerClosed, got %v", err)
	}
	inner := kept.(*signer)
	for _, b := range inner.key {
		if b != 0 {
			t.Fatal("key material not wiped")
		}
	}
}

func TestMismatchedPublicKey(t *testing.T) {
	pass := []byte("pw")
	other, _, _ := Generate(pass)
	_, priv, _ := Generate(pass)
	priv.Public = other
	if err := priv.WithSigner(pass, func(archive.Signer) error { return nil }); err == nil {
		t.Fatal("expected failure when public key does not belong to the private key")
	}
}
