package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"

	"xdao.co/xdoc/document"
	"xdao.co/xdoc/record"
)

// Signature algorithms.
const (
	AlgEd25519    = "ed25519"
	AlgDilithium3 = "dilithium3"
)

// ErrBadSignature reports a signature that does not verify.
var ErrBadSignature = errors.New("keys: signature does not verify")

// Signature is a detached signature over a document digest. It is itself a
// document (see Document and ParseSignature) so it can be stored alongside
// what it signs.
//
// Ed25519 signs the 32 digest bytes directly. Dilithium3 signs Hash(digest),
// where Hash is one of sha256, sha512, sha3-256.
type Signature struct {
	Alg    string `doc:"alg"`
	Hash   string `doc:"hash"`
	Key    string `doc:"key"`
	Digest string `doc:"digest"`
	Sig    string `doc:"sig"`
}

func digestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

// SignDigest signs d with an Ed25519 private key.
func SignDigest(d document.Digest, priv ed25519.PrivateKey) (Signature, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return Signature{}, errors.New("missing private key")
	}
	key, err := SignerKeyFromPublicKey(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return Signature{}, err
	}
	return Signature{
		Alg:    AlgEd25519,
		Key:    key,
		Digest: d.String(),
		Sig:    base64.StdEncoding.EncodeToString(ed25519.Sign(priv, d.Bytes())),
	}, nil
}

// SignDocument hashes v and signs its digest with the Ed25519 key for seed.
func SignDocument(v document.Value, seed []byte) (Signature, error) {
	if len(seed) != ed25519.SeedSize {
		return Signature{}, fmt.Errorf("seed must be %d bytes", ed25519.SeedSize)
	}
	d, err := document.Hash(v)
	if err != nil {
		return Signature{}, err
	}
	return SignDigest(d, ed25519.NewKeyFromSeed(seed))
}

// SignDigestDilithium3 signs hashAlg(d) with a Dilithium3 private key.
func SignDigestDilithium3(d document.Digest, hashAlg string, pub *mode3.PublicKey, priv *mode3.PrivateKey) (Signature, error) {
	if pub == nil || priv == nil {
		return Signature{}, errors.New("missing dilithium3 keypair")
	}
	msg, err := digestFor(hashAlg, d.Bytes())
	if err != nil {
		return Signature{}, err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(priv, msg, sig)
	return Signature{
		Alg:    AlgDilithium3,
		Hash:   hashAlg,
		Key:    AlgDilithium3 + ":" + base64.StdEncoding.EncodeToString(pub.Bytes()),
		Digest: d.String(),
		Sig:    base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// GenerateDilithium3Keypair returns a new Dilithium3 keypair.
func GenerateDilithium3Keypair(rand io.Reader) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand)
}

// Dilithium3FromSeed derives a Dilithium3 keypair from a 32-byte seed.
func Dilithium3FromSeed(seed []byte) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	if len(seed) != mode3.SeedSize {
		return nil, nil, fmt.Errorf("seed must be %d bytes", mode3.SeedSize)
	}
	var s [mode3.SeedSize]byte
	copy(s[:], seed)
	pub, priv := mode3.NewKeyFromSeed(&s)
	return pub, priv, nil
}

// Verify checks s against d. The digest recorded in s must equal d.
func (s Signature) Verify(d document.Digest) error {
	if s.Digest != d.String() {
		return fmt.Errorf("%w: signed digest %s, have %s", ErrBadSignature, s.Digest, d)
	}
	sig, err := base64.StdEncoding.DecodeString(s.Sig)
	if err != nil {
		return fmt.Errorf("keys: signature encoding: %w", err)
	}
	alg, keyB64, ok := strings.Cut(s.Key, ":")
	if !ok || alg != s.Alg {
		return fmt.Errorf("keys: key %q does not match alg %q", s.Key, s.Alg)
	}
	pubBytes, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return fmt.Errorf("keys: key encoding: %w", err)
	}

	switch s.Alg {
	case AlgEd25519:
		if len(pubBytes) != ed25519.PublicKeySize {
			return fmt.Errorf("keys: ed25519 key must be %d bytes", ed25519.PublicKeySize)
		}
		if !ed25519.Verify(ed25519.PublicKey(pubBytes), d.Bytes(), sig) {
			return ErrBadSignature
		}
	case AlgDilithium3:
		var pub mode3.PublicKey
		if err := pub.UnmarshalBinary(pubBytes); err != nil {
			return fmt.Errorf("keys: dilithium3 key: %w", err)
		}
		msg, err := digestFor(s.Hash, d.Bytes())
		if err != nil {
			return err
		}
		if !mode3.Verify(&pub, msg, sig) {
			return ErrBadSignature
		}
	default:
		return fmt.Errorf("keys: unsupported algorithm %q", s.Alg)
	}
	return nil
}

// VerifyDocument hashes v and verifies s against it.
func (s Signature) VerifyDocument(v document.Value) error {
	d, err := document.Hash(v)
	if err != nil {
		return err
	}
	return s.Verify(d)
}

// Document returns s as a map Value.
func (s Signature) Document() (document.Value, error) {
	return record.Marshal(s)
}

// ParseSignature reads a Signature from its document form.
func ParseSignature(v document.Value) (Signature, error) {
	var s Signature
	if err := record.Unmarshal(v, &s); err != nil {
		return Signature{}, err
	}
	return s, nil
}
