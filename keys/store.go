package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore keeps Ed25519 seeds on the local filesystem.
//
// EXPERIMENTAL: the on-disk layout may change in MINOR releases.
//
// Layout:
//
//	<Dir>/<name>/root.key
//	<Dir>/<name>/roles/<role>.key
//
// Each file holds a hex-encoded 32-byte seed. Role seeds are derived from the
// root seed with DeriveRoleSeed, so a lost role file can always be re-derived.
type KeyStore struct {
	Dir string
}

// Entry lists one named root key and its derived roles.
type Entry struct {
	Name  string
	Roles []string
}

// Source selects a seed for signing. The first non-empty field wins, in
// field order.
type Source struct {
	SeedHex string
	File    string
	Name    string
	Role    string
}

// DefaultDir returns ~/.xdoc/keys.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".xdoc", "keys"), nil
}

// OpenKeyStore returns a KeyStore rooted at dir, or at DefaultDir when dir is empty.
func OpenKeyStore(dir string) (*KeyStore, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, err
		}
	}
	return &KeyStore{Dir: dir}, nil
}

func (ks *KeyStore) rootPath(name string) string {
	return filepath.Join(ks.Dir, name, "root.key")
}

func (ks *KeyStore) rolePath(name, role string) string {
	return filepath.Join(ks.Dir, name, "roles", role+".key")
}

func checkIdent(what, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", what)
	}
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in %s", c, what)
	}
	return nil
}

// CheckName validates a key name: [A-Za-z0-9_-]+.
func CheckName(name string) error { return checkIdent("key name", name) }

// CheckRole validates a role: [A-Za-z0-9_-]+.
func CheckRole(role string) error { return checkIdent("role", role) }

// ParseSeedHex parses a 32-byte seed from hex, with optional 0x prefix.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimPrefix(strings.TrimSpace(seedHex), "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

func writeSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// InitRoot stores seed as the root key for name and returns its signer key.
// An existing root key is kept unless overwrite is set.
func (ks *KeyStore) InitRoot(name string, seed []byte, overwrite bool) (signerKey, path string, err error) {
	if err := CheckName(name); err != nil {
		return "", "", err
	}
	path = ks.rootPath(name)
	if err := writeSeed(path, seed, overwrite); err != nil {
		return "", "", err
	}
	return SignerKeyFromSeed(seed), path, nil
}

// DeriveRole derives and stores the role key for name.
func (ks *KeyStore) DeriveRole(name, role string, overwrite bool) (signerKey, path string, err error) {
	if err := CheckName(name); err != nil {
		return "", "", err
	}
	root, err := readSeed(ks.rootPath(name))
	if err != nil {
		return "", "", err
	}
	seed, err := DeriveRoleSeed(root, role)
	if err != nil {
		return "", "", err
	}
	path = ks.rolePath(name, role)
	if err := writeSeed(path, seed, overwrite); err != nil {
		return "", "", err
	}
	return SignerKeyFromSeed(seed), path, nil
}

// SignerKey returns the public signer key for name, or for its role when
// role is non-empty.
func (ks *KeyStore) SignerKey(name, role string) (string, error) {
	seed, err := ks.LoadSeed(Source{Name: name, Role: role})
	if err != nil {
		return "", err
	}
	return SignerKeyFromSeed(seed), nil
}

// LoadSeed resolves src to a seed.
func (ks *KeyStore) LoadSeed(src Source) ([]byte, error) {
	switch {
	case src.SeedHex != "":
		return ParseSeedHex(src.SeedHex)
	case src.File != "":
		return readSeed(src.File)
	case src.Name != "":
		if err := CheckName(src.Name); err != nil {
			return nil, err
		}
		if src.Role == "" {
			return readSeed(ks.rootPath(src.Name))
		}
		if err := CheckRole(src.Role); err != nil {
			return nil, err
		}
		return readSeed(ks.rolePath(src.Name, src.Role))
	default:
		return nil, errors.New("no signer provided")
	}
}

// List returns stored keys sorted by name, each with its sorted roles.
func (ks *KeyStore) List() ([]Entry, error) {
	dirs, err := os.ReadDir(ks.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []Entry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		e := Entry{Name: d.Name()}
		files, rerr := os.ReadDir(filepath.Join(ks.Dir, d.Name(), "roles"))
		if rerr == nil {
			for _, f := range files {
				if !f.IsDir() && strings.HasSuffix(f.Name(), ".key") {
					e.Roles = append(e.Roles, strings.TrimSuffix(f.Name(), ".key"))
				}
			}
			sort.Strings(e.Roles)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
