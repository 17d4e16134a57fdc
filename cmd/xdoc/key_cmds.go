package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"os"

	"xdao.co/xdoc/document"
	"xdao.co/xdoc/keys"
)

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "xdoc key: local signing keys")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdoc key init --name <name> [--seed-hex <64hex>] [--force] [--keys-dir <dir>]")
	fmt.Fprintln(w, "  xdoc key derive --from <name> --role <role> [--force] [--keys-dir <dir>]")
	fmt.Fprintln(w, "  xdoc key list [--keys-dir <dir>]")
	fmt.Fprintln(w, "  xdoc key export --name <name> [--role <role>] [--keys-dir <dir>]")
}

func keysDirFlag(fs *flag.FlagSet) *string {
	return fs.String("keys-dir", "", "Key store directory (default ~/.xdoc/keys)")
}

func openKeyStore(dir string, errOut io.Writer) (*keys.KeyStore, bool) {
	ks, err := keys.OpenKeyStore(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return nil, false
	}
	return ks, true
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)
	dir := keysDirFlag(fs)
	var name, seedHex string
	var force bool
	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}

	var seed []byte
	if seedHex != "" {
		var err error
		if seed, err = keys.ParseSeedHex(seedHex); err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	ks, ok := openKeyStore(*dir, errOut)
	if !ok {
		return 1
	}
	signerKey, path, err := ks.InitRoot(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", signerKey)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)
	dir := keysDirFlag(fs)
	var from, role string
	var force bool
	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&role, "role", "", "Role identifier (e.g. publisher, reviewer)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" || role == "" {
		fmt.Fprintln(errOut, "usage: xdoc key derive --from <name> --role <role>")
		return 2
	}
	if err := keys.CheckRole(role); err != nil {
		fmt.Fprintf(errOut, "invalid --role: %v\n", err)
		return 2
	}
	ks, ok := openKeyStore(*dir, errOut)
	if !ok {
		return 1
	}
	signerKey, path, err := ks.DeriveRole(from, role, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive role key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created role key: %s\n", signerKey)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	dir := keysDirFlag(fs)
	var name, role string
	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&role, "role", "", "Optional role (exports the derived role key)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	ks, ok := openKeyStore(*dir, errOut)
	if !ok {
		return 1
	}
	signerKey, err := ks.SignerKey(name, role)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, signerKey)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	dir := keysDirFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, ok := openKeyStore(*dir, errOut)
	if !ok {
		return 1
	}
	entries, err := ks.List()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Name)
		for _, r := range e.Roles {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return 0
}

func cmdSign(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(errOut)
	dir := keysDirFlag(fs)
	var src keys.Source
	var alg, hashAlg, outPath string
	fs.StringVar(&src.SeedHex, "seed-hex", "", "Signing seed as 64 hex chars")
	fs.StringVar(&src.Name, "signer", "", "Key name in the key store")
	fs.StringVar(&src.Role, "signer-role", "", "Role key of --signer")
	fs.StringVar(&src.File, "key-file", "", "Seed file (hex)")
	fs.StringVar(&alg, "alg", keys.AlgEd25519, "Signature algorithm: ed25519, dilithium3")
	fs.StringVar(&hashAlg, "hash", "sha3-256", "Prehash for dilithium3: sha256, sha512, sha3-256")
	fs.StringVar(&outPath, "out", "", "Write the signature document here instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdoc sign (--seed-hex <64hex> | --signer <name> [--signer-role <role>] | --key-file <path>) <file>")
		return 2
	}
	ks, ok := openKeyStore(*dir, errOut)
	if !ok {
		return 1
	}
	seed, err := ks.LoadSeed(src)
	if err != nil {
		fmt.Fprintf(errOut, "load signer: %v\n", err)
		return 2
	}
	v, err := readDocument(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	d, err := document.Hash(v)
	if err != nil {
		fmt.Fprintf(errOut, "hash: %v\n", err)
		return 1
	}

	var sig keys.Signature
	switch alg {
	case keys.AlgEd25519:
		sig, err = keys.SignDigest(d, ed25519.NewKeyFromSeed(seed))
	case keys.AlgDilithium3:
		pub, priv, kerr := keys.Dilithium3FromSeed(seed)
		if kerr != nil {
			err = kerr
			break
		}
		sig, err = keys.SignDigestDilithium3(d, hashAlg, pub, priv)
	default:
		fmt.Fprintf(errOut, "invalid --alg %q\n", alg)
		return 2
	}
	if err != nil {
		fmt.Fprintf(errOut, "sign: %v\n", err)
		return 1
	}
	sv, err := sig.Document()
	if err != nil {
		fmt.Fprintf(errOut, "sign: %v\n", err)
		return 1
	}
	if outPath == "" {
		return writeText(sv, true, out, errOut)
	}
	b, err := document.EncodeIndent(sv, "", "  ")
	if err != nil {
		fmt.Fprintf(errOut, "encode: %v\n", err)
		return 1
	}
	if err := os.WriteFile(outPath, append(b, '\n'), 0o644); err != nil {
		fmt.Fprintf(errOut, "write --out: %v\n", err)
		return 1
	}
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sigPath, wantKey string
	fs.StringVar(&sigPath, "sig", "", "Signature document")
	fs.StringVar(&wantKey, "key", "", "Require this signer key (e.g. from 'xdoc key export')")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if sigPath == "" || fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdoc verify --sig <sig.json> [--key <signer key>] <file>")
		return 2
	}
	sv, err := readDocument(sigPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	sig, err := keys.ParseSignature(sv)
	if err != nil {
		fmt.Fprintf(errOut, "invalid signature document: %v\n", err)
		return 1
	}
	if wantKey != "" && sig.Key != wantKey {
		fmt.Fprintf(errOut, "invalid: signed by %s\n", sig.Key)
		return 1
	}
	v, err := readDocument(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if err := sig.VerifyDocument(v); err != nil {
		fmt.Fprintf(errOut, "invalid: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, "OK")
	return 0
}
