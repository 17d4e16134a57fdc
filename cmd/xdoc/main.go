// Command xdoc hashes, stores, signs and bundles canonical documents.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"xdao.co/xdoc/document"

	_ "xdao.co/xdoc/storage/grpccas"
	_ "xdao.co/xdoc/storage/ipfs"
	_ "xdao.co/xdoc/storage/localfs"
	_ "xdao.co/xdoc/storage/memcas"
	_ "xdao.co/xdoc/storage/sqlitecas"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "hash":
		return cmdHash(args[1:], out, errOut)
	case "canon":
		return cmdCanon(args[1:], out, errOut)
	case "cid":
		return cmdCID(args[1:], out, errOut)
	case "wire":
		return cmdWire(args[1:], out, errOut)
	case "put":
		return cmdPut(args[1:], out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "sign":
		return cmdSign(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "block":
		return cmdBlock(args[1:], out, errOut)
	case "bundle":
		return cmdBundle(args[1:], out, errOut)
	case "backends":
		return cmdBackends(args[1:], out, errOut)
	case "watch":
		return cmdWatch(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "xdoc: canonical document toolkit")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdoc hash <file> [<file> ...]")
	fmt.Fprintln(w, "  xdoc hash --glob <pattern>")
	fmt.Fprintln(w, "  xdoc canon [--indent] <file>")
	fmt.Fprintln(w, "  xdoc cid <file>")
	fmt.Fprintln(w, "  xdoc wire encode --out <file.cbor> <file>")
	fmt.Fprintln(w, "  xdoc wire decode [--indent] <file.cbor>")
	fmt.Fprintln(w, "  xdoc put [storage flags] <file>")
	fmt.Fprintln(w, "  xdoc get [storage flags] [--digest <hex>] <CID>")
	fmt.Fprintln(w, "  xdoc sign (--seed-hex <64hex> | --signer <name> [--signer-role <role>] | --key-file <path>) [--alg ed25519|dilithium3] [--hash sha256|sha512|sha3-256] <file>")
	fmt.Fprintln(w, "  xdoc verify --sig <sig.json> <file>")
	fmt.Fprintln(w, "  xdoc key init|derive|list|export ...")
	fmt.Fprintln(w, "  xdoc block put|get|has [storage flags] <file|CID>")
	fmt.Fprintln(w, "  xdoc bundle export [storage flags] --out <file> [--compression none|zstd|lz4|brotli] [--label name=CID ...] <CID> [<CID> ...]")
	fmt.Fprintln(w, "  xdoc bundle import [storage flags] [--ignore-unknown] <file>")
	fmt.Fprintln(w, "  xdoc backends")
	fmt.Fprintln(w, "  xdoc watch [--dir <dir>] [--glob <pattern>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Storage flags:")
	fmt.Fprintln(w, "  --backend <name> plus that backend's flags (see 'xdoc backends'), or")
	fmt.Fprintln(w, "  --cas-config <file.json|.toml|.yaml> [--prefer <id>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - input documents are JSON text; null and fractional numbers are rejected")
	fmt.Fprintln(w, "  - hash prints the canonical SHA-256 digest (hex); cid prints the CID of the wire encoding")
	fmt.Fprintln(w, "  - keys live under ~/.xdoc/keys/<name> unless --keys-dir is given")
}

func readDocument(path string) (document.Value, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return document.Value{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	v, err := document.Decode(b)
	if err != nil {
		return document.Value{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return v, nil
}

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint(*s) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
