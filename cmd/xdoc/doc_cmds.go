package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/bmatcuk/doublestar/v4"

	"xdao.co/xdoc/cidutil"
	"xdao.co/xdoc/document"
	"xdao.co/xdoc/wire"
)

func cmdHash(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var pattern string
	fs.StringVar(&pattern, "glob", "", "Hash every file matching a doublestar pattern (e.g. 'docs/**/*.json')")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	paths := fs.Args()
	if pattern != "" {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			fmt.Fprintf(errOut, "invalid --glob: %v\n", err)
			return 2
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		fmt.Fprintln(errOut, "usage: xdoc hash <file> [<file> ...] | --glob <pattern>")
		return 2
	}

	// A single positional file prints the bare digest; anything else is
	// listed sha256sum-style.
	bare := pattern == "" && len(paths) == 1
	status := 0
	for _, p := range paths {
		d, err := hashFile(p)
		if err != nil {
			fmt.Fprintln(errOut, err)
			status = 1
			continue
		}
		if bare {
			_, _ = fmt.Fprintln(out, d)
		} else {
			_, _ = fmt.Fprintf(out, "%s  %s\n", d, p)
		}
	}
	return status
}

func hashFile(path string) (document.Digest, error) {
	v, err := readDocument(path)
	if err != nil {
		return document.Digest{}, err
	}
	return document.Hash(v)
}

func cmdCanon(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("canon", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var indent bool
	fs.BoolVar(&indent, "indent", false, "Indent output")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdoc canon [--indent] <file>")
		return 2
	}
	v, err := readDocument(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return writeText(v, indent, out, errOut)
}

func writeText(v document.Value, indent bool, out io.Writer, errOut io.Writer) int {
	var b []byte
	var err error
	if indent {
		b, err = document.EncodeIndent(v, "", "  ")
	} else {
		b, err = document.Encode(v)
	}
	if err != nil {
		fmt.Fprintf(errOut, "encode: %v\n", err)
		return 1
	}
	_, _ = out.Write(append(b, '\n'))
	return 0
}

func cmdCID(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("cid", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdoc cid <file>")
		return 2
	}
	v, err := readDocument(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	id, err := cidutil.DocumentCID(v)
	if err != nil {
		fmt.Fprintf(errOut, "cid: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id)
	return 0
}

func cmdWire(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdoc wire <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: encode, decode")
		return 2
	}
	switch args[0] {
	case "encode":
		fs := flag.NewFlagSet("wire encode", flag.ContinueOnError)
		fs.SetOutput(errOut)
		var outPath string
		fs.StringVar(&outPath, "out", "", "Output file for the wire bytes")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() != 1 || outPath == "" {
			fmt.Fprintln(errOut, "usage: xdoc wire encode --out <file.cbor> <file>")
			return 2
		}
		v, err := readDocument(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		b, err := wire.Marshal(v)
		if err != nil {
			fmt.Fprintf(errOut, "wire: %v\n", err)
			return 1
		}
		if err := os.WriteFile(outPath, b, 0o644); err != nil {
			fmt.Fprintf(errOut, "write --out: %v\n", err)
			return 1
		}
		return 0
	case "decode":
		fs := flag.NewFlagSet("wire decode", flag.ContinueOnError)
		fs.SetOutput(errOut)
		var indent bool
		fs.BoolVar(&indent, "indent", false, "Indent output")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: xdoc wire decode [--indent] <file.cbor>")
			return 2
		}
		b, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "read: %v\n", err)
			return 1
		}
		v, err := wire.Unmarshal(b)
		if err != nil {
			fmt.Fprintf(errOut, "wire: %v\n", err)
			return 1
		}
		return writeText(v, indent, out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown wire subcommand: %s\n", args[0])
		return 2
	}
}

