package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"xdao.co/xdoc/storage"
)

// cmdBlock works on raw blocks (CIDv1 raw + sha2-256), bypassing the
// document layer.
func cmdBlock(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdoc block <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: put, get, has")
		return 2
	}
	switch args[0] {
	case "put":
		return cmdBlockPut(args[1:], out, errOut)
	case "get":
		return cmdBlockGet(args[1:], out, errOut)
	case "has":
		return cmdBlockHas(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown block subcommand: %s\n", args[0])
		return 2
	}
}

func cmdBlockPut(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("block put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cf := addCASFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdoc block put [storage flags] <file>")
		return 2
	}
	p := fs.Arg(0)
	b, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
		return 1
	}
	cas, closeFn, err := cf.open()
	if err != nil {
		fmt.Fprintf(errOut, "open CAS: %v\n", err)
		return 2
	}
	defer closeFn()

	id, err := cas.Put(context.Background(), b)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdBlockGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("block get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cf := addCASFlags(fs)
	var outPath string
	fs.StringVar(&outPath, "out", "", "Output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdoc block get [storage flags] [--out <file>] <CID>")
		return 2
	}
	id, err := cid.Decode(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, storage.ErrInvalidCID)
		return 2
	}
	cas, closeFn, err := cf.open()
	if err != nil {
		fmt.Fprintf(errOut, "open CAS: %v\n", err)
		return 2
	}
	defer closeFn()

	b, err := cas.Get(context.Background(), id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if outPath == "" {
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func cmdBlockHas(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("block has", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cf := addCASFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdoc block has [storage flags] <CID>")
		return 2
	}
	id, err := cid.Decode(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, storage.ErrInvalidCID)
		return 2
	}
	cas, closeFn, err := cf.open()
	if err != nil {
		fmt.Fprintf(errOut, "open CAS: %v\n", err)
		return 2
	}
	defer closeFn()

	ok, err := cas.Has(context.Background(), id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if !ok {
		_, _ = fmt.Fprintln(out, "absent")
		return 1
	}
	_, _ = fmt.Fprintln(out, "present")
	return 0
}
