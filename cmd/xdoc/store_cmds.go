package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/xdoc/document"
	"xdao.co/xdoc/storage"
	"xdao.co/xdoc/storage/bundle"
	"xdao.co/xdoc/storage/casconfig"
	"xdao.co/xdoc/storage/casregistry"
)

type casFlags struct {
	backend string
	config  string
	prefer  string
}

func addCASFlags(fs *flag.FlagSet) *casFlags {
	c := &casFlags{}
	fs.StringVar(&c.backend, "backend", "localfs", "CAS backend name (see 'xdoc backends')")
	fs.StringVar(&c.config, "cas-config", "", "Multi-backend config file (.json, .toml, .yaml); overrides --backend")
	fs.StringVar(&c.prefer, "prefer", "", "Backend id from --cas-config to write to first")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
	return c
}

func (c *casFlags) open() (storage.CAS, func() error, error) {
	var cas storage.CAS
	var closeFn func() error
	var err error
	if c.config != "" {
		cfg, lerr := casconfig.LoadFile(c.config)
		if lerr != nil {
			return nil, nil, lerr
		}
		cas, closeFn, err = cfg.Open(casregistry.UsageCLI, c.prefer)
	} else {
		cas, closeFn, err = casregistry.Open(c.backend, casregistry.UsageCLI)
	}
	if err != nil {
		return nil, nil, err
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return cas, closeFn, nil
}

func cmdBackends(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("backends", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(out, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
	}
	return 0
}

func cmdPut(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cf := addCASFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdoc put [storage flags] <file>")
		return 2
	}
	v, err := readDocument(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	cas, closeFn, err := cf.open()
	if err != nil {
		fmt.Fprintf(errOut, "open CAS: %v\n", err)
		return 2
	}
	defer closeFn()

	ref, err := storage.Documents{CAS: cas}.Put(context.Background(), v)
	if err != nil {
		fmt.Fprintf(errOut, "put: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "%s %s\n", ref.CID, ref.Digest)
	return 0
}

func cmdGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cf := addCASFlags(fs)
	var digestHex string
	var indent bool
	fs.StringVar(&digestHex, "digest", "", "Expected canonical digest (hex); fails on mismatch")
	fs.BoolVar(&indent, "indent", false, "Indent output")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdoc get [storage flags] [--digest <hex>] <CID>")
		return 2
	}
	id, err := cid.Decode(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid CID: %v\n", err)
		return 2
	}
	cas, closeFn, err := cf.open()
	if err != nil {
		fmt.Fprintf(errOut, "open CAS: %v\n", err)
		return 2
	}
	defer closeFn()

	docs := storage.Documents{CAS: cas}
	var v document.Value
	if digestHex != "" {
		d, derr := document.ParseDigest(digestHex)
		if derr != nil {
			fmt.Fprintf(errOut, "invalid --digest: %v\n", derr)
			return 2
		}
		v, err = docs.Resolve(context.Background(), storage.Ref{CID: id, Digest: d})
	} else {
		v, err = docs.Get(context.Background(), id)
	}
	if err != nil {
		fmt.Fprintf(errOut, "get: %v\n", err)
		return 1
	}
	return writeText(v, indent, out, errOut)
}

func cmdBundle(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdoc bundle <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: export, import")
		return 2
	}
	switch args[0] {
	case "export":
		return cmdBundleExport(args[1:], out, errOut)
	case "import":
		return cmdBundleImport(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown bundle subcommand: %s\n", args[0])
		return 2
	}
}

func cmdBundleExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cf := addCASFlags(fs)
	var outPath, compression string
	var labels stringList
	var noIndex bool
	fs.StringVar(&outPath, "out", "", "Output bundle file")
	fs.StringVar(&compression, "compression", "none", "Compression: none, zstd, lz4, brotli")
	fs.Var(&labels, "label", "Label as name=CID (repeatable)")
	fs.BoolVar(&noIndex, "no-index", false, "Omit index.json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if outPath == "" || fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: xdoc bundle export [storage flags] --out <file> [--compression c] [--label name=CID ...] <CID> [<CID> ...]")
		return 2
	}
	comp, err := bundle.ParseCompression(compression)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --compression: %v\n", err)
		return 2
	}

	ids := make([]cid.Cid, 0, fs.NArg())
	for _, s := range fs.Args() {
		id, err := cid.Decode(s)
		if err != nil {
			fmt.Fprintf(errOut, "invalid CID %q: %v\n", s, err)
			return 2
		}
		ids = append(ids, id)
	}
	labelMap := make(map[string]cid.Cid, len(labels))
	for _, l := range labels {
		name, value, ok := strings.Cut(l, "=")
		if !ok || name == "" {
			fmt.Fprintf(errOut, "invalid --label %q (want name=CID)\n", l)
			return 2
		}
		id, err := cid.Decode(value)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --label %q: %v\n", l, err)
			return 2
		}
		labelMap[name] = id
	}

	cas, closeFn, err := cf.open()
	if err != nil {
		fmt.Fprintf(errOut, "open CAS: %v\n", err)
		return 2
	}
	defer closeFn()

	f, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(errOut, "create --out: %v\n", err)
		return 1
	}
	err = bundle.Export(context.Background(), f, cas, ids, bundle.ExportOptions{
		Labels:       labelMap,
		IncludeIndex: !noIndex,
		Compression:  comp,
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(outPath)
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	return 0
}

func cmdBundleImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cf := addCASFlags(fs)
	var ignoreUnknown bool
	var maxBlock int64
	fs.BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip unknown archive entries instead of failing")
	fs.Int64Var(&maxBlock, "max-block-bytes", bundle.DefaultMaxBlockBytes, "Reject blocks larger than this")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdoc bundle import [storage flags] [--ignore-unknown] <file>")
		return 2
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open bundle: %v\n", err)
		return 1
	}
	defer f.Close()

	cas, closeFn, err := cf.open()
	if err != nil {
		fmt.Fprintf(errOut, "open CAS: %v\n", err)
		return 2
	}
	defer closeFn()

	ids, err := bundle.ImportWithOptions(context.Background(), f, cas, bundle.ImportOptions{
		IgnoreUnknown: ignoreUnknown,
		MaxBlockBytes: maxBlock,
	})
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	for _, id := range ids {
		_, _ = fmt.Fprintln(out, id)
	}
	return 0
}
