// Package bundle moves blocks between stores as a single archive.
//
// A bundle is a tar stream, optionally wrapped in zstd, lz4 or brotli:
//
//	blocks/<cid>   raw block bytes
//	index.json     optional, non-authoritative listing
//
// Export output is deterministic for a given set of CIDs, options and
// compression. Import verifies every block against its CID before writing.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/xdoc/cidutil"
	"xdao.co/xdoc/document"
	"xdao.co/xdoc/storage"
	"xdao.co/xdoc/wire"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

// DefaultMaxBlockBytes bounds a single imported block.
const DefaultMaxBlockBytes = 64 << 20

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to CIDs.
	Labels map[string]cid.Cid
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
	// Compression wraps the tar stream. Empty means none.
	Compression Compression
}

// Export writes a deterministic bundle containing the blocks for the given CIDs.
//
// Entry order is lexicographic and tar headers are normalized.
// All exported bytes are validated against their CIDs.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}
	cw, err := compressWriter(w, opts.Compression)
	if err != nil {
		return err
	}
	if err := writeTar(ctx, cw, cas, ids, opts); err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

func writeTar(ctx context.Context, w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) error {
	uniq := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}

	cidStrings := make([]string, 0, len(uniq))
	for s := range uniq {
		cidStrings = append(cidStrings, s)
	}
	sort.Strings(cidStrings)

	tw := tar.NewWriter(w)

	blocks := make([]document.Value, 0, len(cidStrings))
	for _, s := range cidStrings {
		id := uniq[s]
		b, err := cas.Get(ctx, id)
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: %s: %w", s, err)
		}
		ok, err := cidutil.Verify(id, b)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if !ok {
			_ = tw.Close()
			return storage.ErrCIDMismatch
		}

		if err := writeFile(tw, "blocks/"+s, b); err != nil {
			_ = tw.Close()
			return err
		}
		blocks = append(blocks, indexBlock(s, b))
	}

	if opts.IncludeIndex {
		idx, err := buildIndex(blocks, opts.Labels)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", idx); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

// indexBlock describes one block. Blocks that decode as wire documents also
// carry their canonical document digest.
func indexBlock(id string, b []byte) document.Value {
	entries := []document.Entry{
		{Key: "cid", Value: document.String(id)},
		{Key: "size", Value: document.Int(int64(len(b)))},
	}
	if v, err := wire.Unmarshal(b); err == nil {
		if d, err := document.Hash(v); err == nil {
			entries = append(entries, document.Entry{Key: "digest", Value: document.String(d.String())})
		}
	}
	return document.MapOf(entries...)
}

func buildIndex(blocks []document.Value, labels map[string]cid.Cid) ([]byte, error) {
	entries := []document.Entry{
		{Key: "version", Value: document.Int(FormatVersion)},
		{Key: "cidCodec", Value: document.String("raw")},
		{Key: "multihash", Value: document.String("sha2-256")},
		{Key: "blocks", Value: document.List(blocks...)},
	}

	if len(labels) > 0 {
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make([]document.Value, 0, len(keys))
		for _, k := range keys {
			if k == "" {
				return nil, fmt.Errorf("bundle: empty label key")
			}
			v := labels[k]
			if !v.Defined() {
				return nil, storage.ErrInvalidCID
			}
			out = append(out, document.MapOf(
				document.Entry{Key: "name", Value: document.String(k)},
				document.Entry{Key: "cid", Value: document.String(v.String())},
			))
		}
		entries = append(entries, document.Entry{Key: "labels", Value: document.List(out...)})
	}

	b, err := document.Encode(document.MapOf(entries...))
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown tar entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
	// Compression forces a decompressor. Empty detects it from the stream.
	Compression Compression
	// MaxBlockBytes bounds each block; zero means DefaultMaxBlockBytes.
	MaxBlockBytes int64
}

// Import reads a bundle from r and imports all blocks into cas.
//
// Default behavior is fail-closed: unknown entries cause an error.
// Use ImportWithOptions to allow ignoring unknown entries.
func Import(ctx context.Context, r io.Reader, cas storage.CAS) error {
	_, err := ImportWithOptions(ctx, r, cas, ImportOptions{})
	return err
}

// ImportWithOptions reads a bundle from r and imports all blocks into cas,
// returning the imported CIDs in archive order.
//
// It validates that each block's bytes match both the filename CID and the computed CID.
func ImportWithOptions(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) ([]cid.Cid, error) {
	if cas == nil {
		return nil, fmt.Errorf("bundle: nil CAS")
	}
	limit := opts.MaxBlockBytes
	if limit <= 0 {
		limit = DefaultMaxBlockBytes
	}

	dr, done, err := decompressReader(r, opts.Compression)
	if err != nil {
		return nil, err
	}
	defer done()

	tr := tar.NewReader(dr)
	seen := map[string]struct{}{}
	var imported []cid.Cid

	for {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		h, err := tr.Next()
		if err == io.EOF {
			return imported, nil
		}
		if err != nil {
			return imported, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return imported, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return imported, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		// Non-authoritative metadata.
		if name == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return imported, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, derr := cid.Decode(strings.TrimPrefix(name, "blocks/"))
		if derr != nil || !id.Defined() {
			return imported, storage.ErrInvalidCID
		}
		if h.Size > limit {
			return imported, fmt.Errorf("bundle: block %s exceeds %d bytes", id, limit)
		}

		payload, rerr := io.ReadAll(io.LimitReader(tr, limit+1))
		if rerr != nil {
			return imported, rerr
		}
		if int64(len(payload)) > limit {
			return imported, fmt.Errorf("bundle: block %s exceeds %d bytes", id, limit)
		}
		ok, herr := cidutil.Verify(id, payload)
		if herr != nil {
			return imported, herr
		}
		if !ok {
			return imported, storage.ErrCIDMismatch
		}

		key := id.String()
		if _, dup := seen[key]; dup {
			return imported, fmt.Errorf("bundle: duplicate block entry: %s", key)
		}
		seen[key] = struct{}{}

		putID, perr := cas.Put(ctx, payload)
		if perr != nil {
			return imported, perr
		}
		if !putID.Equals(id) {
			return imported, storage.ErrCIDMismatch
		}
		imported = append(imported, id)
	}
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return strings.Join(parts, "/")
}
