package segment

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// WriterOptions bounds how many rows/bytes accumulate before a row
// group is flushed.
type WriterOptions struct {
	TargetRows  int
	TargetBytes int64
}

// DefaultWriterOptions carries conservative soft caps; callers
// normally load these from config.
var DefaultWriterOptions = WriterOptions{TargetRows: 8192, TargetBytes: 8 << 20}

// Writer accumulates rows into row groups and produces a single
// self-describing file on Finish. It is not safe for concurrent use;
// the event Writer and the Compactor each own one Writer per
// segment they build.
type Writer struct {
	schema  []ColumnDef
	opts    WriterOptions
	pending map[string][]any
	rows    int

	out       []byte // file bytes assembled so far, magic already written
	rowGroups []RowGroupMeta
}

// NewWriter creates a Writer for schema. Column order in schema is
// the column order every row group encodes. Zero-valued caps fall
// back to the defaults so a zero WriterOptions doesn't flush a row
// group per row.
func NewWriter(schema []ColumnDef, opts WriterOptions) *Writer {
	if opts.TargetRows <= 0 {
		opts.TargetRows = DefaultWriterOptions.TargetRows
	}
	if opts.TargetBytes <= 0 {
		opts.TargetBytes = DefaultWriterOptions.TargetBytes
	}
	w := &Writer{schema: schema, opts: opts, pending: make(map[string][]any, len(schema))}
	w.out = append(w.out, magic[:]...)
	for _, c := range schema {
		w.pending[c.Name] = nil
	}
	return w
}

// WriteRow appends one logical row. row holds one entry per schema
// column (nil for SQL-style null); a schema column missing from row is
// written as null and keys outside the schema are ignored. The writer
// does not reorder rows, matching the codec's "decoding
// is order-preserving" contract in reverse: encoding is also
// order-preserving, the i-th WriteRow call becomes the i-th row.
func (w *Writer) WriteRow(row map[string]any) error {
	for _, c := range w.schema {
		v, ok := row[c.Name]
		if !ok {
			v = nil
		}
		w.pending[c.Name] = append(w.pending[c.Name], v)
	}
	w.rows++
	if w.rows >= w.opts.TargetRows || w.pendingBytesEstimate() >= w.opts.TargetBytes {
		return w.flush()
	}
	return nil
}

// pendingBytesEstimate gives a cheap (not exact) estimate so the
// target_bytes cap doesn't require encoding on every row.
func (w *Writer) pendingBytesEstimate() int64 {
	var n int64
	for _, vals := range w.pending {
		for _, v := range vals {
			switch s := v.(type) {
			case string:
				n += int64(len(s)) + 8
			default:
				n += 16
			}
		}
	}
	return n
}

func (w *Writer) flush() error {
	if w.rows == 0 {
		return nil
	}
	rg := RowGroupMeta{RowCount: int64(w.rows)}
	for _, c := range w.schema {
		raw, stats, err := encodeColumn(c, w.pending[c.Name])
		if err != nil {
			return err
		}
		compressed, err := compressChunk(c.Compression, raw)
		if err != nil {
			return err
		}
		chunk := ColumnChunkMeta{
			Name:               c.Name,
			Type:               c.Type,
			Compression:        c.Compression,
			Offset:             int64(len(w.out)),
			Length:             int64(len(compressed)),
			UncompressedLength: int64(len(raw)),
			Checksum:           xxh3.Hash(compressed),
			Stats:              stats,
		}
		w.out = append(w.out, compressed...)
		rg.Columns = append(rg.Columns, chunk)
	}
	w.rowGroups = append(w.rowGroups, rg)
	for k := range w.pending {
		w.pending[k] = nil
	}
	w.rows = 0
	return nil
}

// Finish flushes any partial row group and appends the footer and
// trailer, returning the complete file bytes.
func (w *Writer) Finish() ([]byte, *Footer, error) {
	if err := w.flush(); err != nil {
		return nil, nil, err
	}
	footer := &Footer{FormatVersion: formatVersion, Schema: w.schema, RowGroups: w.rowGroups}
	footerBytes, err := marshalFooter(footer)
	if err != nil {
		return nil, nil, err
	}
	out := append(w.out, footerBytes...)
	var trailer [8]byte
	binary.LittleEndian.PutUint64(trailer[:], xxh3.Hash(footerBytes))
	out = append(out, trailer[:]...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(footerBytes)))
	out = append(out, lenBuf[:]...)
	out = append(out, magic[:]...)
	return out, footer, nil
}
