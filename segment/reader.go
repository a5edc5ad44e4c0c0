package segment

import (
	"context"
	"encoding/binary"

	"github.com/zeebo/xxh3"

	"github.com/launix-de/chronostore/objectstore"
)

// initialFooterGuess is how many trailing bytes we fetch speculatively
// before knowing the footer's exact length; large enough to avoid a
// second round trip for the overwhelming majority of segments.
const initialFooterGuess = 64 * 1024

// ReadFooter reads the trailing region of the file at key (once more
// when the footer is larger than initialFooterGuess) plus its four
// leading bytes, validating both magic markers — for an object larger
// than initialFooterGuess, metadata queries never download the full
// file. objectSize comes from the segment descriptor the
// Manifest already tracks.
func ReadFooter(ctx context.Context, rr objectstore.RangeReader, key string, objectSize int64) (*Footer, error) {
	if objectSize < int64(len(magic))+int64(trailerSize) {
		return nil, corrupt("object too small to contain a footer", nil)
	}
	guess := int64(initialFooterGuess)
	if guess > objectSize {
		guess = objectSize
	}
	tail, err := rr.ReadRange(ctx, key, objectSize-guess, objectSize, true)
	if err != nil {
		return nil, err
	}
	if len(tail) < trailerSize {
		return nil, corrupt("trailing read shorter than trailer", nil)
	}
	trailer := tail[len(tail)-trailerSize:]
	var gotMagic [4]byte
	copy(gotMagic[:], trailer[12:16])
	if gotMagic != magic {
		return nil, corrupt("trailing magic mismatch", nil)
	}
	wantChecksum := binary.LittleEndian.Uint64(trailer[0:8])
	footerLen := int64(binary.LittleEndian.Uint32(trailer[8:12]))

	need := footerLen + int64(trailerSize)
	var footerBytes []byte
	if need <= int64(len(tail)) {
		footerBytes = tail[int64(len(tail))-need : int64(len(tail))-int64(trailerSize)]
	} else {
		// Footer is bigger than our speculative guess; re-read exactly
		// the region we now know we need.
		full, err := rr.ReadRange(ctx, key, objectSize-need, objectSize-int64(trailerSize), false)
		if err != nil {
			return nil, err
		}
		footerBytes = full
	}

	// Validate the leading magic too: a zero-length or truncated file
	// that happens to end in plausible-looking trailer bytes should
	// still be rejected.
	head, err := rr.ReadRange(ctx, key, 0, int64(len(magic)), false)
	if err != nil {
		return nil, err
	}
	var headMagic [4]byte
	copy(headMagic[:], head)
	if headMagic != magic {
		return nil, corrupt("leading magic mismatch", nil)
	}
	if xxh3.Hash(footerBytes) != wantChecksum {
		return nil, corrupt("footer checksum mismatch", nil)
	}

	return unmarshalFooter(footerBytes)
}

// ReadRowGroup materializes columnProjection (nil/empty means "all
// columns") of the row group at rowGroupIndex. Decoding preserves row
// order: the i-th logical row in the group is out[col][i] for every
// projected column.
func ReadRowGroup(ctx context.Context, rr objectstore.RangeReader, key string, footer *Footer, rowGroupIndex int, columnProjection []string) (map[string][]any, error) {
	if rowGroupIndex < 0 || rowGroupIndex >= len(footer.RowGroups) {
		return nil, corrupt("row group index out of range", nil)
	}
	rg := footer.RowGroups[rowGroupIndex]

	wanted := columnProjection
	if len(wanted) == 0 {
		for _, c := range rg.Columns {
			wanted = append(wanted, c.Name)
		}
	}

	schemaByName := make(map[string]ColumnDef, len(footer.Schema))
	for _, c := range footer.Schema {
		schemaByName[c.Name] = c
	}

	out := make(map[string][]any, len(wanted))
	for _, name := range wanted {
		chunk, ok := rg.ColumnByName(name)
		if !ok {
			return nil, corrupt("projected column not present in row group: "+name, nil)
		}
		raw, err := rr.ReadRange(ctx, key, chunk.Offset, chunk.Offset+chunk.Length, false)
		if err != nil {
			return nil, err
		}
		if xxh3.Hash(raw) != chunk.Checksum {
			return nil, corrupt("column chunk checksum mismatch: "+name, nil)
		}
		decompressed, err := decompressChunk(chunk.Compression, raw, int(chunk.UncompressedLength))
		if err != nil {
			return nil, err
		}
		def, ok := schemaByName[name]
		if !ok {
			return nil, corrupt("projected column missing from schema: "+name, nil)
		}
		values, err := decodeColumn(def, decompressed)
		if err != nil {
			return nil, err
		}
		out[name] = values
	}
	return out, nil
}

// Predicate is one per-column inclusive range bound; a scan's
// predicate set is their conjunction. A missing bound on either side
// means unbounded on that side.
type Predicate struct {
	Column      string
	HasMinBound bool
	MinInt      int64
	MinStr      string
	HasMaxBound bool
	MaxInt      int64
	MaxStr      string
	IsString    bool
}

// CanSkip reports whether rg provably contains no row satisfying p,
// using only the column's min/max statistics — never decoding a
// single value. A column with HasMinMax false (all-null, or an
// opaque-map column) can never be proven unsatisfiable and CanSkip
// returns false for it.
func CanSkip(rg RowGroupMeta, p Predicate) bool {
	c, ok := rg.ColumnByName(p.Column)
	if !ok || !c.Stats.HasMinMax {
		return false
	}
	if p.IsString {
		if p.HasMaxBound && c.Stats.MinStr > p.MaxStr {
			return true
		}
		if p.HasMinBound && c.Stats.MaxStr < p.MinStr {
			return true
		}
		return false
	}
	if p.HasMaxBound && c.Stats.MinInt > p.MaxInt {
		return true
	}
	if p.HasMinBound && c.Stats.MaxInt < p.MinInt {
		return true
	}
	return false
}

// CanSkipSegment reports whether every row group in footer can be
// skipped for every predicate in conjunction — i.e. the whole segment
// is provably irrelevant and the event Reader may drop it without a
// single row-group page fetch beyond the footer itself.
func CanSkipSegment(footer *Footer, predicates []Predicate) bool {
	for _, rg := range footer.RowGroups {
		skip := false
		for _, p := range predicates {
			if CanSkip(rg, p) {
				skip = true
				break
			}
		}
		if !skip {
			return false
		}
	}
	return true
}
