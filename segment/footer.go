package segment

import "encoding/json"

// magic brackets the file the way a mainstream columnar format does
// (four bytes at the very start, four more at the very end, after the
// footer and its checksum and length),
// so a reader can sanity-check both ends without a full scan.
var magic = [4]byte{'C', 'S', 'E', 'G'}

const formatVersion = 1

// trailerSize is the fixed-size region after the footer bytes: an
// xxh3 checksum of the footer, a little-endian uint32 footer length,
// then the trailing magic.
const trailerSize = 8 + 4 + len(magic)

type jsonColumnDef struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Compression string `json:"compression"`
}

type jsonColumnStats struct {
	NullCount int64  `json:"null_count"`
	RowCount  int64  `json:"row_count"`
	HasMinMax bool   `json:"has_min_max,omitempty"`
	MinInt    int64  `json:"min_int,omitempty"`
	MaxInt    int64  `json:"max_int,omitempty"`
	MinStr    string `json:"min_str,omitempty"`
	MaxStr    string `json:"max_str,omitempty"`
}

type jsonColumnChunk struct {
	Name               string          `json:"name"`
	Type               string          `json:"type"`
	Compression        string          `json:"compression"`
	Offset             int64           `json:"offset"`
	Length             int64           `json:"length"`
	UncompressedLength int64           `json:"uncompressed_length"`
	Checksum           uint64          `json:"checksum"`
	Stats              jsonColumnStats `json:"stats"`
}

type jsonRowGroup struct {
	RowCount int64             `json:"row_count"`
	Columns  []jsonColumnChunk `json:"columns"`
}

type jsonFooter struct {
	FormatVersion int            `json:"format_version"`
	Schema        []jsonColumnDef `json:"schema"`
	RowGroups     []jsonRowGroup  `json:"row_groups"`
}

func compressionName(c Compression) string { return c.String() }

func parseCompression(s string) (Compression, error) {
	switch s {
	case "none":
		return Uncompressed, nil
	case "snappy":
		return Snappy, nil
	case "lz4":
		return LZ4, nil
	case "gzip":
		return Gzip, nil
	case "zstd":
		return Zstd, nil
	}
	return 0, corrupt("unknown compression name in footer: "+s, nil)
}

func marshalFooter(f *Footer) ([]byte, error) {
	jf := jsonFooter{FormatVersion: f.FormatVersion}
	for _, c := range f.Schema {
		jf.Schema = append(jf.Schema, jsonColumnDef{Name: c.Name, Type: c.Type.String(), Compression: compressionName(c.Compression)})
	}
	for _, rg := range f.RowGroups {
		jrg := jsonRowGroup{RowCount: rg.RowCount}
		for _, c := range rg.Columns {
			jrg.Columns = append(jrg.Columns, jsonColumnChunk{
				Name:               c.Name,
				Type:               c.Type.String(),
				Compression:        compressionName(c.Compression),
				Offset:             c.Offset,
				Length:             c.Length,
				UncompressedLength: c.UncompressedLength,
				Checksum:           c.Checksum,
				Stats: jsonColumnStats{
					NullCount: c.Stats.NullCount,
					RowCount:  c.Stats.RowCount,
					HasMinMax: c.Stats.HasMinMax,
					MinInt:    c.Stats.MinInt,
					MaxInt:    c.Stats.MaxInt,
					MinStr:    c.Stats.MinStr,
					MaxStr:    c.Stats.MaxStr,
				},
			})
		}
		jf.RowGroups = append(jf.RowGroups, jrg)
	}
	return json.Marshal(jf)
}

func unmarshalFooter(data []byte) (*Footer, error) {
	var jf jsonFooter
	if err := json.Unmarshal(data, &jf); err != nil {
		return nil, corrupt("footer is not valid JSON", err)
	}
	if jf.FormatVersion != formatVersion {
		return nil, corrupt("unsupported format version", nil)
	}
	f := &Footer{FormatVersion: jf.FormatVersion}
	for _, c := range jf.Schema {
		t, err := parseLogicalType(c.Type)
		if err != nil {
			return nil, corrupt("footer schema", err)
		}
		comp, err := parseCompression(c.Compression)
		if err != nil {
			return nil, err
		}
		f.Schema = append(f.Schema, ColumnDef{Name: c.Name, Type: t, Compression: comp})
	}
	for _, jrg := range jf.RowGroups {
		rg := RowGroupMeta{RowCount: jrg.RowCount}
		for _, c := range jrg.Columns {
			t, err := parseLogicalType(c.Type)
			if err != nil {
				return nil, corrupt("row group column schema", err)
			}
			comp, err := parseCompression(c.Compression)
			if err != nil {
				return nil, err
			}
			rg.Columns = append(rg.Columns, ColumnChunkMeta{
				Name:               c.Name,
				Type:               t,
				Compression:        comp,
				Offset:             c.Offset,
				Length:             c.Length,
				UncompressedLength: c.UncompressedLength,
				Checksum:           c.Checksum,
				Stats: ColumnStats{
					NullCount: c.Stats.NullCount,
					RowCount:  c.Stats.RowCount,
					HasMinMax: c.Stats.HasMinMax,
					MinInt:    c.Stats.MinInt,
					MaxInt:    c.Stats.MaxInt,
					MinStr:    c.Stats.MinStr,
					MaxStr:    c.Stats.MaxStr,
				},
			})
		}
		f.RowGroups = append(f.RowGroups, rg)
	}
	return f, nil
}
