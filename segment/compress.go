package segment

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

func compressChunk(codec Compression, data []byte) ([]byte, error) {
	switch codec {
	case Uncompressed:
		return data, nil
	case Snappy:
		return snappy.Encode(nil, data), nil
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Gzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, corrupt("unknown compression codec", nil)
	}
}

func decompressChunk(codec Compression, data []byte, uncompressedLen int) ([]byte, error) {
	switch codec {
	case Uncompressed:
		return data, nil
	case Snappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, corrupt("snappy decode failed", err)
		}
		return out, nil
	case LZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		out := make([]byte, uncompressedLen)
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, corrupt("lz4 decode failed", err)
		}
		return out, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, corrupt("gzip header invalid", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, corrupt("gzip decode failed", err)
		}
		return out, nil
	case Zstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, corrupt("zstd reader init failed", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, corrupt("zstd decode failed", err)
		}
		return out, nil
	default:
		return nil, corrupt("unknown compression codec", nil)
	}
}
