package chunk

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"
)

// ShardReader streams chunk records out of one gzip shard file.
type ShardReader struct {
	f   *os.File
	gz  *gzip.Reader
	dec *msgpack.Decoder
}

// OpenShard opens a shard file for sequential reading.
func OpenShard(path string) (*ShardReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chunk: open shard %s: %w", path, err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("chunk: read shard header %s: %w", path, err)
	}
	return &ShardReader{
		f:   f,
		gz:  gz,
		dec: msgpack.NewDecoder(gz),
	}, nil
}

// Next decodes the next record. It returns io.EOF once the shard is
// exhausted.
func (r *ShardReader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("chunk: decode record: %w", err)
	}
	return rec, nil
}

// Close releases the underlying file.
func (r *ShardReader) Close() error {
	gzErr := r.gz.Close()
	if err := r.f.Close(); err != nil {
		return err
	}
	return gzErr
}

// ShardWriter appends chunk records to a gzip shard file. Used by recorders
// and test fixtures; the reader is the hot path.
type ShardWriter struct {
	f   *os.File
	gz  *gzip.Writer
	enc *msgpack.Encoder
}

// CreateShard creates (or truncates) a shard file for writing.
func CreateShard(path string) (*ShardWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("chunk: create shard %s: %w", path, err)
	}
	gz := gzip.NewWriter(f)
	return &ShardWriter{
		f:   f,
		gz:  gz,
		enc: msgpack.NewEncoder(gz),
	}, nil
}

// Append writes one record to the shard.
func (w *ShardWriter) Append(rec Record) error {
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("chunk: encode record: %w", err)
	}
	return nil
}

// Close flushes the compressed stream and closes the file.
func (w *ShardWriter) Close() error {
	gzErr := w.gz.Close()
	if err := w.f.Close(); err != nil {
		return err
	}
	return gzErr
}
