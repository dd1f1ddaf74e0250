package vcf

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/teranos/anvil/errors"
)

var gzipMagic = []byte{0x1f, 0x8b}

// readBufferSize fits typical multi-sample VCF lines without regrowth
const readBufferSize = 1 << 20

// Reader yields lines of a plain, gzip or bgzip VCF. Compression is detected
// from magic bytes, not the file name.
type Reader struct {
	br     *bufio.Reader
	closer []io.Closer
	line   int
}

// Open opens path for reading
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrNotFound, "VCF %s", path)
		}
		return nil, errors.Wrapf(err, "failed to open VCF %s", path)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "VCF %s", path)
	}
	r.closer = append(r.closer, f)
	return r, nil
}

// NewReader wraps r, decompressing if it starts with the gzip magic.
// bgzip files are concatenated gzip members, which the reader follows.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(r, readBufferSize)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to read header")
	}
	if !bytes.Equal(head, gzipMagic) {
		return &Reader{br: br}, nil
	}

	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open gzip stream")
	}
	return &Reader{
		br:     bufio.NewReaderSize(zr, readBufferSize),
		closer: []io.Closer{zr},
	}, nil
}

// Next returns the next physical line without its terminator and its 1-based number.
// It returns io.EOF after the last line.
func (r *Reader) Next() (int, string, error) {
	text, err := r.br.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		if err == io.EOF {
			return r.line, "", io.EOF
		}
		return r.line, "", errors.Wrapf(err, "failed to read line %d", r.line+1)
	}
	r.line++
	return r.line, strings.TrimRight(text, "\r\n"), nil
}

// Lines returns how many physical lines have been read
func (r *Reader) Lines() int {
	return r.line
}

// Close releases the file and decompressor
func (r *Reader) Close() error {
	var first error
	for i := len(r.closer) - 1; i >= 0; i-- {
		if err := r.closer[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ScanOptions bounds a Scan
type ScanOptions struct {
	// Limit stops after this many physical lines (headers included); 0 = no limit
	Limit int
}

// Scan calls fn for every data line of path, skipping # headers.
// It returns the number of physical lines read. A non-nil error from fn
// stops the scan and is returned as is.
func Scan(ctx context.Context, path string, opts ScanOptions, fn func(lineNumber int, line string) error) (int, error) {
	r, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	for {
		if opts.Limit > 0 && r.Lines() >= opts.Limit {
			return r.Lines(), nil
		}
		if err := ctx.Err(); err != nil {
			return r.Lines(), err
		}
		n, line, err := r.Next()
		if err == io.EOF {
			return r.Lines(), nil
		}
		if err != nil {
			return r.Lines(), errors.Wrapf(err, "VCF %s", path)
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(n, line); err != nil {
			return r.Lines(), err
		}
	}
}
