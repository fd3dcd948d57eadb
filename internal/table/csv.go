package table

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

const utf8BOM = "\ufeff"

// CSVOptions configures CSV decoding.
type CSVOptions struct {
	Encoding   string // charset label understood by htmlindex; "" or utf-8 = no transcoding
	Delimiter  rune   // default ','
	LazyQuotes bool
	TrimSpace  bool
}

// ReadCSV decodes a CSV stream whose first row is the header.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*Table, error) {
	src, err := decodeReader(r, opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bufio.NewReader(src))
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("table: csv is empty")
	}
	if err != nil {
		return nil, eris.Wrap(err, "table: read csv header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	if opts.TrimSpace {
		trimAll(header)
	}

	var rows [][]string
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "table: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "table: read csv row %d", len(rows)+1)
		}
		if opts.TrimSpace {
			trimAll(record)
		}
		rows = append(rows, record)
	}

	return New(header, rows), nil
}

// ReadCSVFile opens path and decodes it with ReadCSV.
func ReadCSVFile(ctx context.Context, path string, opts CSVOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	t, err := ReadCSV(ctx, f, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "table: read %s", path)
	}
	return t, nil
}

// WriteCSV encodes the table with a header row.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return eris.Wrap(err, "table: write csv header")
	}
	for i, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "table: write csv row %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "table: flush csv")
}

// WriteCSVFile writes the table to path, truncating an existing file.
func WriteCSVFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "table: create %s", path)
	}
	if err := WriteCSV(f, t); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "table: close %s", path)
}

func decodeReader(r io.Reader, charset string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "table: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}

func trimAll(fields []string) {
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
}
