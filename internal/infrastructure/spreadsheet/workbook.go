package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Workbook is the set of sheets read from an upload, keyed by sheet name.
type Workbook struct {
	sheets map[string]*Table
	order  []string
}

// Sheet returns the named sheet, matched case-insensitively.
func (w *Workbook) Sheet(name string) (*Table, bool) {
	t, ok := w.sheets[headerKey(name)]
	return t, ok
}

// SheetNames lists the sheets in workbook order.
func (w *Workbook) SheetNames() []string {
	return append([]string(nil), w.order...)
}

func (w *Workbook) add(t *Table) {
	key := headerKey(t.Name)
	if _, ok := w.sheets[key]; ok {
		return
	}
	w.sheets[key] = t
	w.order = append(w.order, t.Name)
}

var zipMagic = []byte("PK\x03\x04")

// ReadWorkbook reads an .xlsx workbook or a .csv file. A CSV file becomes a
// single sheet called csvSheet. The format is taken from the file name and
// falls back to sniffing the content.
func ReadWorkbook(filename string, r io.Reader, maxSize int64, csvSheet string) (*Workbook, error) {
	data, err := readLimited(r, maxSize)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return readXLSX(data, maxSize)
	case ".csv":
		return readCSVWorkbook(data, csvSheet)
	case "":
		if bytes.HasPrefix(data, zipMagic) {
			return readXLSX(data, maxSize)
		}
		return readCSVWorkbook(data, csvSheet)
	default:
		return nil, ErrUnsupportedFile
	}
}

func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func readCSVWorkbook(data []byte, sheet string) (*Workbook, error) {
	t, err := ReadCSV(sheet, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	wb := &Workbook{sheets: map[string]*Table{}}
	wb.add(t)
	return wb, nil
}

// readXLSX loads every sheet with raw cell values, so amounts arrive as
// plain numbers rather than in their display format.
func readXLSX(data []byte, maxSize int64) (*Workbook, error) {
	opts := excelize.Options{RawCellValue: true}
	if maxSize > 0 {
		// bound the decompressed size against zip bombs
		opts.UnzipSizeLimit = maxSize * 20
		opts.UnzipXMLSizeLimit = maxSize * 10
	}
	f, err := excelize.OpenReader(bytes.NewReader(data), opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	}
	defer f.Close()

	wb := &Workbook{sheets: map[string]*Table{}}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		t, err := NewTable(name, rows)
		if errors.Is(err, ErrMissingHeader) {
			continue
		}
		if err != nil {
			return nil, err
		}
		wb.add(t)
	}
	return wb, nil
}
