package spreadsheet

import (
	"errors"
	"fmt"
	"strings"
)

// Import error codes
const (
	ErrCodeImportInvalidFile   = "ERR_IMPORT_INVALID_FILE"
	ErrCodeImportEmptyFile     = "ERR_IMPORT_EMPTY_FILE"
	ErrCodeImportFileTooLarge  = "ERR_IMPORT_FILE_TOO_LARGE"
	ErrCodeImportInvalidEncode = "ERR_IMPORT_INVALID_ENCODING"
	ErrCodeImportMissingSheet  = "ERR_IMPORT_MISSING_SHEET"
	ErrCodeImportMissingHeader = "ERR_IMPORT_MISSING_HEADER"
	ErrCodeImportInvalidType   = "ERR_IMPORT_INVALID_TYPE"
	ErrCodeImportInvalidRange  = "ERR_IMPORT_INVALID_RANGE"
)

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrInvalidEncoding = errors.New("invalid file encoding, expected UTF-8")
	ErrMissingHeader   = errors.New("sheet is missing its header row")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrUnsupportedFile = errors.New("unsupported file type, expected .xlsx or .csv")
)

// MissingSheetError reports a required sheet that the workbook lacks.
type MissingSheetError struct {
	Sheet string
}

func (e *MissingSheetError) Error() string {
	return fmt.Sprintf("%s sheet not found", e.Sheet)
}

// MissingColumnError reports a required column that a sheet lacks.
type MissingColumnError struct {
	Sheet  string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s sheet has no %q column", e.Sheet, e.Column)
}

// RowError represents an error in a specific row
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s row %d, column '%s': %s", e.Sheet, e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("%s row %d: %s", e.Sheet, e.Row, e.Message)
}

// ErrorCollection keeps the first maxErrors row errors and counts the rest.
type ErrorCollection struct {
	errors     []RowError
	maxErrors  int
	totalCount int
}

func NewErrorCollection(maxErrors int) *ErrorCollection {
	if maxErrors <= 0 {
		maxErrors = 100
	}
	return &ErrorCollection{
		errors:    make([]RowError, 0),
		maxErrors: maxErrors,
	}
}

func (ec *ErrorCollection) Add(err RowError) {
	ec.totalCount++
	if len(ec.errors) < ec.maxErrors {
		ec.errors = append(ec.errors, err)
	}
}

// AddTypeError adds a type validation error
func (ec *ErrorCollection) AddTypeError(sheet string, row int, column, expectedType, value string) {
	ec.Add(RowError{
		Sheet:   sheet,
		Row:     row,
		Column:  column,
		Code:    ErrCodeImportInvalidType,
		Message: fmt.Sprintf("expected %s", expectedType),
		Value:   value,
	})
}

// AddRangeError adds a range validation error
func (ec *ErrorCollection) AddRangeError(sheet string, row int, column string, min, max int, value string) {
	ec.Add(RowError{
		Sheet:   sheet,
		Row:     row,
		Column:  column,
		Code:    ErrCodeImportInvalidRange,
		Message: fmt.Sprintf("value must be between %d and %d", min, max),
		Value:   value,
	})
}

func (ec *ErrorCollection) Errors() []RowError { return ec.errors }
func (ec *ErrorCollection) TotalCount() int    { return ec.totalCount }
func (ec *ErrorCollection) HasErrors() bool    { return ec.totalCount > 0 }

// IsTruncated returns true if some errors were not collected due to the limit
func (ec *ErrorCollection) IsTruncated() bool {
	return ec.totalCount > ec.maxErrors
}

func (ec *ErrorCollection) String() string {
	if !ec.HasErrors() {
		return "no errors"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d error(s) found", ec.totalCount)
	if ec.IsTruncated() {
		fmt.Fprintf(&sb, " (showing first %d)", ec.maxErrors)
	}
	sb.WriteString(":\n")
	for _, err := range ec.errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// FileErrorCode returns the import error code of a file level parse error.
// It reports false for errors that are not about the upload itself.
func FileErrorCode(err error) (string, bool) {
	var sheetErr *MissingSheetError
	var columnErr *MissingColumnError
	switch {
	case errors.Is(err, ErrEmptyFile):
		return ErrCodeImportEmptyFile, true
	case errors.Is(err, ErrFileTooLarge):
		return ErrCodeImportFileTooLarge, true
	case errors.Is(err, ErrInvalidEncoding):
		return ErrCodeImportInvalidEncode, true
	case errors.Is(err, ErrUnsupportedFile):
		return ErrCodeImportInvalidFile, true
	case errors.Is(err, ErrMissingHeader), errors.As(err, &columnErr):
		return ErrCodeImportMissingHeader, true
	case errors.As(err, &sheetErr):
		return ErrCodeImportMissingSheet, true
	}
	return "", false
}
