package predict

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrNoFile is returned when a submit event carries no file.
	ErrNoFile = errors.New("no file selected")
	// ErrNotCSV is returned when the selected file does not have a .csv extension.
	ErrNotCSV = errors.New("only .csv files are accepted")
)

// UploadedFile is the raw content of a user-selected file. The content is
// never inspected; a file that is not really CSV fails at the remote service.
type UploadedFile struct {
	Name string
	Data []byte
}

// Size returns the number of bytes held by the file.
func (f UploadedFile) Size() int { return len(f.Data) }

// SelectFile applies the .csv extension filter and wraps the content.
func SelectFile(name string, data []byte) (UploadedFile, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return UploadedFile{}, ErrNoFile
	}
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return UploadedFile{}, ErrNotCSV
	}
	return UploadedFile{Name: name, Data: data}, nil
}
