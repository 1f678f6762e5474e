package recordio

import (
	"fmt"
	"os"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/smizuno/caplog/internal/model"
)

// ParseError marks a record file whose content could not be decoded. Stage
// handlers quarantine on ParseError and keep running; any other read failure
// leaves the file in place for the next drain.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse record %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReadRecord loads a record file. os.IsNotExist errors pass through
// unwrapped so callers can treat an already-moved source as a no-op.
func ReadRecord(path string) (*model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec model.Record
	if err := yamlv3.Unmarshal(data, &rec); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &rec, nil
}

// WriteRecord stores rec at path atomically.
func WriteRecord(path string, rec *model.Record) error {
	return AtomicWrite(path, rec)
}
