package coverage

import (
	"errors"
	"fmt"
)

// Kind classifies a per-file failure.
type Kind string

const (
	// KindNoSource marks a measured file whose source cannot be read.
	KindNoSource Kind = "no-source"
	// KindNotParseable marks a source that fails to parse.
	KindNotParseable Kind = "not-parseable"
	// KindEncoding marks a source whose bytes cannot be decoded.
	KindEncoding Kind = "encoding"
	// KindArcConsistency marks an arc whose origin is not a branch line.
	KindArcConsistency Kind = "arc-consistency"
	// KindInvalidRecord marks an analysis record that breaks its invariants.
	KindInvalidRecord Kind = "invalid-record"
)

var (
	// ErrNoSource matches FileErrors of KindNoSource.
	ErrNoSource = errors.New("no source for code")
	// ErrNotParseable matches FileErrors of KindNotParseable.
	ErrNotParseable = errors.New("couldn't parse source")
	// ErrEncoding matches FileErrors of KindEncoding.
	ErrEncoding = errors.New("source can not be properly decoded")
	// ErrInvalidRecord matches FileErrors of KindInvalidRecord.
	ErrInvalidRecord = errors.New("invalid analysis record")
)

var kindErrors = map[Kind]error{
	KindNoSource:      ErrNoSource,
	KindNotParseable:  ErrNotParseable,
	KindEncoding:      ErrEncoding,
	KindInvalidRecord: ErrInvalidRecord,
}

// FileError is a failure attached to one measured file.
// It matches the sentinel of its Kind with errors.Is.
type FileError struct {
	Kind Kind
	Path string
	Err  error
}

// Error formats the kind message, the path and the cause.
func (e *FileError) Error() string {
	if e == nil {
		return ""
	}
	msg := kindMessage(e.Kind)
	if e.Err != nil {
		return fmt.Sprintf("%s '%s': %v", msg, e.Path, e.Err)
	}
	return fmt.Sprintf("%s '%s'", msg, e.Path)
}

// Unwrap returns the underlying cause.
func (e *FileError) Unwrap() error { return e.Err }

// Is matches the sentinel error for the failure kind.
func (e *FileError) Is(target error) bool {
	sentinel, ok := kindErrors[e.Kind]
	return ok && sentinel == target
}

func kindMessage(k Kind) string {
	if err, ok := kindErrors[k]; ok {
		return err.Error()
	}
	return string(k)
}

// NoSource reports that the source of path could not be found.
func NoSource(path string, err error) error {
	return &FileError{Kind: KindNoSource, Path: path, Err: err}
}

// NotParseable reports that path is not valid source code.
func NotParseable(path string, err error) error {
	return &FileError{Kind: KindNotParseable, Path: path, Err: err}
}

// Encoding reports that the bytes of path could not be decoded.
func Encoding(path string, err error) error {
	return &FileError{Kind: KindEncoding, Path: path, Err: err}
}

func invalidRecord(path, msg string) error {
	return &FileError{Kind: KindInvalidRecord, Path: path, Err: errors.New(msg)}
}

// KindOf returns the Kind of a FileError in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *FileError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// RunError aborts a strict run because of a single file.
type RunError struct {
	Path string
	Kind Kind
	Err  error
}

// Error names the file and kind that aborted the run.
func (e *RunError) Error() string {
	return fmt.Sprintf("coverage aborted on %s (%s): %v", e.Path, e.Kind, e.Err)
}

// Unwrap returns the file error that aborted the run.
func (e *RunError) Unwrap() error { return e.Err }
