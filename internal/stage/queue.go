// Package stage models pipeline stage directories as durable queues.
//
// A Queue wraps one stage directory. Dequeue is an atomic rename out of the
// directory, so a record is physically present in exactly one stage at any
// time; handler logic never touches directory listings directly and could be
// pointed at a different durable queue without change.
package stage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/smizuno/caplog/internal/model"
	"github.com/smizuno/caplog/internal/recordio"
)

// ErrGone reports that the source entry no longer exists. Handlers treat it
// as success-via-idempotency: a concurrent worker or an earlier run already
// completed the transition.
var ErrGone = errors.New("stage entry no longer present")

// Queue is a durable queue backed by a single directory.
type Queue struct {
	dir   string
	stage model.Stage
}

// New returns the queue for stage s under the pipeline root.
func New(root string, s model.Stage) *Queue {
	return &Queue{dir: filepath.Join(root, string(s)), stage: s}
}

// NewAt returns a queue with an explicit directory, for stages that fan out
// into subdirectories (archive/texts, archive/voices, archive/ready).
func NewAt(dir string, s model.Stage) *Queue {
	return &Queue{dir: dir, stage: s}
}

// Stage returns the lifecycle stage this queue persists.
func (q *Queue) Stage() model.Stage { return q.stage }

// Dir returns the backing directory, creating it if needed.
func (q *Queue) Dir() string {
	_ = os.MkdirAll(q.dir, 0755)
	return q.dir
}

// Path resolves an entry name inside the queue.
func (q *Queue) Path(name string) string {
	return filepath.Join(q.dir, name)
}

// List returns entry names matching any of the glob patterns, in lexical
// order. Filenames embed capture timestamps, so lexical order is close to
// chronological.
func (q *Queue) List(patterns ...string) ([]string, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stage %s: %w", q.stage, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if MatchAny(entry.Name(), patterns) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Count returns the number of entries matching the patterns.
func (q *Queue) Count(patterns ...string) int {
	names, err := q.List(patterns...)
	if err != nil {
		return 0
	}
	return len(names)
}

// PutRecord enqueues a record under the given name.
func (q *Queue) PutRecord(name string, rec *model.Record) error {
	if err := os.MkdirAll(q.dir, 0755); err != nil {
		return fmt.Errorf("ensure stage %s: %w", q.stage, err)
	}
	return recordio.WriteRecord(q.Path(name), rec)
}

// ReadRecord loads an entry as a record.
func (q *Queue) ReadRecord(name string) (*model.Record, error) {
	return recordio.ReadRecord(q.Path(name))
}

// MoveTo dequeues srcName and enqueues it into dst as dstName, validating
// the stage transition first. Returns ErrGone when the source has already
// been moved away.
func (q *Queue) MoveTo(dst *Queue, srcName, dstName string) error {
	if err := model.ValidateStageTransition(q.stage, dst.stage); err != nil {
		return err
	}
	if err := os.MkdirAll(dst.dir, 0755); err != nil {
		return fmt.Errorf("ensure stage %s: %w", dst.stage, err)
	}
	return MoveFile(q.Path(srcName), dst.Path(dstName))
}

// ArchiveTo moves srcName into dst under a timestamp-qualified name
// (stem_YYYYMMDD_HHMMSS.ext), keeping the audit copy distinct from any
// active copy of the same record. Returns the archived entry name.
func (q *Queue) ArchiveTo(dst *Queue, srcName string, now time.Time) (string, error) {
	name := TimestampedName(srcName, now)
	if err := q.MoveTo(dst, srcName, name); err != nil {
		return "", err
	}
	return name, nil
}

// TimestampedName qualifies a filename with a second-resolution timestamp.
func TimestampedName(name string, now time.Time) string {
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	return fmt.Sprintf("%s_%s%s", stem, now.UTC().Format("20060102_150405"), ext)
}

// MatchAny reports whether name matches any of the glob patterns. An empty
// pattern list matches everything.
func MatchAny(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// MoveFile renames src to dst. A missing source maps to ErrGone. When the
// rename fails because src and dst sit on different filesystems, it falls
// back to copy-verify-delete; re-processing stays safe because the source is
// removed only after the copy is durably in place.
func MoveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return ErrGone
	}

	// Cross-device fallback
	if copyErr := CopyFile(src, dst); copyErr != nil {
		if os.IsNotExist(copyErr) {
			return ErrGone
		}
		return fmt.Errorf("move %s: %w", src, copyErr)
	}
	if rmErr := os.Remove(src); rmErr != nil && !os.IsNotExist(rmErr) {
		return fmt.Errorf("remove source after copy %s: %w", src, rmErr)
	}
	return nil
}

// CopyFile copies src to dst, fsyncing before returning, and verifies the
// copied size matches the source.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	n, err := io.Copy(out, in)
	if err != nil {
		return err
	}
	if n != info.Size() {
		return fmt.Errorf("short copy %s: %d of %d bytes", src, n, info.Size())
	}
	return out.Sync()
}
