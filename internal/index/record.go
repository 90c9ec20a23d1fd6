package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meigma/cacache/integrity"
	"github.com/meigma/cacache/internal/cachetype"
	"github.com/meigma/cacache/internal/pathutil"
)

// Record is an index entry as stored in a bucket line.
type Record struct {
	Key       string              `json:"key"`
	Integrity integrity.Integrity `json:"integrity"`
	// Time is milliseconds since the Unix epoch. It is informational only;
	// ordering is defined by position in the bucket.
	Time     int64           `json:"time"`
	Size     int64           `json:"size"`
	Metadata json.RawMessage `json:"metadata"`
}

// Entry formats r for callers, resolving its content path under root.
func (r Record) Entry(root string) cachetype.Entry {
	e := cachetype.Entry{
		Key:       r.Key,
		Integrity: r.Integrity,
		Size:      r.Size,
		Time:      time.UnixMilli(r.Time),
	}
	if len(r.Metadata) > 0 && string(r.Metadata) != "null" {
		e.Metadata = r.Metadata
	}
	if !r.Integrity.IsZero() {
		if p, err := pathutil.ContentPath(root, r.Integrity); err == nil {
			e.Path = p
		}
	}
	return e
}

func recordFromEntry(e cachetype.Entry) Record {
	return Record{
		Key:       e.Key,
		Integrity: e.Integrity,
		Time:      e.Time.UnixMilli(),
		Size:      e.Size,
		Metadata:  e.Metadata,
	}
}

// encodeLine frames r as "\n<sha1(json)>\t<json>". The leading newline keeps
// a torn earlier append from swallowing this record.
func encodeLine(r Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode index entry %q: %w", r.Key, err)
	}
	sum := pathutil.HashEntry(string(data))
	line := make([]byte, 0, len(sum)+len(data)+2)
	line = append(line, '\n')
	line = append(line, sum...)
	line = append(line, '\t')
	line = append(line, data...)
	return line, nil
}

// decodeLine parses one bucket line. It reports false for blank, corrupted,
// or unparseable lines.
func decodeLine(line []byte) (Record, bool) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return Record{}, false
	}
	sum, data, ok := bytes.Cut(line, []byte{'\t'})
	if !ok || len(sum) == 0 {
		return Record{}, false
	}
	if pathutil.HashEntry(string(data)) != string(sum) {
		return Record{}, false
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, false
	}
	return r, true
}
