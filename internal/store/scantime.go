package store

import (
	"fmt"
	"time"
)

// ScanTime is a sql.Scanner destination for timestamp columns that round
// trips correctly across both backends: pgx returns a native time.Time for
// TIMESTAMPTZ columns, while modernc.org/sqlite returns a string (sqlite's
// timestamp columns are plain TEXT). A time.Time parameter is stored by the
// sqlite driver in time.Time.String() form; RFC3339Nano text is accepted too.
type ScanTime time.Time

// textTimeLayouts are tried in order when a timestamp arrives as text.
var textTimeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999 -0700 MST"}

func parseTextTime(v string) (time.Time, error) {
	var err error
	for _, layout := range textTimeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func (s *ScanTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*s = ScanTime(v)
		return nil
	case string:
		t, err := parseTextTime(v)
		if err != nil {
			return err
		}
		*s = ScanTime(t)
		return nil
	case []byte:
		t, err := parseTextTime(string(v))
		if err != nil {
			return err
		}
		*s = ScanTime(t)
		return nil
	case nil:
		*s = ScanTime(time.Time{})
		return nil
	default:
		return fmt.Errorf("ScanTime: unsupported source type %T", src)
	}
}

// Time returns the scanned value as a time.Time.
func (s ScanTime) Time() time.Time { return time.Time(s) }

// NullScanTime is the nullable counterpart of ScanTime, for columns such as
// published_at that may be NULL.
type NullScanTime struct {
	ScanTime ScanTime
	Valid    bool
}

func (n *NullScanTime) Scan(src any) error {
	if src == nil {
		n.ScanTime, n.Valid = ScanTime{}, false
		return nil
	}
	n.Valid = true
	return n.ScanTime.Scan(src)
}
