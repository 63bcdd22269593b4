// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package coordinator

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// ReadMarker parses the sentinel marker at path: a plain-text unix
// millisecond timestamp. Any read or parse problem reports ok=false.
func ReadMarker(path string) (int64, bool) {
	if path == "" {
		return 0, false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil || ts <= 0 {
		return 0, false
	}
	return ts, true
}

// MarkUpdated stamps the marker with now. External writers call this after
// each commit. The write goes through a temp file and a rename so readers
// never see a partial value.
func MarkUpdated(path string, now time.Time) error {
	if path == "" {
		return recallerr.New(recallerr.CodeStateMarkerFailure, "marker path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return recallerr.Wrap(err, recallerr.CodeStateMarkerFailure, "creating marker directory",
			recallerr.FieldPath(dir))
	}

	tmp, err := os.CreateTemp(dir, ".marker-*")
	if err != nil {
		return recallerr.Wrap(err, recallerr.CodeStateMarkerFailure, "creating marker temp file",
			recallerr.FieldPath(path))
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		_ = tmp.Close()
		return recallerr.Wrap(err, recallerr.CodeStateMarkerFailure, "writing marker",
			recallerr.FieldPath(path))
	}
	if err := tmp.Close(); err != nil {
		return recallerr.Wrap(err, recallerr.CodeStateMarkerFailure, "closing marker temp file",
			recallerr.FieldPath(path))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return recallerr.Wrap(err, recallerr.CodeStateMarkerFailure, "replacing marker",
			recallerr.FieldPath(path))
	}
	return nil
}
