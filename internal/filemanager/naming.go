package filemanager

import (
	"fmt"
	"path/filepath"
	"time"
)

// BuildFileName renders spec.md §4.10's naming pattern:
// {prefix}[_{fileCount:06}]{_yyyyMMdd_HHmmss_zzz}?.{ext}
func BuildFileName(prefix string, fileCount int, autoNaming, appendTimestamp bool, ext string, now time.Time) string {
	name := prefix
	if autoNaming {
		name += fmt.Sprintf("_%06d", fileCount)
	}
	if appendTimestamp {
		name += "_" + now.Format("20060102_150405") + fmt.Sprintf("_%03d", now.Nanosecond()/1_000_000)
	}
	return name + "." + ext
}

// BuildDirectory returns base_path joined with a yyyy-MM-dd subfolder
// when createSubfolder is set.
func BuildDirectory(basePath string, createSubfolder bool, now time.Time) string {
	if !createSubfolder {
		return basePath
	}
	return filepath.Join(basePath, now.Format("2006-01-02"))
}
