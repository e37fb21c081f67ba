package types

import "strings"

// Issue explains why a record is not in the verified state. The values are
// the strings stored in the database.
type Issue string

const (
	IssueNone Issue = ""

	// Classification outcomes.
	IssueNoPictureFile    Issue = "NO PICTURE FILE"
	IssueErrorReadingExif Issue = "ERROR READING EXIF"
	IssueNoMetadata       Issue = "NO METADATA"
	IssueNoDatetime       Issue = "NO DATETIME IN EXIF"
	IssueInvalidDatetime  Issue = "INVALID DATETIME ENTRY"

	// Recovered and flagged for audit.
	IssueMatchedSameDir       Issue = "METADATA MATCHED TO FILES IN SAME DIR"
	IssueFoundInOtherMetadata Issue = "DATETIME FOUND IN OTHER METADATA"
	IssueFoundInFilename      Issue = "DATETIME FOUND IN FILENAME"
	IssueManualFix            Issue = "MANUAL FIX"
)

const matchedHigherDirPrefix = "METADATA MATCHED TO FILE IN HIGHER DIR "

// MatchedHigherDir is the issue recorded when a timestamp was borrowed from
// the ancestor directory dir.
func MatchedHigherDir(dir string) Issue {
	return Issue(matchedHigherDirPrefix + dir)
}

// HigherDir returns the ancestor directory of a MatchedHigherDir issue.
func (i Issue) HigherDir() (string, bool) {
	if !strings.HasPrefix(string(i), matchedHigherDirPrefix) {
		return "", false
	}
	return strings.TrimPrefix(string(i), matchedHigherDirPrefix), true
}

// Terminal reports whether the issue is one of the classification outcomes
// that no automatic step has resolved yet.
func (i Issue) Terminal() bool {
	switch i {
	case IssueNoPictureFile, IssueNoMetadata, IssueNoDatetime, IssueInvalidDatetime:
		return true
	}
	return false
}

// Mappable reports whether a directory-index lookup may repair the record.
func (i Issue) Mappable() bool {
	switch i {
	case IssueNoMetadata, IssueNoDatetime, IssueErrorReadingExif, IssueInvalidDatetime:
		return true
	}
	return false
}

// Recovered reports whether the issue labels an applied repair.
func (i Issue) Recovered() bool {
	switch i {
	case IssueMatchedSameDir, IssueFoundInOtherMetadata, IssueFoundInFilename, IssueManualFix:
		return true
	}
	_, ok := i.HigherDir()
	return ok
}
