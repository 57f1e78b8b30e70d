package session

import "time"

// Kind identifies which agent CLI produced a session log.
type Kind string

const (
	KindClaude Kind = "claude"
	KindCodex  Kind = "codex"
)

// Locality says whether a source tree lives on this machine or is a
// mirror of a remote one.
type Locality string

const (
	Local  Locality = "local"
	Remote Locality = "remote"
)

// SourceRef identifies one session source: agent kind plus where its
// tree came from. Host is the remote host label, empty for local.
type SourceRef struct {
	Kind     Kind
	Locality Locality
	Host     string
}

func (s SourceRef) String() string {
	if s.Locality == Remote && s.Host != "" {
		return string(s.Kind) + "@" + s.Host
	}
	return string(s.Kind)
}

// ParseQuality says how completely a session's log file was read.
// Ordering matters: reconciliation never lets a lower quality replace
// a higher one for an unchanged file.
type ParseQuality int

const (
	QualityUnknown ParseQuality = iota
	QualityMetadata
	QualityFull
	QualityEnriched
)

func (q ParseQuality) String() string {
	switch q {
	case QualityMetadata:
		return "metadata"
	case QualityFull:
		return "full"
	case QualityEnriched:
		return "enriched"
	default:
		return "unknown"
	}
}

// Overlay holds the user-editable fields layered on top of a record.
// Providers never see or set these; they survive every merge.
type Overlay struct {
	Title   string
	Comment string
}

func (o Overlay) Empty() bool {
	return o.Title == "" && o.Comment == ""
}

// Record is one session as known to the index.
type Record struct {
	ID         string
	Source     SourceRef
	WorkingDir string
	FilePath   string

	CreatedAt time.Time
	UpdatedAt time.Time // zero = unknown

	Messages  int
	ToolCalls int
	FileSize  int64
	LineCount int
	Mtime     time.Time

	Quality ParseQuality
	Overlay Overlay

	// ActiveDays records, per calendar month, which days the log shows
	// activity on. Populated only at QualityFull and above.
	ActiveDays map[string]DaySet
}

// Counters is the richness score used by the merge tie-break.
func (r Record) Counters() int {
	return r.Messages + r.ToolCalls
}

// SameFile reports whether two records almost certainly describe the
// same on-disk state of the same file.
func (r Record) SameFile(other Record) bool {
	return r.FileSize == other.FileSize && r.Mtime.Equal(other.Mtime)
}
