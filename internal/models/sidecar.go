package models

import "time"

// SidecarVersion is the current sidecar schema version.
const SidecarVersion = 1

// Sidecar is the provenance record stored next to a daily note. It lists
// every scan whose section was written into the note.
type Sidecar struct {
	Version  int          `json:"version"`
	NotePath string       `json:"note_path"`
	Scans    []ScanRecord `json:"scans"`
}

// ScanRecord is the provenance of one scan. The raw JSON blobs are kept
// verbatim so a note can be rebuilt if structuring proves wrong.
type ScanRecord struct {
	ScanID             string         `json:"scan_id"`
	BatchID            string         `json:"batch_id"`
	CapturedAt         time.Time      `json:"captured_at"`
	ImagePath          string         `json:"image_path"`
	ProcessedImagePath string         `json:"processed_image_path,omitempty"`
	ProcessingMode     ProcessingMode `json:"processing_mode"`
	Classification     Classification `json:"classification"`
	TranscriptJSON     string         `json:"transcript_json"`
	StructureJSON      string         `json:"structure_json"`
	WrittenAt          time.Time      `json:"written_at"`
}

// SameScan reports whether r records the same input as o, ignoring the
// time it was written.
func (r ScanRecord) SameScan(o ScanRecord) bool {
	return r.ScanID == o.ScanID &&
		r.BatchID == o.BatchID &&
		r.CapturedAt.Equal(o.CapturedAt) &&
		r.TranscriptJSON == o.TranscriptJSON &&
		r.StructureJSON == o.StructureJSON
}
