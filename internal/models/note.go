// Package models defines the domain types for scanvault.
package models

import (
	"encoding/json"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// TranscriptionPayload is the decoded output of the transcription step.
type TranscriptionPayload struct {
	Transcript string    `json:"transcript"`
	Confidence *float64  `json:"confidence,omitempty"`
	Uncertain  []Segment `json:"uncertain,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
}

// Segment marks a span of the transcript the model was unsure about.
type Segment struct {
	Text   string `json:"text"`
	Reason string `json:"reason,omitempty"`
}

// errNoTranscript rejects objects that lack the transcript key. A blank page
// still sends the key with an empty value.
var errNoTranscript = errors.New("transcript: is required")

// UnmarshalJSON decodes the payload and requires the transcript key.
func (p *TranscriptionPayload) UnmarshalJSON(data []byte) error {
	type plain TranscriptionPayload
	var aux struct {
		plain
		Transcript *string `json:"transcript"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Transcript == nil {
		return errNoTranscript
	}
	*p = TranscriptionPayload(aux.plain)
	p.Transcript = *aux.Transcript
	return nil
}

// Validate checks the payload shape.
func (p TranscriptionPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Confidence, validation.Min(0.0), validation.Max(1.0)),
	)
}

// StructurePayload is the decoded output of the structuring step.
type StructurePayload struct {
	Markdown       string         `json:"markdown"`
	Meta           NoteMeta       `json:"meta"`
	Classification Classification `json:"classification"`
	Warnings       []string       `json:"warnings,omitempty"`
}

// Validate checks the payload shape.
func (p StructurePayload) Validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.Markdown, validation.Required),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&p.Classification,
		validation.Field(&p.Classification.Folder, validation.Required),
	)
}

// NoteMeta describes a structured note. Links may contain duplicates.
type NoteMeta struct {
	Title   string   `json:"title" yaml:"title"`
	Summary string   `json:"summary" yaml:"summary,omitempty"`
	Tags    []string `json:"tags" yaml:"tags,omitempty"`
	Links   []string `json:"links" yaml:"links,omitempty"`
}

// Classification names the folder a payload's derived content belongs under.
type Classification struct {
	Folder string `json:"folder"`
	Reason string `json:"reason,omitempty"`
}

// WriterInput is the unit of work for one scanned page or batch.
type WriterInput struct {
	ScanID             string
	BatchID            string
	CapturedAt         time.Time
	ImagePath          string
	ProcessedImagePath string
	Transcript         TranscriptionPayload
	TranscriptJSON     string
	Structure          StructurePayload
	StructureJSON      string
	Mode               ProcessingMode
}

// WriterResult records what was written for one WriterInput.
type WriterResult struct {
	NotePath     string       `json:"note_path"`
	MetadataPath string       `json:"metadata_path"`
	EntityPaths  []string     `json:"entity_paths"`
	Summary      ApplySummary `json:"summary"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
