package stages

import (
	"errors"
	"fmt"
	"strings"
)

// DiarizationSchema tags diarization artifacts.
const DiarizationSchema = "mediachain.diarization/v1"

// Segment is one contiguous span attributed to a speaker.
type Segment struct {
	Speaker    string  `json:"speaker"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Speaker summarizes one detected voice.
type Speaker struct {
	ID       string  `json:"id"`
	Label    string  `json:"label,omitempty"`
	TalkTime float64 `json:"talk_time_seconds"`
}

// Diarization is the speaker structure of one recording.
type Diarization struct {
	Schema   string    `json:"schema_version"`
	Segments []Segment `json:"segments"`
	Speakers []Speaker `json:"speakers"`
	// Consistency is the diarizer's own agreement score across passes. Nil when
	// the tool did not report one.
	Consistency *float64 `json:"consistency,omitempty"`
}

func (d Diarization) SchemaVersion() string { return d.Schema }

// Validate checks structural soundness.
func (d Diarization) Validate() error {
	if err := checkSchema(d.Schema, DiarizationSchema); err != nil {
		return err
	}
	for i, seg := range d.Segments {
		if strings.TrimSpace(seg.Speaker) == "" {
			return fmt.Errorf("segment %d: speaker is empty", i)
		}
		if seg.Start < 0 || seg.End < seg.Start {
			return fmt.Errorf("segment %d: invalid span %.2f-%.2f", i, seg.Start, seg.End)
		}
		if err := checkRatio(fmt.Sprintf("segment %d confidence", i), seg.Confidence); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(d.Speakers))
	for _, speaker := range d.Speakers {
		id := strings.TrimSpace(speaker.ID)
		if id == "" {
			return errors.New("speaker id is empty")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate speaker %q", id)
		}
		seen[id] = struct{}{}
	}
	if d.Consistency != nil {
		if err := checkRatio("consistency", *d.Consistency); err != nil {
			return err
		}
	}
	return nil
}

// SpeakerCount returns the number of distinct speakers, falling back to the
// segment labels when the speaker list is empty.
func (d Diarization) SpeakerCount() int {
	if len(d.Speakers) > 0 {
		return len(d.Speakers)
	}
	seen := make(map[string]struct{})
	for _, seg := range d.Segments {
		seen[seg.Speaker] = struct{}{}
	}
	return len(seen)
}

// DiarizationSnapshot summarizes the speaker structure for audit.
func DiarizationSnapshot(d Diarization) any {
	talk := make(map[string]float64, len(d.Speakers))
	for _, seg := range d.Segments {
		talk[seg.Speaker] += seg.End - seg.Start
	}
	snapshot := map[string]any{
		"segments":             len(d.Segments),
		"speakers":             d.SpeakerCount(),
		"talk_time_by_speaker": talk,
	}
	if d.Consistency != nil {
		snapshot["consistency"] = *d.Consistency
	}
	return snapshot
}
