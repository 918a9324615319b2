package api

import "platewatch/internal/journal"

// FromEntry converts a journal entry into its transport form.
func FromEntry(entry journal.Entry) EventItem {
	return EventItem{
		ID:             entry.ID,
		CameraID:       entry.CameraID,
		Plate:          entry.Plate,
		PlateRaw:       entry.PlateRaw,
		DetConfidence:  entry.DetConfidence,
		OCRConfidence:  entry.OCRConfidence,
		CombinedScore:  entry.CombinedScore,
		HighConfidence: entry.HighConfidence,
		ScorePath:      entry.ScorePath,
		ConfirmedBy:    entry.ConfirmedBy,
		StatusCode:     entry.StatusCode,
		Delivered:      entry.Delivered(),
		DeliveryError:  entry.DeliveryError,
		Throttled:      entry.Throttled,
		FrameSeq:       entry.FrameSeq,
		DetectionPath:  entry.DetectionPath,
		FullFramePath:  entry.FullFramePath,
		DecidedAt:      FormatTime(entry.DecidedAt),
	}
}

// FromEntries converts a slice of entries, preserving order. A nil input
// yields an empty, non-nil slice so clients always see a JSON array.
func FromEntries(entries []journal.Entry) []EventItem {
	out := make([]EventItem, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromEntry(entry))
	}
	return out
}
