package usecase

import (
	"time"

	"ads-sync/domain/model"
)

// SplitDateRange cuts [start, end] into sequential, non-overlapping chunks
// [cur, min(cur+chunkDays, end)]; each chunk starts the day after the
// previous one ends. The union of the chunks equals the input range.
func SplitDateRange(start, end time.Time, chunkDays int) []model.DateRange {
	start, end = model.Day(start), model.Day(end)
	if end.Before(start) {
		return nil
	}
	if chunkDays <= 0 {
		return []model.DateRange{{Start: start, End: end}}
	}

	var chunks []model.DateRange
	for cur := start; !cur.After(end); {
		chunkEnd := cur.AddDate(0, 0, chunkDays)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, model.DateRange{Start: cur, End: chunkEnd})
		cur = chunkEnd.AddDate(0, 0, 1)
	}
	return chunks
}
