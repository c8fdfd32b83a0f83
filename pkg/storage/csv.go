package storage

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
)

type songRow struct {
	ID            string  `csv:"id"`
	CreatedAt     string  `csv:"created_at"`
	Style         string  `csv:"style"`
	Prompt        string  `csv:"prompt"`
	InputURL      string  `csv:"input_url"`
	OutputURL     string  `csv:"output_url"`
	TaskID        string  `csv:"task_id"`
	Title         string  `csv:"title"`
	Tags          string  `csv:"tags"`
	Mood          string  `csv:"mood"`
	Key           string  `csv:"key"`
	BPM           int     `csv:"bpm"`
	Duration      float64 `csv:"duration"`
	Transcription string  `csv:"transcription"`
}

// WriteCSV writes songs as csv, flattening their metadata.
func WriteCSV(w io.Writer, songs []*Song) error {
	rows := make([]*songRow, 0, len(songs))
	for _, v := range songs {
		row := &songRow{
			ID:            v.ID,
			CreatedAt:     v.CreatedAt.UTC().Format(time.RFC3339),
			Style:         v.Style,
			InputURL:      v.InputURL,
			TaskID:        v.TaskID,
			Title:         v.Metadata.Title,
			Tags:          strings.Join(v.Metadata.Tags, ", "),
			Mood:          v.Metadata.Mood,
			Key:           v.Metadata.Key,
			BPM:           v.Metadata.BPM,
			Duration:      v.Metadata.Duration,
			Transcription: v.Metadata.Transcription,
		}
		if v.Prompt != nil {
			row.Prompt = *v.Prompt
		}
		if v.OutputURL != nil {
			row.OutputURL = *v.OutputURL
		}
		rows = append(rows, row)
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("storage: couldn't marshal csv: %w", err)
	}
	return nil
}
