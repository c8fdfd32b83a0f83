package storage

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestWriteCSV(t *testing.T) {
	out := "https://cdn.example.com/a.mp3"
	prompt := "slow swing"
	songs := []*Song{
		{
			ID:        "01HX",
			CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			InputURL:  "/uploads/a.wav",
			OutputURL: &out,
			Style:     "jazz",
			Prompt:    &prompt,
			TaskID:    "t1",
			Metadata:  Metadata{Title: "Jazz Remix", Tags: []string{"jazz", "swing"}, BPM: 120},
		},
		{ID: "01HY", Style: "pop"},
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, songs); err != nil {
		t.Fatalf("WriteCSV() err = %v; want nil", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("WriteCSV() = %d lines; want 3", len(lines))
	}
	wantHeader := "id,created_at,style,prompt,input_url,output_url,task_id,title,tags,mood,key,bpm,duration,transcription"
	if lines[0] != wantHeader {
		t.Fatalf("header = %q; want %q", lines[0], wantHeader)
	}
	wantRow := `01HX,2024-05-01T10:00:00Z,jazz,slow swing,/uploads/a.wav,https://cdn.example.com/a.mp3,t1,Jazz Remix,"jazz, swing",,,120,0,`
	if lines[1] != wantRow {
		t.Fatalf("row = %q; want %q", lines[1], wantRow)
	}
}
