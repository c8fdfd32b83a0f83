package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// MaxSize is the maximum size of an uploaded file.
const MaxSize = 25 * 1024 * 1024

var (
	ErrMissing     = errors.New("intake: no audio file provided")
	ErrTooLarge    = errors.New("intake: file too large, maximum size is 25MB")
	ErrUnsupported = errors.New("intake: unsupported audio format")
)

var accepted = []string{
	"audio/wav", "audio/x-wav",
	"audio/mpeg", "audio/mp3",
	"audio/ogg", "application/ogg",
	"audio/webm", "video/webm",
	"audio/flac", "audio/x-flac",
	"audio/mp4", "audio/x-m4a",
	"audio/aiff",
}

// Store saves a file and returns its url.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

type File struct {
	URL         string
	Name        string
	ContentType string
	Size        int
	Data        []byte `json:"-"`
}

type Intake struct {
	store   Store
	maxSize int
	now     func() time.Time
}

func New(store Store) *Intake {
	return &Intake{
		store:   store,
		maxSize: MaxSize,
		now:     time.Now,
	}
}

// Accept validates and stores an uploaded audio file.
func (in *Intake) Accept(ctx context.Context, name string, r io.Reader) (*File, error) {
	if r == nil {
		return nil, ErrMissing
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(in.maxSize)+1))
	if err != nil {
		return nil, fmt.Errorf("intake: couldn't read file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrMissing
	}
	if len(data) > in.maxSize {
		return nil, ErrTooLarge
	}
	contentType, err := Sniff(data)
	if err != nil {
		return nil, err
	}

	name = fmt.Sprintf("audio_%d_%s", in.now().UnixMilli(), Sanitize(name))
	u, err := in.store.Put(ctx, name, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("intake: couldn't store file: %w", err)
	}
	return &File{
		URL:         u,
		Name:        name,
		ContentType: contentType,
		Size:        len(data),
		Data:        data,
	}, nil
}

// Sniff detects the content type of an audio file.
func Sniff(data []byte) (string, error) {
	mtype := mimetype.Detect(data)
	for _, a := range accepted {
		if mtype.Is(a) {
			return mtype.String(), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, mtype.String())
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Sanitize returns a file name safe to store.
func Sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "recording"
	}
	return name
}
