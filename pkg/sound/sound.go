package sound

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrUnsupported is returned when the audio format can't be decoded.
var ErrUnsupported = errors.New("sound: unsupported format")

type Analyzer struct {
	mono     []float64
	channels int
	rate     int
	duration time.Duration
}

// Decode decodes mp3, wav, aiff, ogg vorbis or flac audio.
func Decode(b []byte) (*Analyzer, error) {
	mtype := mimetype.Detect(b)
	var (
		samples  []float64
		channels int
		rate     int
		err      error
	)
	switch {
	case mtype.Is("audio/mpeg"):
		samples, channels, rate, err = decodeMP3(b)
	case mtype.Is("audio/wav"):
		samples, channels, rate, err = decodeWAV(b)
	case mtype.Is("audio/aiff"):
		samples, channels, rate, err = decodeAIFF(b)
	case mtype.Is("audio/ogg"), mtype.Is("application/ogg"):
		samples, channels, rate, err = decodeOgg(b)
	case mtype.Is("audio/flac"):
		samples, channels, rate, err = decodeFLAC(b)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mtype.String())
	}
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't decode %s: %w", mtype.String(), err)
	}
	if channels < 1 || rate < 1 {
		return nil, fmt.Errorf("sound: invalid %s stream (%d channels, %d Hz)", mtype.String(), channels, rate)
	}

	// Convert to mono
	mono := make([]float64, len(samples)/channels)
	for i := range mono {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}

	duration := time.Duration(float64(len(mono)) / float64(rate) * float64(time.Second))
	return &Analyzer{
		mono:     mono,
		channels: channels,
		rate:     rate,
		duration: duration,
	}, nil
}

func (a *Analyzer) SampleRate() int {
	return a.rate
}

func (a *Analyzer) Channels() int {
	return a.channels
}

func (a *Analyzer) Duration() time.Duration {
	return a.duration
}

func (a *Analyzer) Resample(windowSize time.Duration) []float64 {
	samples := a.mono
	windowLength := a.windowLength(windowSize)

	var resampled []float64
	for i := 0; i < len(samples); i += windowLength {
		end := i + windowLength
		if end > len(samples) {
			end = len(samples)
		}
		window := samples[i:end]
		var min, max float64
		for _, v := range window {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		resampled = append(resampled, min)
		resampled = append(resampled, max)
	}
	return resampled
}

func (a *Analyzer) RMS(windowSize time.Duration) []float64 {
	samples := a.mono
	windowLength := a.windowLength(windowSize)

	var rms []float64
	for i := 0; i < len(samples); i += windowLength {
		end := i + windowLength
		if end > len(samples) {
			end = len(samples)
		}
		rms = append(rms, calculateRMS(samples[i:end]))
	}
	return rms
}

// Silent reports whether no window is louder than the threshold.
func (a *Analyzer) Silent(threshold float64) bool {
	for _, v := range a.RMS(100 * time.Millisecond) {
		if v > threshold {
			return false
		}
	}
	return true
}

func (a *Analyzer) windowLength(windowSize time.Duration) int {
	n := int(float64(a.rate) * windowSize.Seconds())
	if n < 1 {
		return 1
	}
	return n
}

func calculateRMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var squareSum float64
	for _, sample := range samples {
		squareSum += sample * sample
	}
	meanSquare := squareSum / float64(len(samples))
	return math.Sqrt(meanSquare)
}

// PlotWave renders the waveform as a JPEG image.
func (a *Analyzer) PlotWave(name string) ([]byte, error) {
	window := 50 * time.Millisecond
	resampled := a.Resample(window)
	return createPlot(name, resampled, -1, 1, window.Seconds()/2)
}

func createPlot(name string, data []float64, min, max float64, step float64) ([]byte, error) {
	p := plot.New()

	p.Y.Min = min
	p.Y.Max = max

	d := time.Duration(float64(len(data)) * step * float64(time.Second)).Round(time.Second)
	p.Title.Text = fmt.Sprintf("%s %s", name, d)
	p.X.Label.Text = "time (s)"

	pts := make(plotter.XYs, len(data))
	for i, v := range data {
		pts[i].X = float64(i) * step
		pts[i].Y = v
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't create line plotter: %w", err)
	}
	l.LineStyle.Width = vg.Points(1)
	p.Add(l)

	c, err := p.WriterTo(6*vg.Inch, 2*vg.Inch, "jpeg")
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't create plot: %w", err)
	}
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("sound: couldn't write plot: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeMP3(b []byte) ([]float64, int, int, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(b))
	if err != nil {
		return nil, 0, 0, err
	}
	// The decoder always outputs 16-bit little endian stereo
	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, 0, err
	}
	samples := make([]float64, len(raw)/2)
	for i := range samples {
		sample := int16(raw[2*i]) | int16(raw[2*i+1])<<8
		samples[i] = float64(sample) / 32768.0
	}
	return samples, 2, decoder.SampleRate(), nil
}

func decodeWAV(b []byte) ([]float64, int, int, error) {
	d := wav.NewDecoder(bytes.NewReader(b))
	if !d.IsValidFile() {
		return nil, 0, 0, errors.New("invalid wav file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, err
	}
	return fromIntBuffer(buf, int(d.BitDepth)), int(d.NumChans), int(d.SampleRate), nil
}

func decodeAIFF(b []byte) ([]float64, int, int, error) {
	d := aiff.NewDecoder(bytes.NewReader(b))
	if !d.IsValidFile() {
		return nil, 0, 0, errors.New("invalid aiff file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, err
	}
	return fromIntBuffer(buf, int(d.BitDepth)), int(d.NumChans), d.SampleRate, nil
}

func fromIntBuffer(buf *audio.IntBuffer, depth int) []float64 {
	if depth < 1 {
		depth = 16
	}
	scale := float64(int64(1) << (depth - 1))
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v) / scale
	}
	return samples
}

func decodeOgg(b []byte) ([]float64, int, int, error) {
	data, format, err := oggvorbis.ReadAll(bytes.NewReader(b))
	if err != nil {
		return nil, 0, 0, err
	}
	samples := make([]float64, len(data))
	for i, v := range data {
		samples[i] = float64(v)
	}
	return samples, format.Channels, format.SampleRate, nil
}

func decodeFLAC(b []byte) ([]float64, int, int, error) {
	stream, err := flac.New(bytes.NewReader(b))
	if err != nil {
		return nil, 0, 0, err
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	scale := float64(int64(1) << (stream.Info.BitsPerSample - 1))
	var samples []float64
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, 0, err
		}
		n := int(f.BlockSize)
		for i := 0; i < n; i++ {
			for c := 0; c < channels && c < len(f.Subframes); c++ {
				samples = append(samples, float64(f.Subframes[c].Samples[i])/scale)
			}
		}
	}
	return samples, channels, int(stream.Info.SampleRate), nil
}
