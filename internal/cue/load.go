package cue

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
	"github.com/spf13/afero"
)

// SampleRate is the output rate shared by every cue.
const SampleRate = 44100

// ErrUnsupportedFormat is returned for files that are not wav, mp3 or ogg.
var ErrUnsupportedFormat = errors.New("cue: unsupported audio format")

// Load decodes the sound at path and prepares it on a fresh output channel.
// volume is clamped to [0, 1] and applied once.
//
// Load never returns a nil player: on any failure the returned player is
// disabled and the error says why, so callers can log it and continue.
// An empty path means no cue was configured and is not an error.
func Load(fs afero.Fs, path string, volume float64) (*Player, error) {
	if path == "" {
		return Disabled(), nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Disabled(), fmt.Errorf("cue: cannot read %s: %w", path, err)
	}

	stream, err := decode(path, data)
	if err != nil {
		return Disabled(), err
	}

	ctx := audio.CurrentContext()
	if ctx == nil {
		ctx = audio.NewContext(SampleRate)
	}

	ap, err := ctx.NewPlayer(stream)
	if err != nil {
		return Disabled(), fmt.Errorf("cue: cannot create audio player: %w", err)
	}
	ap.SetVolume(clampVolume(volume))

	p := NewPlayer(ap)
	p.closer = ap.Close
	return p, nil
}

// decode picks a decoder from the file extension.
func decode(path string, data []byte) (io.ReadSeeker, error) {
	r := bytes.NewReader(data)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		s, err := wav.DecodeWithSampleRate(SampleRate, r)
		if err != nil {
			return nil, fmt.Errorf("cue: invalid wav %s: %w", path, err)
		}
		return s, nil
	case ".mp3":
		s, err := mp3.DecodeWithSampleRate(SampleRate, r)
		if err != nil {
			return nil, fmt.Errorf("cue: invalid mp3 %s: %w", path, err)
		}
		return s, nil
	case ".ogg":
		s, err := vorbis.DecodeWithSampleRate(SampleRate, r)
		if err != nil {
			return nil, fmt.Errorf("cue: invalid ogg %s: %w", path, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
