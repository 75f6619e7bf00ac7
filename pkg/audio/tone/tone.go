// Package tone synthesizes the filler/hold clip the bridge plays while the
// assistant prepares its first spoken response: a quiet run of soft
// key-clicks, suggesting someone typing at the other end of the line.
//
// The clip is generated at 24 kHz for crisp transients, downsampled to the
// 8 kHz telephony rate, and companded to µ-law. Generation is
// deterministic for a given seed.
package tone

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ringlet-ai/ringlet/pkg/audio/g711"
	"github.com/ringlet-ai/ringlet/pkg/audio/resample"
)

const synthRate = 24000

// DefaultDuration is the clip length used when Options.Duration is zero.
const DefaultDuration = 1400 * time.Millisecond

// Options control clip synthesis.
type Options struct {
	// Duration is the clip length; zero means DefaultDuration.
	Duration time.Duration

	// Seed selects the click pattern. The same seed always produces the
	// same clip.
	Seed uint64

	// Level is the peak amplitude in [0, 1]; zero means 0.25. The clip
	// is deliberately quiet so it reads as background, not speech.
	Level float64
}

// ULaw synthesizes the clip and returns it as 8 kHz µ-law bytes.
func ULaw(opts Options) ([]byte, error) {
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.Level <= 0 {
		opts.Level = 0.25
	}
	if opts.Level > 1 {
		opts.Level = 1
	}

	pcm := synthesize(opts)
	r, err := resample.New(bytes.NewReader(pcm),
		resample.Format{Rate: synthRate},
		resample.Format{Rate: g711.SampleRate})
	if err != nil {
		return nil, fmt.Errorf("tone: %w", err)
	}
	defer r.Close()

	var down bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		down.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tone: %w", err)
		}
	}
	return g711.Encode(down.Bytes()), nil
}

// synthesize renders the click pattern as 16-bit little-endian PCM at
// synthRate.
func synthesize(opts Options) []byte {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	samples := int(time.Duration(synthRate) * opts.Duration / time.Second)
	mix := make([]float64, samples)

	// Clicks land every 70-180 ms with occasional double-taps.
	pos := int(float64(synthRate) * 0.03)
	for pos < samples {
		renderClick(mix, pos, rng)
		if rng.Float64() < 0.25 {
			// Double-tap: second click lands 35-60 ms later.
			pos += synthRate * (35 + rng.IntN(25)) / 1000
			if pos < samples {
				renderClick(mix, pos, rng)
			}
		}
		pos += synthRate * (70 + rng.IntN(110)) / 1000
	}

	out := make([]byte, samples*2)
	for i, v := range mix {
		v *= opts.Level
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
	return out
}

// renderClick adds one key-click at sample offset pos: a short noise burst
// with an exponential decay plus a resonant body around 2 kHz.
func renderClick(mix []float64, pos int, rng *rand.Rand) {
	durMs := 6 + rng.IntN(9)
	n := synthRate * durMs / 1000
	body := 1800.0 + rng.Float64()*900.0
	gain := 0.5 + rng.Float64()*0.5

	prev := 0.0
	for i := 0; i < n && pos+i < len(mix); i++ {
		t := float64(i) / synthRate
		env := math.Exp(-t * 700)

		// One-pole lowpass over white noise keeps the burst from
		// aliasing after the 8 kHz downsample.
		noise := rng.Float64()*2 - 1
		prev += 0.35 * (noise - prev)

		resonance := 0.3 * math.Sin(2*math.Pi*body*t) * math.Exp(-t*450)
		mix[pos+i] += gain * env * (0.7*prev + resonance)
	}
}
