package audio

import (
	"fmt"
	"os"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Segment is one captured utterance: mono float32 samples in [-1, 1] at a
// fixed sample rate. A segment is owned by the pipeline run that consumes it.
type Segment struct {
	Samples    []float32
	SampleRate int
}

func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(s.Samples)) / float64(s.SampleRate) * float64(time.Second))
}

// Normalize scales the segment so its peak sits at 0.9, leaving silent
// segments untouched.
func (s Segment) Normalize() Segment {
	var peak float32
	for _, v := range s.Samples {
		if v > peak {
			peak = v
		} else if -v > peak {
			peak = -v
		}
	}
	if peak == 0 {
		return s
	}
	scale := 0.9 / peak
	out := make([]float32, len(s.Samples))
	for i, v := range s.Samples {
		out[i] = v * scale
	}
	return Segment{Samples: out, SampleRate: s.SampleRate}
}

// WriteWAV encodes the segment as 16-bit mono PCM into file. Callers are
// responsible for removing temporary files after use.
func WriteWAV(file *os.File, seg Segment) error {
	buffer := &gaudio.IntBuffer{Format: &gaudio.Format{NumChannels: 1, SampleRate: seg.SampleRate}}
	samples := make([]int, len(seg.Samples))
	for i, v := range seg.Samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		samples[i] = int(v * 32767)
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, seg.SampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
