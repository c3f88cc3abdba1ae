package audio

import (
	"encoding/binary"
	"math"
)

const (
	// SampleRate is the PCM rate requested from the extractor.
	SampleRate = 16000

	// EnvelopeRate is the number of RMS frames per second of audio.
	EnvelopeRate = 100
)

// envelope consumes mono s16le PCM and reduces it to RMS frames of
// SampleRate/EnvelopeRate samples. Writes may split samples at any byte.
type envelope struct {
	frameSize int
	frames    []float64

	frameSq float64
	frameN  int

	totalSq float64
	totalN  int64

	carry    [1]byte
	hasCarry bool
}

func newEnvelope() *envelope {
	return &envelope{frameSize: SampleRate / EnvelopeRate}
}

func (e *envelope) Write(p []byte) (int, error) {
	n := len(p)
	if e.hasCarry && len(p) > 0 {
		e.add(int16(binary.LittleEndian.Uint16([]byte{e.carry[0], p[0]})))
		e.hasCarry = false
		p = p[1:]
	}
	for len(p) >= 2 {
		e.add(int16(binary.LittleEndian.Uint16(p)))
		p = p[2:]
	}
	if len(p) == 1 {
		e.carry[0] = p[0]
		e.hasCarry = true
	}
	return n, nil
}

func (e *envelope) add(sample int16) {
	v := float64(sample) / 32768.0
	e.frameSq += v * v
	e.frameN++
	e.totalSq += v * v
	e.totalN++
	if e.frameN == e.frameSize {
		e.flush()
	}
}

func (e *envelope) flush() {
	if e.frameN == 0 {
		return
	}
	e.frames = append(e.frames, math.Sqrt(e.frameSq/float64(e.frameN)))
	e.frameSq = 0
	e.frameN = 0
}

// Frames returns the envelope including a trailing partial frame.
func (e *envelope) Frames() []float64 {
	e.flush()
	return e.frames
}

// RMS is the level of the whole signal on a 0..1 scale.
func (e *envelope) RMS() float64 {
	if e.totalN == 0 {
		return 0
	}
	return math.Sqrt(e.totalSq / float64(e.totalN))
}

// minOverlapFrames is the shortest overlap a lag is scored on.
const minOverlapFrames = EnvelopeRate

// align finds the lag k within ±maxLag where ref[i+k] best matches tgt[i],
// scored by Pearson correlation over the overlap. Smaller lags win ties.
// The returned score is clamped to [0,1].
func align(ref, tgt []float64, maxLag int) (lag int, score float64) {
	minOverlap := min(minOverlapFrames, len(ref), len(tgt))
	if minOverlap < 2 {
		return 0, 0
	}

	best := math.Inf(-1)
	for step := 0; step <= 2*maxLag; step++ {
		k := (step + 1) / 2
		if step%2 == 1 {
			k = -k
		}
		lo := max(0, -k)
		hi := min(len(tgt), len(ref)-k)
		if hi-lo < minOverlap {
			continue
		}
		c := pearson(ref[lo+k:hi+k], tgt[lo:hi])
		if c > best {
			best = c
			lag = k
		}
	}
	if math.IsInf(best, -1) || best < 0 {
		return lag, 0
	}
	return lag, min(best, 1)
}

// pearson returns the correlation of equal-length x and y, or 0 when
// either is constant.
func pearson(x, y []float64) float64 {
	n := float64(len(x))
	var sx, sy, sxx, syy, sxy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
		sxx += x[i] * x[i]
		syy += y[i] * y[i]
		sxy += x[i] * y[i]
	}
	cov := sxy - sx*sy/n
	vx := sxx - sx*sx/n
	vy := syy - sy*sy/n
	if vx <= 1e-12 || vy <= 1e-12 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}
