// Package timing profiles driver phases. Each rank measures locally
// with a push/pop stack; a summarizing reduction reports the slowest
// rank and the group mean, the shape cluster timing logs usually take.
package timing

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/vijaysm/halo-exchange/comm"
)

type frame struct {
	name  string
	start time.Time
}

// Stack measures nested phases on one rank. The zero value is ready to
// use.
type Stack struct {
	open []frame
}

// Push opens a measurement.
func (s *Stack) Push(name string) {
	s.open = append(s.open, frame{name: name, start: time.Now()})
}

// Pop closes the innermost measurement and returns its name and the
// elapsed time divided by nruns, for phases that repeat an operation
// and want the per-run cost.
func (s *Stack) Pop(nruns int) (string, time.Duration, error) {
	if len(s.open) == 0 {
		return "", 0, fmt.Errorf("timing: pop with no open measurement")
	}
	if nruns < 1 {
		nruns = 1
	}
	f := s.open[len(s.open)-1]
	s.open = s.open[:len(s.open)-1]
	return f.name, time.Since(f.start) / time.Duration(nruns), nil
}

// Depth reports how many measurements are open.
func (s *Stack) Depth() int { return len(s.open) }

// Report is the cross-rank view of one measurement, meaningful on the
// summarizing root only.
type Report struct {
	Name string
	Max  time.Duration
	Avg  time.Duration
}

// Summarize gathers each rank's elapsed time at root and reduces it to
// the slowest-rank and mean durations. Every rank of the group must
// call it; non-root ranks receive a zero Report.
func Summarize(ep comm.Endpoint, root int, name string, elapsed time.Duration) (Report, error) {
	views, err := comm.Gather(ep, root, encodeDuration(elapsed))
	if err != nil || ep.Rank() != root {
		return Report{}, err
	}
	samples := make([]float64, len(views))
	for r, p := range views {
		d, err := decodeDuration(p)
		if err != nil {
			return Report{}, fmt.Errorf("timing: rank %d sample: %w", r, err)
		}
		samples[r] = d.Seconds()
	}
	return Report{
		Name: name,
		Max:  durationOf(floats.Max(samples)),
		Avg:  durationOf(stat.Mean(samples, nil)),
	}, nil
}

func encodeDuration(d time.Duration) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(d.Nanoseconds()))
	return buf
}

func decodeDuration(b []byte) (time.Duration, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("sample is %d bytes, want 8", len(b))
	}
	return time.Duration(binary.BigEndian.Uint64(b)), nil
}

func durationOf(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds * float64(time.Second)))
}
