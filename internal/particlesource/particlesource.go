// Package particlesource loads particle datasets from pluggable storage
// backends into an internal/particle.ParticleSource, and writes them back
// out once an engine run has populated the force/potential accumulators.
//
// The on-disk record format is the plain-ASCII layout the original FMM
// tooling used for its ".fma" test datasets: a header line giving the
// particle count, box width, and box centre, followed by one line per
// particle (position, physical values, optional role tag).
package particlesource

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/scalfmm-go/fmm/internal/errors"
	"github.com/scalfmm-go/fmm/internal/particle"
)

// Backend represents a storage backend a particle dataset can be read
// from and written back to, narrowed to the byte-blob operations a
// dataset actually needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
	Type() string
}

// InMemory holds a fully materialized particle dataset: every particle
// decoded up front, ready to answer ParticleSource calls without further
// I/O. Fine for the dataset sizes the engine's test scenarios exercise;
// a streaming decoder would instead keep the backend's io.Reader open
// and seek per Fill call.
type InMemory struct {
	centre   [3]float64
	width    float64
	nValues  int
	particles []particle.Particle
}

func (s *InMemory) BoxCentre() (float64, float64, float64) { return s.centre[0], s.centre[1], s.centre[2] }
func (s *InMemory) BoxWidth() float64                       { return s.width }
func (s *InMemory) NumParticles() int                       { return len(s.particles) }
func (s *InMemory) Fill(index int) particle.Particle        { return s.particles[index] }

// NValues reports how many scalar physical attributes each particle
// carries, so a caller can size a particle.Container before inserting.
func (s *InMemory) NValues() int { return s.nValues }

// Load fetches key from backend and decodes it as an FMA-format dataset.
func Load(ctx context.Context, backend Backend, key string) (*InMemory, error) {
	raw, err := backend.Get(ctx, key)
	if err != nil {
		return nil, errors.NewSourceUnavailableError(fmt.Sprintf("%s:%s", backend.Type(), key), err)
	}
	return Decode(raw)
}

// Decode parses an FMA-format particle dataset.
//
// Header: "<n> <boxWidth> <cx> <cy> <cz> <nValues>"
// Then n lines: "<x> <y> <z> <value...> [role]", role one of S/T/B
// (source/target/both), defaulting to RoleBoth when omitted.
func Decode(raw []byte) (*InMemory, error) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return nil, errors.NewMalformedRecordError(0, fmt.Errorf("empty dataset"))
	}
	header := strings.Fields(scanner.Text())
	if len(header) < 6 {
		return nil, errors.NewMalformedRecordError(0, fmt.Errorf("header wants 6 fields, got %d", len(header)))
	}
	n, err := strconv.Atoi(header[0])
	if err != nil {
		return nil, errors.NewMalformedRecordError(0, err)
	}
	width, err := strconv.ParseFloat(header[1], 64)
	if err != nil {
		return nil, errors.NewMalformedRecordError(0, err)
	}
	var centre [3]float64
	for i := 0; i < 3; i++ {
		centre[i], err = strconv.ParseFloat(header[2+i], 64)
		if err != nil {
			return nil, errors.NewMalformedRecordError(0, err)
		}
	}
	nValues, err := strconv.Atoi(header[5])
	if err != nil {
		return nil, errors.NewMalformedRecordError(0, err)
	}

	out := &InMemory{centre: centre, width: width, nValues: nValues, particles: make([]particle.Particle, 0, n)}
	for i := 0; i < n; i++ {
		if !scanner.Scan() {
			return nil, errors.NewMalformedRecordError(i+1, fmt.Errorf("truncated dataset: want %d particles, got %d", n, i))
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3+nValues {
			return nil, errors.NewMalformedRecordError(i+1, fmt.Errorf("record wants %d fields, got %d", 3+nValues, len(fields)))
		}
		p := particle.Particle{Role: particle.RoleBoth}
		p.X, err = strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, errors.NewMalformedRecordError(i+1, err)
		}
		p.Y, err = strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, errors.NewMalformedRecordError(i+1, err)
		}
		p.Z, err = strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, errors.NewMalformedRecordError(i+1, err)
		}
		p.Value = make([]float64, nValues)
		for k := 0; k < nValues; k++ {
			p.Value[k], err = strconv.ParseFloat(fields[3+k], 64)
			if err != nil {
				return nil, errors.NewMalformedRecordError(i+1, err)
			}
		}
		if len(fields) > 3+nValues {
			switch strings.ToUpper(fields[3+nValues]) {
			case "S":
				p.Role = particle.RoleSource
			case "T":
				p.Role = particle.RoleTarget
			case "B":
				p.Role = particle.RoleBoth
			}
		}
		out.particles = append(out.particles, p)
	}
	return out, nil
}

// Encode serializes a particle.Container back into FMA-format bytes.
// roleOf, if non-nil, supplies the role tag for particle i (RoleBoth when
// nil); the container itself has no role field, only the source it came
// from does.
func Encode(c *particle.Container, centre [3]float64, width float64, roleOf func(i int) particle.Role) ([]byte, error) {
	var buf bytes.Buffer
	nValues := len(c.Value)
	fmt.Fprintf(&buf, "%d %s %s %s %s %d\n",
		c.Len(), formatFloat(width), formatFloat(centre[0]), formatFloat(centre[1]), formatFloat(centre[2]), nValues)
	for i := 0; i < c.Len(); i++ {
		p := c.At(i)
		fmt.Fprintf(&buf, "%s %s %s", formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z))
		for _, v := range p.Value {
			fmt.Fprintf(&buf, " %s", formatFloat(v))
		}
		role := particle.RoleBoth
		if roleOf != nil {
			role = roleOf(i)
		}
		fmt.Fprintf(&buf, " %s\n", roleLetter(role))
	}
	return buf.Bytes(), nil
}

// Save encodes c and writes it to backend under key.
func Save(ctx context.Context, backend Backend, key string, c *particle.Container, centre [3]float64, width float64, roleOf func(i int) particle.Role) error {
	data, err := Encode(c, centre, width, roleOf)
	if err != nil {
		return err
	}
	if err := backend.Put(ctx, key, data); err != nil {
		return errors.NewSourceUnavailableError(fmt.Sprintf("%s:%s", backend.Type(), key), err)
	}
	return nil
}

func roleLetter(r particle.Role) string {
	switch r {
	case particle.RoleSource:
		return "S"
	case particle.RoleTarget:
		return "T"
	default:
		return "B"
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

var (
	_ Backend                  = (*LocalBackend)(nil)
	_ particle.ParticleSource  = (*InMemory)(nil)
)
