// Package taskrecord dumps and persists the per-pass task-timer trace a
// parallel engine run collects: one record per operator invocation
// (P2M/M2M/M2L/L2L/L2P/P2P call), plus one summary record for the whole
// run. The flat-file format is the exact line-record ASCII layout the
// task-timer subsystem has always produced; internal/taskrecord also
// persists the same data to Postgres for longer-lived querying across
// many runs.
package taskrecord

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/scalfmm-go/fmm/internal/errors"
)

// Event is one operator invocation's timing.
type Event struct {
	ID       int
	Duration float64 // seconds
	Start    float64 // seconds, relative to run start
	Text     string  // up to 16 characters, e.g. "M2L@3"
}

// Global summarizes a whole run: wall-clock duration, worker count, and
// how many events were recorded.
type Global struct {
	Duration   float64
	MaxThreads int
	NbEvents   int
}

// Run is a Global summary plus its Events, the unit taskrecord reads and
// writes as a whole.
type Run struct {
	Global Global
	Events []Event
}

const header = "ScalFMM Task Records"

// WriteFlatFile serializes run in the canonical text format:
//
//	ScalFMM Task Records
//	global{@duration=<seconds>;@max threads=<N>;@nb events=<K>}
//	event{@id=<int>;@duration=<sec>;@start=<sec>;@text=<up to 16 chars>}
//	...
func WriteFlatFile(w io.Writer, run Run) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, header)
	fmt.Fprintf(bw, "global{@duration=%s;@max threads=%d;@nb events=%d}\n",
		formatSeconds(run.Global.Duration), run.Global.MaxThreads, len(run.Events))
	for _, e := range run.Events {
		text := e.Text
		if len(text) > 16 {
			text = text[:16]
		}
		fmt.Fprintf(bw, "event{@id=%d;@duration=%s;@start=%s;@text=%s}\n",
			e.ID, formatSeconds(e.Duration), formatSeconds(e.Start), text)
	}
	return bw.Flush()
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// ReadFlatFile parses the format WriteFlatFile produces.
func ReadFlatFile(r io.Reader) (Run, error) {
	var run Run
	scanner := bufio.NewScanner(r)
	lineNo := 0

	if !scanner.Scan() {
		return run, errors.NewMalformedRecordError(0, fmt.Errorf("empty task record file"))
	}
	lineNo++
	if strings.TrimSpace(scanner.Text()) != header {
		return run, errors.NewMalformedRecordError(lineNo, fmt.Errorf("missing %q header", header))
	}

	if !scanner.Scan() {
		return run, errors.NewMalformedRecordError(lineNo, fmt.Errorf("missing global record"))
	}
	lineNo++
	g, err := parseGlobal(scanner.Text())
	if err != nil {
		return run, errors.NewMalformedRecordError(lineNo, err)
	}
	run.Global = g

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		e, err := parseEvent(line)
		if err != nil {
			return run, errors.NewMalformedRecordError(lineNo, err)
		}
		run.Events = append(run.Events, e)
	}
	return run, scanner.Err()
}

func parseGlobal(line string) (Global, error) {
	fields, err := braceFields(line, "global")
	if err != nil {
		return Global{}, err
	}
	var g Global
	for k, v := range fields {
		switch k {
		case "@duration":
			g.Duration, err = strconv.ParseFloat(v, 64)
		case "@max threads":
			g.MaxThreads, err = strconv.Atoi(v)
		case "@nb events":
			g.NbEvents, err = strconv.Atoi(v)
		}
		if err != nil {
			return Global{}, err
		}
	}
	return g, nil
}

func parseEvent(line string) (Event, error) {
	fields, err := braceFields(line, "event")
	if err != nil {
		return Event{}, err
	}
	var e Event
	for k, v := range fields {
		switch k {
		case "@id":
			e.ID, err = strconv.Atoi(v)
		case "@duration":
			e.Duration, err = strconv.ParseFloat(v, 64)
		case "@start":
			e.Start, err = strconv.ParseFloat(v, 64)
		case "@text":
			e.Text = v
		}
		if err != nil {
			return Event{}, err
		}
	}
	return e, nil
}

// braceFields parses "<kind>{@k1=v1;@k2=v2;...}" into a key/value map.
func braceFields(line, kind string) (map[string]string, error) {
	prefix, suffix := kind+"{", "}"
	if !strings.HasPrefix(line, prefix) || !strings.HasSuffix(line, suffix) {
		return nil, fmt.Errorf("malformed %s record: %q", kind, line)
	}
	body := line[len(prefix) : len(line)-len(suffix)]
	fields := make(map[string]string)
	for _, part := range strings.Split(body, ";") {
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return nil, fmt.Errorf("malformed %s field: %q", kind, part)
		}
		fields[part[:eq]] = part[eq+1:]
	}
	return fields, nil
}
