package taskrecord

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() Run {
	return Run{
		Global: Global{Duration: 1.5, MaxThreads: 4, NbEvents: 2},
		Events: []Event{
			{ID: 0, Duration: 0.25, Start: 0.0, Text: "P2M"},
			{ID: 1, Duration: 0.75, Start: 0.25, Text: "M2L@3"},
		},
	}
}

func TestWriteFlatFileFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFlatFile(&buf, sampleRun()))

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Equal(t, header, string(lines[0]))
	assert.Equal(t, "global{@duration=1.5;@max threads=4;@nb events=2}", string(lines[1]))
	assert.Equal(t, "event{@id=0;@duration=0.25;@start=0;@text=P2M}", string(lines[2]))
}

func TestFlatFileRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := sampleRun()
	require.NoError(t, WriteFlatFile(&buf, want))

	got, err := ReadFlatFile(&buf)
	require.NoError(t, err)
	assert.Equal(t, want.Global.Duration, got.Global.Duration)
	assert.Equal(t, want.Global.MaxThreads, got.Global.MaxThreads)
	require.Len(t, got.Events, 2)
	assert.Equal(t, want.Events[1].Text, got.Events[1].Text)
	assert.Equal(t, want.Events[1].Start, got.Events[1].Start)
}

func TestReadFlatFileTextTruncatedTo16Chars(t *testing.T) {
	run := Run{
		Global: Global{Duration: 1, MaxThreads: 1, NbEvents: 1},
		Events: []Event{{ID: 0, Text: "this-text-is-way-too-long-for-16-chars"}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteFlatFile(&buf, run))

	got, err := ReadFlatFile(&buf)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got.Events[0].Text), 16)
}

func TestReadFlatFileMalformed(t *testing.T) {
	cases := map[string]string{
		"missing header": "global{@duration=1;@max threads=1;@nb events=0}\n",
		"missing global":  header + "\n",
		"bad event":       header + "\nglobal{@duration=1;@max threads=1;@nb events=1}\nnot-an-event\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadFlatFile(bytes.NewBufferString(text))
			assert.Error(t, err)
		})
	}
}
