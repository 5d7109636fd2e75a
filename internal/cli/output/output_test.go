package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterRow struct {
	Strategy string        `json:"strategy"`
	Final    int64         `json:"final"`
	Elapsed  time.Duration `json:"elapsed"`
	Secret   string        `json:"secret" table:"-"`
	hidden   int
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "table": FormatTable, "JSON": FormatJSON, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestNewFormatter(t *testing.T) {
	assert.IsType(t, FormatterFunc(nil), NewFormatter(FormatJSON))
	assert.IsType(t, FormatterFunc(nil), NewFormatter(FormatYAML))
	assert.IsType(t, &TableFormatter{}, NewFormatter(FormatTable))
	assert.IsType(t, &TableFormatter{}, NewFormatter("other"))
}

func TestJSONAndYAML(t *testing.T) {
	row := counterRow{Strategy: "optimistic", Final: 42, Elapsed: 1500 * time.Millisecond}

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatJSON).Format(&buf, row))
	assert.Contains(t, buf.String(), `"strategy": "optimistic"`)
	assert.Contains(t, buf.String(), `"final": 42`)

	buf.Reset()
	data := map[string]any{"value": "Value-7", "items": []int{1, 2}}
	require.NoError(t, NewFormatter(FormatYAML).Format(&buf, data))
	assert.Equal(t, "items:\n  - 1\n  - 2\nvalue: Value-7\n", buf.String())
}

func TestTableFormatter_Struct(t *testing.T) {
	var buf bytes.Buffer
	f := &TableFormatter{}
	require.NoError(t, f.Format(&buf, &counterRow{Strategy: "pessimistic", Final: 10, Elapsed: 2 * time.Second, Secret: "x"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Regexp(t, `^FIELD\s+VALUE$`, lines[0])
	assert.Regexp(t, `^strategy\s+pessimistic$`, lines[1])
	assert.Regexp(t, `^final\s+10$`, lines[2])
	assert.Regexp(t, `^elapsed\s+2s$`, lines[3])
	assert.NotContains(t, buf.String(), "secret")
}

func TestTableFormatter_Slice(t *testing.T) {
	var buf bytes.Buffer
	rows := []*counterRow{
		{Strategy: "unsynchronized", Final: 7},
		nil,
		{Strategy: "optimistic", Final: 20, Elapsed: time.Millisecond},
	}
	require.NoError(t, (&TableFormatter{}).Format(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Regexp(t, `^STRATEGY\s+FINAL\s+ELAPSED$`, lines[0])
	assert.Regexp(t, `^unsynchronized\s+7\s+0s$`, lines[1])
	assert.Regexp(t, `^optimistic\s+20\s+1ms$`, lines[3])
}

func TestTableFormatter_ScalarsMapsAndTables(t *testing.T) {
	f := &TableFormatter{}
	var buf bytes.Buffer

	require.NoError(t, f.Format(&buf, map[string]int{"b": 2, "a": 1}))
	assert.Regexp(t, `(?s)^KEY\s+VALUE\na\s+1\nb\s+2\n$`, buf.String())

	buf.Reset()
	require.NoError(t, f.Format(&buf, []byte("Value-1")))
	assert.Regexp(t, `^VALUE\nValue-1\n$`, buf.String())

	buf.Reset()
	require.NoError(t, f.Format(&buf, []string{"x", ""}))
	assert.Regexp(t, `^VALUE\nx\n-\n$`, buf.String())

	buf.Reset()
	tbl := Table{Headers: []string{"A", "B"}}
	tbl.AddRow("1", "2")
	require.NoError(t, (&TableFormatter{NoHeaders: true}).Format(&buf, tbl))
	assert.Equal(t, "1  2\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Format(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestFormatValue_Nested(t *testing.T) {
	var buf bytes.Buffer
	data := struct {
		Received [][]int          `json:"received"`
		Empty    []int            `json:"empty"`
		Labels   map[string]string `json:"labels"`
		When     time.Time        `json:"when"`
	}{Received: [][]int{{1}, {2, 3}}}
	require.NoError(t, (&TableFormatter{}).Format(&buf, data))
	assert.Regexp(t, `received\s+\[2 items\]`, buf.String())
	assert.Regexp(t, `empty\s+-`, buf.String())
	assert.Regexp(t, `labels\s+-`, buf.String())
	assert.Regexp(t, `when\s+-`, buf.String())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner(t *testing.T) {
	var out syncBuffer
	s := NewSpinner(&out, "holding lock")
	s.interval = time.Millisecond
	s.Start()
	require.Eventually(t, func() bool { return strings.Count(out.String(), "holding lock") >= 3 }, time.Second, time.Millisecond)
	s.Success("released")
	s.Stop()

	assert.True(t, strings.HasSuffix(out.String(), "✓ released\n"))
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	var out syncBuffer
	s := NewSpinner(&out, "waiting")
	s.Fail("lock timed out")
	assert.Equal(t, "\r\033[K✗ lock timed out\n", out.String())
}
