package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"nexus-bot/internal/nexus"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeUploader struct {
	link    string
	err     error
	content string
	calls   int
}

func (f *fakeUploader) Create(_ context.Context, content string) (string, error) {
	f.calls++
	f.content = content
	return f.link, f.err
}

func dataSet(n int) nexus.ResultSet {
	var rs nexus.ResultSet
	for i := 1; i <= n; i++ {
		rs.Entries = append(rs.Entries, nexus.Entry{Node: "n", Text: fmt.Sprintf("line %d", i)})
	}
	return rs
}

func TestEmpty(t *testing.T) {
	up := &fakeUploader{}
	out := NewStrategist(up, zaptest.NewLogger(t)).Deliver(context.Background(), nexus.ResultSet{}, nil)

	require.Equal(t, KindEmpty, out.Kind)
	require.True(t, out.Commit)
	require.Zero(t, out.Results)
	require.Zero(t, up.calls)
}

func TestAllFailedReportsFirst(t *testing.T) {
	rs := nexus.ResultSet{Entries: []nexus.Entry{
		{Text: "Failed to reach http://a: <refused>", Failure: true},
		{Text: "Error from http://b: HTTP 500", Failure: true},
	}}
	up := &fakeUploader{}
	out := NewStrategist(up, zaptest.NewLogger(t)).Deliver(context.Background(), rs, nil)

	require.Equal(t, KindFailed, out.Kind)
	require.False(t, out.Commit)
	require.Equal(t, "⚠️ Failed to reach http://a: &lt;refused&gt;", out.Text)
	require.Zero(t, up.calls)
}

func TestPasted(t *testing.T) {
	up := &fakeUploader{link: "https://paste.example/xyz"}
	rs := dataSet(3)
	rs.Entries = append(rs.Entries, nexus.Entry{Text: "Error from http://b: HTTP 500", Failure: true})

	announced := false
	out := NewStrategist(up, zaptest.NewLogger(t)).Deliver(context.Background(), rs, func() { announced = true })

	require.True(t, announced)
	require.Equal(t, KindPasted, out.Kind)
	require.True(t, out.Commit)
	require.Equal(t, 4, out.Results)
	require.Equal(t, "https://paste.example/xyz", out.Link)
	require.Contains(t, out.Text, "Found 4 result(s)")
	require.Contains(t, out.Text, `href="https://paste.example/xyz"`)
	require.Contains(t, out.Text, "self-destruct after it is opened once")
	require.Equal(t, "line 1\nline 2\nline 3\nError from http://b: HTTP 500", up.content)
}

func TestUploadFailureFallsBackInline(t *testing.T) {
	up := &fakeUploader{err: errors.New("down")}
	out := NewStrategist(up, zaptest.NewLogger(t)).Deliver(context.Background(), dataSet(20), nil)

	require.Equal(t, KindInline, out.Kind)
	require.True(t, out.Commit)
	require.Equal(t, 20, out.Results)
	require.Contains(t, out.Text, "Found 20 result(s)")
	require.Contains(t, out.Text, "line 15\n\n... and 5 more lines.")
	require.NotContains(t, out.Text, "line 16")
}

func TestPreview(t *testing.T) {
	require.Equal(t, "a\nb", Preview([]string{"a", "b"}))

	lines := make([]string, 15)
	for i := range lines {
		lines[i] = "x"
	}
	require.NotContains(t, Preview(lines), "more lines")

	long := []string{strings.Repeat("y", 5000), "z"}
	p := Preview(long)
	require.LessOrEqual(t, len([]rune(p)), previewRunes+1)
}
