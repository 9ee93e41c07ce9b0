package exec

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_SeparatesStreams(t *testing.T) {
	res, err := Run(context.Background(), Request{Script: "echo out; echo err >&2"})
	require.NoError(t, err)
	assert.Equal(t, "out\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))
	assert.Equal(t, "out\nerr\n", string(res.Aggregated))
	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, res.Truncated)
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	res, err := Run(context.Background(), Request{Script: "echo nope; exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "nope\n", string(res.Stdout))
}

func TestRun_Argv(t *testing.T) {
	res, err := Run(context.Background(), Request{Script: "ignored", Argv: []string{"sh", "-c", "echo wrapped"}})
	require.NoError(t, err)
	assert.Equal(t, "wrapped\n", string(res.Stdout))
}

func TestRun_Cwd(t *testing.T) {
	dir := t.TempDir()
	res, err := Run(context.Background(), Request{Script: "pwd -P", Cwd: dir})
	require.NoError(t, err)
	assert.Contains(t, string(res.Stdout), "/")
	assert.Equal(t, 0, res.ExitCode)
}

func TestRun_CapsOutput(t *testing.T) {
	res, err := Run(context.Background(), Request{Script: "head -c 5000 /dev/zero", MaxBytes: 1000})
	require.NoError(t, err)
	assert.Len(t, res.Stdout, 1000)
	assert.True(t, res.Truncated)
}

func TestRun_ContextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := Run(ctx, Request{Script: "sleep 5"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_TTY(t *testing.T) {
	res, err := Run(context.Background(), Request{Script: "test -t 1 && echo tty", TTY: true})
	require.NoError(t, err)
	assert.Contains(t, string(res.Stdout), "tty")
	assert.Empty(t, res.Stderr)
}

func TestCappedBuffer(t *testing.T) {
	b := newCappedBuffer(4)
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = b.Write([]byte("def"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abcd", string(b.Bytes()))
	assert.True(t, b.Truncated())
}

func TestAggregate_UnderCap(t *testing.T) {
	assert.Equal(t, "ab", string(Aggregate([]byte("a"), []byte("b"), 10)))
}

func TestAggregate_PrefersStderrOnContention(t *testing.T) {
	stdout := bytes.Repeat([]byte("a"), 300)
	stderr := bytes.Repeat([]byte("b"), 300)
	got := Aggregate(stdout, stderr, 300)
	require.Len(t, got, 300)
	assert.Equal(t, bytes.Repeat([]byte("a"), 100), got[:100])
	assert.Equal(t, bytes.Repeat([]byte("b"), 200), got[100:])
}

func TestAggregate_RebalancesWhenStderrIsSmall(t *testing.T) {
	stdout := bytes.Repeat([]byte("a"), 300)
	stderr := []byte("bb")
	got := Aggregate(stdout, stderr, 100)
	require.Len(t, got, 100)
	assert.Equal(t, bytes.Repeat([]byte("a"), 98), got[:98])
	assert.Equal(t, "bb", string(got[98:]))
}
