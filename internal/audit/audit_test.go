package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/logging"
	"docsync/internal/resolution"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestTrailWritesTransitions(t *testing.T) {
	dir := t.TempDir()
	trail, err := NewTrail(dir, nil)
	require.NoError(t, err)
	defer trail.Close()

	ctx := logging.WithTraceID(context.Background(), "trace-123")
	trail.Transition(ctx, "c-1", "doc-1", resolution.StateSelected, resolution.StateBackingUp, "prefer_mirror")
	trail.Transition(ctx, "c-1", "doc-1", resolution.StateBackingUp, resolution.StateApplying, "")

	path := filepath.Join(dir, "resolutions-"+time.Now().UTC().Format("2006-01-02")+".jsonl")
	events := readEvents(t, path)
	require.Len(t, events, 2)

	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, "trace-123", events[0].TraceID)
	assert.Equal(t, "c-1", events[0].ConflictID)
	assert.Equal(t, "doc-1", events[0].DocumentID)
	assert.Equal(t, "selected", events[0].FromState)
	assert.Equal(t, "backing_up", events[0].ToState)
	assert.Equal(t, "prefer_mirror", events[0].Detail)

	assert.Equal(t, "backing_up", events[1].FromState)
	assert.Equal(t, "applying", events[1].ToState)
	assert.Empty(t, events[1].Detail)
}

func TestTrailAppendsAcrossReopens(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	trail, err := NewTrail(dir, nil)
	require.NoError(t, err)
	trail.Transition(ctx, "c-1", "doc-1", resolution.StateSelected, resolution.StateBackingUp, "")
	require.NoError(t, trail.Close())

	trail, err = NewTrail(dir, nil)
	require.NoError(t, err)
	trail.Transition(ctx, "c-2", "doc-2", resolution.StateSelected, resolution.StateBackingUp, "")
	require.NoError(t, trail.Close())

	path := filepath.Join(dir, "resolutions-"+time.Now().UTC().Format("2006-01-02")+".jsonl")
	events := readEvents(t, path)
	require.Len(t, events, 2)
	assert.Equal(t, "c-1", events[0].ConflictID)
	assert.Equal(t, "c-2", events[1].ConflictID)
}

func TestNewTrailCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "audit")
	trail, err := NewTrail(dir, nil)
	require.NoError(t, err)
	defer trail.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
