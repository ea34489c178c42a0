package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozmaster/torus-enforcer/internal/gate"
)

func TestNewID_Is26CharsAndSortsWithTimestamp(t *testing.T) {
	base := time.Now()
	earlier := NewID(base)
	later := NewID(base.Add(time.Second))
	assert.Len(t, earlier, 26)
	assert.Len(t, later, 26)
	assert.Less(t, earlier, later)
}

func TestNewID_UniqueWithinSameMillisecond(t *testing.T) {
	now := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := NewID(now)
		assert.False(t, seen[id], "id collided: %s", id)
		seen[id] = true
	}
}

func TestNewID_AlphabetIsCrockfordBase32(t *testing.T) {
	id := NewID(time.Now())
	for _, c := range id {
		assert.Contains(t, crockford, string(c))
	}
}

func TestTrail_AppendWritesJSONLPerDay(t *testing.T) {
	root := t.TempDir()
	trail := NewTrail(root)
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	rec1 := NewRecord(now, "sess-1", "Edit", gate.Allow("gate_01"))
	rec2 := NewRecord(now.Add(time.Minute), "sess-1", "Bash", gate.NewResult("gate_02", true, "blocked", gate.SeverityCritical))

	require.NoError(t, trail.Append(rec1))
	require.NoError(t, trail.Append(rec2))

	path := filepath.Join(root, "audit", "2026-03-05.jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := splitLines(t, data)
	require.Len(t, lines, 2)

	var got1, got2 Record
	require.NoError(t, json.Unmarshal(lines[0], &got1))
	require.NoError(t, json.Unmarshal(lines[1], &got2))
	assert.Equal(t, "gate_01", got1.Gate)
	assert.True(t, got2.Blocked)
}

func TestTrail_RecordsSortByIDInAppendOrder(t *testing.T) {
	root := t.TempDir()
	trail := NewTrail(root)
	base := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 5; i++ {
		rec := NewRecord(base.Add(time.Duration(i)*time.Millisecond), "sess-1", "Edit", gate.Allow("gate_01"))
		ids = append(ids, rec.ID)
		require.NoError(t, trail.Append(rec))
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	assert.Equal(t, sorted, ids)
}

func splitLines(t *testing.T, data []byte) [][]byte {
	t.Helper()
	var out [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		out = append(out, line)
	}
	return out
}
