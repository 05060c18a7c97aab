package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(jobID, status string) Entry {
	return Entry{
		JobID:      jobID,
		Status:     status,
		FinishedAt: "2026-03-14T09:00:00Z",
		BatchRefs:  []string{"rename.batch"},
		Errors:     []string{},
	}
}

func TestChain_AppendLinksEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	c, err := Open(path)
	require.NoError(t, err)

	e1, err := c.Append(testEntry("job_1", "done"))
	require.NoError(t, err)
	assert.Empty(t, e1.PrevHash, "genesis entry has empty prev_hash")
	assert.NotEmpty(t, e1.Hash)

	e2, err := c.Append(testEntry("job_2", "failed"))
	require.NoError(t, err)
	assert.Equal(t, e1.Hash, e2.PrevHash)

	e3, err := c.Append(testEntry("job_3", "done"))
	require.NoError(t, err)
	assert.Equal(t, e2.Hash, e3.PrevHash)

	require.NoError(t, Verify(path))
}

func TestChain_HashRecomputable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	c, err := Open(path)
	require.NoError(t, err)

	_, err = c.Append(testEntry("job_1", "done"))
	require.NoError(t, err)
	_, err = c.Append(testEntry("job_2", "done"))
	require.NoError(t, err)

	entries, err := Read(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	for i, e := range entries {
		recomputed, err := computeHash(e)
		require.NoError(t, err)
		assert.Equal(t, e.Hash, recomputed, "entry %d", i)
	}
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)
}

func TestChain_ResumesAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	c, err := Open(path)
	require.NoError(t, err)
	e1, err := c.Append(testEntry("job_1", "done"))
	require.NoError(t, err)

	// A new Chain instance picks the link up where the file left off.
	c2, err := Open(path)
	require.NoError(t, err)
	e2, err := c2.Append(testEntry("job_2", "done"))
	require.NoError(t, err)
	assert.Equal(t, e1.Hash, e2.PrevHash)

	require.NoError(t, Verify(path))
}

func TestVerify_DetectsAlteredEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	c, err := Open(path)
	require.NoError(t, err)
	_, err = c.Append(testEntry("job_1", "done"))
	require.NoError(t, err)
	_, err = c.Append(testEntry("job_2", "done"))
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(raw), `"job_1"`, `"job_9"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o644))

	err = Verify(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 0")
}

func TestVerify_DetectsRemovedEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	c, err := Open(path)
	require.NoError(t, err)
	for _, id := range []string{"job_1", "job_2", "job_3"} {
		_, err = c.Append(testEntry(id, "done"))
		require.NoError(t, err)
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.SplitN(string(raw), "\n", 3)
	// Drop the middle entry.
	require.NoError(t, os.WriteFile(path, []byte(lines[0]+"\n"+lines[2]), 0o644))

	err = Verify(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prev_hash mismatch")
}

func TestVerify_MissingFileIsEmptyValidChain(t *testing.T) {
	require.NoError(t, Verify(filepath.Join(t.TempDir(), "absent.log")))
}

func TestOpen_RefusesCorruptLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, os.WriteFile(path, []byte(`{"job_id":"x","hash":"bogus","prev_hash":""}`+"\n"), 0o644))

	_, err := Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed verification")
}

func TestMarshalCanonical_Deterministic(t *testing.T) {
	a := map[string]any{"b": "2", "a": "1", "list": []string{"x", "y"}}
	b := map[string]any{"list": []string{"x", "y"}, "a": "1", "b": "2"}

	encA, err := marshalCanonical(a)
	require.NoError(t, err)
	encB, err := marshalCanonical(b)
	require.NoError(t, err)
	assert.Equal(t, encA, encB)
	assert.Equal(t, `{"a":"1","b":"2","list":["x","y"]}`, string(encA))
}

func TestMarshalCanonical_RejectsFloatsAndNull(t *testing.T) {
	_, err := marshalCanonical(map[string]any{"f": 1.5})
	require.Error(t, err)

	_, err = marshalCanonical(map[string]any{"n": nil})
	require.Error(t, err)
}
