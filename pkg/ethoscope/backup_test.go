package ethoscope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackupFilenameValid(t *testing.T) {
	ts, devID, err := ParseBackupFilename("2024-03-01_12-30-00_abc123.db")
	require.NoError(t, err)
	assert.Equal(t, "abc123", devID)
	assert.Equal(t, 2024, ts.Year())
}

func TestParseBackupFilenameInvalid(t *testing.T) {
	_, _, err := ParseBackupFilename("not-a-backup-file.db")
	assert.ErrorIs(t, err, ErrBackupFilenameUnparseable)
}

func TestDeriveBackupPathMismatchedDeviceID(t *testing.T) {
	_, err := DeriveBackupPath("/results", "zzz999", "ethoscope_001", "2024-03-01_12-30-00_abc123.db")
	assert.Error(t, err)
}

func TestDeriveBackupPathShape(t *testing.T) {
	path, err := DeriveBackupPath("/results", "abc123", "ethoscope_001", "2024-03-01_12-30-00_abc123.db")
	require.NoError(t, err)
	assert.Equal(t, "/results/abc123/ethoscope_001/2024-03-01_12-30-00/2024-03-01_12-30-00_abc123.db", path)
}

func TestExtractRemoteMetadataPrefersNestedDialect(t *testing.T) {
	raw := map[string]any{
		"databases": map[string]any{
			"MariaDB": map[string]any{"table_counts": map[string]any{"t1": float64(100)}},
		},
		"database_info": map[string]any{"db_size_bytes": float64(999)},
	}
	meta := ExtractRemoteMetadata(raw)
	require.NotNil(t, meta.TableCounts)
	assert.Equal(t, int64(100), meta.TableCounts["t1"])
	assert.Equal(t, int64(0), meta.SizeBytes)
}

func TestExtractRemoteMetadataFallsBackToFlat(t *testing.T) {
	raw := map[string]any{"database_info": map[string]any{"db_size_bytes": float64(2048)}}
	meta := ExtractRemoteMetadata(raw)
	assert.Equal(t, int64(2048), meta.SizeBytes)
}

func TestComputeBackupPercentageTableCountPolicy(t *testing.T) {
	remote := RemoteMetadata{TableCounts: map[string]int64{"frames": 1000, "empty": 0}}
	local := map[string]int64{"frames": 500}

	pct, method, err := ComputeBackupPercentage(local, 0, remote)
	require.NoError(t, err)
	assert.Equal(t, "incremental", method)
	assert.InDelta(t, 50.0, pct, 0.001)
}

func TestComputeBackupPercentageTableCountPolicyCapsAt100(t *testing.T) {
	remote := RemoteMetadata{TableCounts: map[string]int64{"frames": 100}}
	local := map[string]int64{"frames": 500}

	pct, _, err := ComputeBackupPercentage(local, 0, remote)
	require.NoError(t, err)
	assert.Equal(t, 100.0, pct)
}

func TestComputeBackupPercentageFileSizePolicy(t *testing.T) {
	remote := RemoteMetadata{SizeBytes: 1000}
	pct, method, err := ComputeBackupPercentage(nil, 250, remote)
	require.NoError(t, err)
	assert.Equal(t, "rsync", method)
	assert.InDelta(t, 25.0, pct, 0.001)
}

func TestComputeBackupPercentageNoUsableMetadata(t *testing.T) {
	_, _, err := ComputeBackupPercentage(nil, 0, RemoteMetadata{})
	assert.ErrorIs(t, err, ErrNoUsableRemoteMetadata)
}
