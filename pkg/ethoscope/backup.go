package ethoscope

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

// backupFilenamePattern matches the strict YYYY-MM-DD_HH-MM-SS_<devid>.db
// shape a backup worker names its files with.
var backupFilenamePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})_([0-9a-f]+)\.db$`)

// ErrBackupFilenameUnparseable is returned when a reported backup_filename
// does not match the expected shape. Callers must disable backup-status
// reporting for the cycle rather than raise.
var ErrBackupFilenameUnparseable = errors.New("backup filename does not match expected pattern")

// ParseBackupFilename extracts the timestamp and device id encoded in a
// backup_filename of the form YYYY-MM-DD_HH-MM-SS_<devid>.db.
func ParseBackupFilename(filename string) (timestamp time.Time, deviceID string, err error) {
	m := backupFilenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return time.Time{}, "", ErrBackupFilenameUnparseable
	}
	ts, err := time.Parse("2006-01-02_15-04-05", m[1])
	if err != nil {
		return time.Time{}, "", ErrBackupFilenameUnparseable
	}
	return ts, m[2], nil
}

// DeriveBackupPath builds <results>/<devid>/<name>/<date>_<time>/<filename>
// from the device's reported backup_filename.
func DeriveBackupPath(resultsDir, deviceID, name, filename string) (string, error) {
	ts, parsedID, err := ParseBackupFilename(filename)
	if err != nil {
		return "", err
	}
	if parsedID != "" && parsedID != deviceID {
		return "", fmt.Errorf("%w: filename device id %q does not match %q", ErrBackupFilenameUnparseable, parsedID, deviceID)
	}
	stamp := ts.Format("2006-01-02_15-04-05")
	return filepath.Join(resultsDir, deviceID, name, stamp, filename), nil
}

// RemoteMetadata is the database metadata an ethoscope reports about its
// active result writer, after dialect selection.
type RemoteMetadata struct {
	TableCounts map[string]int64
	SizeBytes   int64
}

// ExtractRemoteMetadata selects the backup policy's remote input from a
// raw /data/<id> response. A nested databases.{MariaDB,SQLite} map is
// preferred over the legacy flat database_info map.
func ExtractRemoteMetadata(raw map[string]any) RemoteMetadata {
	if databases, ok := raw["databases"].(map[string]any); ok {
		for _, dialect := range []string{"MariaDB", "SQLite"} {
			if info, ok := databases[dialect].(map[string]any); ok {
				return metadataFromInfo(info)
			}
		}
	}
	if info, ok := raw["database_info"].(map[string]any); ok {
		return metadataFromInfo(info)
	}
	return RemoteMetadata{}
}

func metadataFromInfo(info map[string]any) RemoteMetadata {
	meta := RemoteMetadata{}
	if counts, ok := info["table_counts"].(map[string]any); ok {
		meta.TableCounts = make(map[string]int64, len(counts))
		for table, v := range counts {
			meta.TableCounts[table] = toInt64(v)
		}
		return meta
	}
	if size, ok := info["db_size_bytes"]; ok {
		meta.SizeBytes = toInt64(size)
	}
	return meta
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// ErrNoUsableRemoteMetadata is returned when neither a table_counts map nor
// a db_size_bytes value could be found in the remote's metadata.
var ErrNoUsableRemoteMetadata = errors.New("no usable remote backup metadata")

// ComputeBackupPercentage dispatches between the table-count policy
// (MySQL-class remote) and the file-size policy (SQLite-class remote),
// chosen from which metadata the remote actually reported.
func ComputeBackupPercentage(localTableCounts map[string]int64, localSizeBytes int64, remote RemoteMetadata) (percentage float64, method string, err error) {
	if len(remote.TableCounts) > 0 {
		var localSum, remoteSum int64
		for table, remoteCount := range remote.TableCounts {
			if remoteCount <= 0 {
				continue
			}
			remoteSum += remoteCount
			localSum += localTableCounts[table]
		}
		if remoteSum == 0 {
			return 0, "", ErrNoUsableRemoteMetadata
		}
		pct := float64(localSum) / float64(remoteSum) * 100
		if pct > 100 {
			pct = 100
		}
		return pct, "incremental", nil
	}

	if remote.SizeBytes > 0 {
		pct := float64(localSizeBytes) / float64(remote.SizeBytes) * 100
		if pct > 100 {
			pct = 100
		}
		return pct, "rsync", nil
	}

	return 0, "", ErrNoUsableRemoteMetadata
}
