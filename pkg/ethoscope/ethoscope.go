package ethoscope

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gilestrolab/ethoscope-node/pkg/device"
	"github.com/gilestrolab/ethoscope-node/pkg/eventlog"
	"github.com/gilestrolab/ethoscope-node/pkg/httpclient"
	"github.com/gilestrolab/ethoscope-node/pkg/status"
)

const pollTimeout = 5 * time.Second

// Ethoscope specialises device.Device with the concrete /id + /data/<id>
// HTTP exchange, instruction validation, and backup-progress bookkeeping.
type Ethoscope struct {
	*device.Device

	client     *httpclient.Client
	resultsDir string

	dbUpdateInterval time.Duration
	lastBackupCheck  time.Time
	backupStatus     string
	backupSize       int64
	backupMethod     string
}

// New constructs an Ethoscope and the device.Device that drives it.
func New(id, name, ip string, port int, client *httpclient.Client, resultsDir string, cfg device.Config, logger eventlog.Logger) *Ethoscope {
	e := &Ethoscope{
		client:           client,
		resultsDir:       resultsDir,
		dbUpdateInterval: 30 * time.Second,
		backupStatus:     "No Backup",
	}
	e.Device = device.New(id, name, ip, port, e.fetch, cfg, logger)
	return e
}

// fetch implements device.FetchFunc: a GET to /id confirms reachability, a
// GET to /data/<id> reports the device's own status name. Failure on the
// first call reports "unreached"; failure on the second reports "busy".
func (e *Ethoscope) fetch(ctx context.Context) (device.FetchResult, error) {
	ip, port := e.Address()

	idURL := fmt.Sprintf("http://%s:%d/id", ip, port)
	if _, err := e.client.GetJSON(ctx, idURL, pollTimeout, nil); err != nil {
		return device.FetchResult{}, err
	}

	dataURL := fmt.Sprintf("http://%s:%d/data/%s", ip, port, e.ID())
	data, err := e.client.GetJSON(ctx, dataURL, pollTimeout, nil)
	if err != nil {
		return device.FetchResult{}, &device.BusyError{Err: err}
	}

	statusStr, _ := data["status"].(string)
	e.maybeRecomputeBackupProgress(data)

	return device.FetchResult{StatusName: status.Name(statusStr), Info: data}, nil
}

// SendInstruction validates instruction against the device's current
// status, issues it, and records user-provenance for later status
// classification. A transport failure from a power operation (the device
// is expected to disappear) is swallowed.
func (e *Ethoscope) SendInstruction(ctx context.Context, instruction string, postData map[string]any) error {
	_, current := e.Snapshot()
	var currentName status.Name
	if current != nil {
		currentName = current.StatusName
	}

	if err := ValidateInstruction(currentName, instruction); err != nil {
		return err
	}

	ip, port := e.Address()
	url := fmt.Sprintf("http://%s:%d/%s/%s", ip, port, instruction, e.ID())

	_, err := e.client.GetJSON(ctx, url, pollTimeout, postData)
	e.RecordUserInstruction(instruction)

	if err != nil {
		var netErr *httpclient.NetworkError
		if errors.As(err, &netErr) && isPowerOperation(instruction) {
			return nil
		}
		return err
	}
	return nil
}

// BackupInfo reports the last-computed backup progress for exposition.
func (e *Ethoscope) BackupInfo() (status, method string, size int64) {
	return e.backupStatus, e.backupMethod, e.backupSize
}

// maybeRecomputeBackupProgress throttles backup-percentage recomputation
// to at most once per dbUpdateInterval and never raises: parsing or
// metadata failures simply leave backupStatus describing why.
func (e *Ethoscope) maybeRecomputeBackupProgress(data map[string]any) {
	if time.Since(e.lastBackupCheck) < e.dbUpdateInterval {
		return
	}
	e.lastBackupCheck = time.Now()

	filename, _ := data["backup_filename"].(string)
	if filename == "" {
		e.backupStatus = "No Backup"
		return
	}

	path, err := DeriveBackupPath(e.resultsDir, e.ID(), e.displayName(), filename)
	if err != nil {
		e.backupStatus = "No Backup"
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		e.backupStatus = "File Missing"
		return
	}

	// Local per-table row counts require reading the backup SQLite file
	// directly; only the file-size policy is exercised from this layer.
	remote := ExtractRemoteMetadata(data)
	pct, method, err := ComputeBackupPercentage(nil, info.Size(), remote)
	if err != nil {
		e.backupStatus = "File Missing"
		return
	}

	e.backupStatus = fmt.Sprintf("%.1f%%", pct)
	e.backupMethod = method
	e.backupSize = info.Size()
}

func (e *Ethoscope) displayName() string {
	info, _ := e.Snapshot()
	if name, ok := info["name"].(string); ok {
		return name
	}
	return e.ID()
}
