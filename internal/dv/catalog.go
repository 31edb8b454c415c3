package dv

import "time"

// Operation is one CLI invocation recorded in the catalog.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Operation  string
	Parameters string
	Status     string // "running", "success" or "error"
}

// ScanRecord summarizes one scan of a backend location.
type ScanRecord struct {
	ID           string
	OperationID  int64 // 0 when the scan ran outside a recorded operation
	Location     string
	ScannedAt    time.Time
	Chains       int
	Orphans      int
	Unrecognized int
	Sets         []ScanSet
}

// ScanSet is the catalog's view of one backup set found by a scan.
type ScanSet struct {
	Prefix   string
	Type     string
	Start    time.Time
	End      time.Time
	Volumes  int
	Chain    int // -1 for orphans
	Complete bool
	Issues   string
}

// Catalog keeps a local history of operations and scans. Nothing in it is
// needed to read an archive; it only answers "what did the last scans see".
type Catalog interface {
	// CreateOperation starts recording an operation.
	CreateOperation(operation, parameters string) (*Operation, error)

	// FinishOperation stamps an operation with its end time and status.
	FinishOperation(id int64, status string) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*Operation, error)

	// RecordScan stores a scan and its sets atomically.
	RecordScan(scan *ScanRecord) error

	// ListScans returns the most recent scans of location, newest first,
	// without their sets. An empty location lists every location.
	ListScans(location string, limit int) ([]*ScanRecord, error)

	// FindScan returns a scan with its sets, or nil if there is none.
	FindScan(id string) (*ScanRecord, error)

	Close() error
}
