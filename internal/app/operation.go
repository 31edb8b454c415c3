package app

// Operation tracks the CLI command being run. It lives in memory with
// ID 0 until something the command does is recorded in the catalog; only
// then is it persisted and given a catalog ID.
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string // "success" or "error"
}

// NewOperation creates an unpersisted operation that succeeds unless
// marked failed.
func NewOperation(name, parameters string) *Operation {
	return &Operation{Name: name, Parameters: parameters, Status: "success"}
}

// Persisted reports whether the operation has a catalog record.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}
