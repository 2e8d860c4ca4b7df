package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusIndexed ItemStatus = "indexed"
	StatusFailed  ItemStatus = "failed"
)

// Result is the outcome of indexing one item in a batch operation. Exactly
// one Result is produced per input item; callers match by ID.
type Result struct {
	id     string
	status ItemStatus
	err    error
}

// NewIndexed creates a successful batch result.
func NewIndexed(id string) Result { return Result{id: id, status: StatusIndexed} }

// NewFailed creates a failed batch result.
func NewFailed(id string, err error) Result { return Result{id: id, status: StatusFailed, err: err} }

// ID returns the product identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }
