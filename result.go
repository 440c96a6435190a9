package ftpsize

// Result is the outcome of Probe: either Size (and Summary) on success or Err
// on failure, never both.
type Result struct {
	// Size is the human-readable total, e.g. "3.1 kB".
	Size string

	// Summary holds the raw numbers behind Size.
	Summary Summary

	// Err is non-nil on failure and is always an *Error.
	Err error
}

// OK reports whether the probe succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}
