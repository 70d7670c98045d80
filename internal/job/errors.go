package job

import "fmt"

// ValidationError reports a malformed payload at construction time,
// before the job is ever stored.
type ValidationError struct {
	JobName string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("job: invalid %s payload: field %q %s", e.JobName, e.Field, e.Reason)
}

func missingField(jobName, field string) *ValidationError {
	return &ValidationError{JobName: jobName, Field: field, Reason: "is required"}
}

// DecodeError reports a stored blob that cannot be turned back into a
// job: corrupt JSON, an unregistered name, or a payload that no longer
// validates. Records carrying such blobs are failed on first pop and
// never retried.
type DecodeError struct {
	JobName string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.JobName == "" {
		return fmt.Sprintf("job: decode: %v", e.Err)
	}
	return fmt.Sprintf("job: decode %s: %v", e.JobName, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
