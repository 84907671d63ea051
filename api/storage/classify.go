package storage

import "quickdeploy/api/retry"

// S3 error codes that indicate the service, not the request, failed.
var transientCodes = map[string]bool{
	"RequestTimeout":     true,
	"SlowDown":           true,
	"InternalError":      true,
	"ServiceUnavailable": true,
}

// IsTransient classifies an upload or listing error: network faults
// and throttling are retried, everything else (permissions, malformed
// requests, missing bucket) is fatal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if transientCodes[errorCode(err)] {
		return true
	}
	return retry.Transient(err)
}
