// Package verdict models reputation reports and the policy that turns them
// into a threat classification.
package verdict

import "encoding/json"

// ResponseCode is the report status returned by the reputation service.
type ResponseCode int

const (
	// ResponseCodeReady indicates the report is final.
	ResponseCodeReady ResponseCode = 1
	// ResponseCodePending indicates the file is queued for analysis.
	ResponseCodePending ResponseCode = -2
)

// EngineResult is a single engine's opinion of a file.
type EngineResult struct {
	Engine   string
	Detected bool
	Result   string
	Version  string
	Update   string
}

// Report is the typed form of a reputation report. Scans keeps the order in
// which the service listed its engines.
type Report struct {
	ResponseCode ResponseCode
	VerboseMsg   string
	Resource     string
	SHA256       string
	Permalink    string
	ScanDate     string
	Positives    int
	Total        int
	Scans        []EngineResult
}

// RawVerdict is the outcome of a single submission. Exactly one of Report or
// Err is meaningful: Err is non-empty when the submission failed.
type RawVerdict struct {
	Report  *Report
	Payload json.RawMessage
	Err     string
}

// Failed returns a RawVerdict carrying only a failure reason.
func Failed(reason string) RawVerdict { return RawVerdict{Err: reason} }

// Failed reports whether the submission itself failed.
func (v RawVerdict) Failed() bool { return v.Err != "" || v.Report == nil }
