package verdict

import "fmt"

// Status is the scan outcome for a single file.
type Status string

const (
	StatusScanning Status = "scanning"
	StatusClean    Status = "clean"
	StatusInfected Status = "infected"
	StatusError    Status = "error"
)

func (s Status) String() string { return string(s) }

// ParseStatus converts a string to a Status. Unknown values map to StatusError.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusScanning, StatusClean, StatusInfected, StatusError:
		return Status(s)
	default:
		return StatusError
	}
}

// ThreatLevel is the five-tier severity derived from the detection count, plus
// unknown for reports that could not be classified.
type ThreatLevel string

const (
	ThreatLevelUnknown  ThreatLevel = "unknown"
	ThreatLevelClean    ThreatLevel = "clean"
	ThreatLevelLow      ThreatLevel = "low"
	ThreatLevelMedium   ThreatLevel = "medium"
	ThreatLevelHigh     ThreatLevel = "high"
	ThreatLevelCritical ThreatLevel = "critical"
)

func (l ThreatLevel) String() string { return string(l) }

// Rank orders threat levels from least to most severe. Unknown ranks lowest.
func (l ThreatLevel) Rank() int {
	switch l {
	case ThreatLevelClean:
		return 1
	case ThreatLevelLow:
		return 2
	case ThreatLevelMedium:
		return 3
	case ThreatLevelHigh:
		return 4
	case ThreatLevelCritical:
		return 5
	default:
		return 0
	}
}

// ParseThreatLevel converts a string to a ThreatLevel. Unknown values map to
// ThreatLevelUnknown.
func ParseThreatLevel(s string) ThreatLevel {
	switch l := ThreatLevel(s); l {
	case ThreatLevelClean, ThreatLevelLow, ThreatLevelMedium, ThreatLevelHigh, ThreatLevelCritical:
		return l
	default:
		return ThreatLevelUnknown
	}
}

// Classification is the normalized view of a RawVerdict.
type Classification struct {
	Status         Status
	ThreatLevel    ThreatLevel
	ThreatNames    []string
	DetectionCount int
	TotalEngines   int
	// Reason is set only for StatusError.
	Reason string
}

// Infected reports whether the file was flagged by at least one engine.
func (c Classification) Infected() bool { return c.Status == StatusInfected }

// Tier maps an inclusive upper bound on positives to a threat level.
type Tier struct {
	MaxPositives int
	Level        ThreatLevel
}

// ThreatTiers is the detection-count policy. Counts above the last tier are
// critical.
var ThreatTiers = []Tier{
	{MaxPositives: 0, Level: ThreatLevelClean},
	{MaxPositives: 2, Level: ThreatLevelLow},
	{MaxPositives: 5, Level: ThreatLevelMedium},
	{MaxPositives: 10, Level: ThreatLevelHigh},
}

// LevelForPositives returns the threat level for a detection count.
func LevelForPositives(positives int) ThreatLevel {
	for _, t := range ThreatTiers {
		if positives <= t.MaxPositives {
			return t.Level
		}
	}
	return ThreatLevelCritical
}

// Classify maps a RawVerdict onto a Classification. It performs no I/O.
func Classify(v RawVerdict) Classification {
	if v.Failed() {
		reason := v.Err
		if reason == "" {
			reason = "empty report"
		}
		return errorClassification(reason)
	}

	r := v.Report
	switch r.ResponseCode {
	case ResponseCodePending:
		return Classification{Status: StatusScanning, ThreatLevel: ThreatLevelUnknown}
	case ResponseCodeReady:
	default:
		return errorClassification(fmt.Sprintf("unexpected response code %d", r.ResponseCode))
	}

	positives := max(r.Positives, 0)
	level := LevelForPositives(positives)
	status := StatusInfected
	if level == ThreatLevelClean {
		status = StatusClean
	}

	return Classification{
		Status:         status,
		ThreatLevel:    level,
		ThreatNames:    threatNames(r.Scans),
		DetectionCount: positives,
		TotalEngines:   r.Total,
	}
}

func errorClassification(reason string) Classification {
	return Classification{Status: StatusError, ThreatLevel: ThreatLevelUnknown, Reason: reason}
}

// threatNames returns the distinct non-empty labels of detecting engines in
// first-seen order.
func threatNames(scans []EngineResult) []string {
	seen := make(map[string]struct{}, len(scans))
	names := make([]string, 0)
	for _, s := range scans {
		if !s.Detected || s.Result == "" {
			continue
		}
		if _, ok := seen[s.Result]; ok {
			continue
		}
		seen[s.Result] = struct{}{}
		names = append(names, s.Result)
	}
	return names
}
