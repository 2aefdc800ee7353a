package verdict

// QuarantinePolicy decides which classifications are moved into quarantine.
type QuarantinePolicy struct {
	// MinLevel is the lowest threat level that triggers quarantine.
	MinLevel ThreatLevel
}

// DefaultQuarantinePolicy quarantines high and critical infections only.
func DefaultQuarantinePolicy() QuarantinePolicy {
	return QuarantinePolicy{MinLevel: ThreatLevelHigh}
}

// ShouldQuarantine reports whether c warrants quarantine under p.
func (p QuarantinePolicy) ShouldQuarantine(c Classification) bool {
	if !c.Infected() {
		return false
	}
	return c.ThreatLevel.Rank() >= p.MinLevel.Rank()
}
