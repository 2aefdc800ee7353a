package scanning

import "fmt"

// ScanMode records how a scan was requested. It does not change the walk.
type ScanMode string

const (
	ScanModeQuick  ScanMode = "quick"
	ScanModeFull   ScanMode = "full"
	ScanModeCustom ScanMode = "custom"
)

func (m ScanMode) String() string { return string(m) }

// ParseScanMode converts s to a ScanMode. The empty string yields ScanModeQuick.
func ParseScanMode(s string) (ScanMode, error) {
	switch ScanMode(s) {
	case "":
		return ScanModeQuick, nil
	case ScanModeQuick, ScanModeFull, ScanModeCustom:
		return ScanMode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown scan mode %q", ErrInvalidInput, s)
	}
}
