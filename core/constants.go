package core

// Severity represents the urgency level of an event
type Severity string

const (
	// SeverityLow indicates informational events
	SeverityLow Severity = "low"
	// SeverityMedium indicates events worth reviewing
	SeverityMedium Severity = "medium"
	// SeverityHigh indicates events requiring attention
	SeverityHigh Severity = "high"
	// SeverityCritical indicates events requiring immediate action
	SeverityCritical Severity = "critical"
)

// String returns the string representation
func (s Severity) String() string {
	return string(s)
}

// IsValid checks if the severity is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank returns the position of the severity in the total order.
// Higher rank means more urgent. Unknown severities rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is at least as urgent as min
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// Category classifies the subsystem an event was observed from
type Category string

const (
	// CategoryProcess covers process launch/exit telemetry
	CategoryProcess Category = "process"
	// CategoryFilesystem covers file create/modify/delete telemetry
	CategoryFilesystem Category = "filesystem"
	// CategoryNetwork covers connection and DNS telemetry
	CategoryNetwork Category = "network"
	// CategoryAuthentication covers login and privilege telemetry
	CategoryAuthentication Category = "authentication"
	// CategorySystem covers host configuration and integrity telemetry
	CategorySystem Category = "system"
	// CategoryCorrelation covers events synthesized by IOC matching
	CategoryCorrelation Category = "correlation"
)

// String returns the string representation
func (c Category) String() string {
	return string(c)
}

// IsValid checks if the category is valid
func (c Category) IsValid() bool {
	switch c {
	case CategoryProcess, CategoryFilesystem, CategoryNetwork,
		CategoryAuthentication, CategorySystem, CategoryCorrelation:
		return true
	default:
		return false
	}
}

// Categories returns all valid categories in a stable order
func Categories() []Category {
	return []Category{
		CategoryProcess,
		CategoryFilesystem,
		CategoryNetwork,
		CategoryAuthentication,
		CategorySystem,
		CategoryCorrelation,
	}
}

// Severities returns all valid severities from least to most urgent
func Severities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}
