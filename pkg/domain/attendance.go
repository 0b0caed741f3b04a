package domain

// AttendanceStatus is the outcome recorded for one person at one program.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
)

func (s AttendanceStatus) IsValid() bool {
	return s == AttendancePresent || s == AttendanceAbsent
}

func (s AttendanceStatus) IsPresent() bool {
	return s == AttendancePresent
}

// StatusFromPresent maps a present flag onto a status.
func StatusFromPresent(present bool) AttendanceStatus {
	if present {
		return AttendancePresent
	}
	return AttendanceAbsent
}
