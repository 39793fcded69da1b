package models

import "fmt"

// Status is the lifecycle state of a citation record.
//
// The wire values are the French administrative terms used on the paper
// forms; they are stable identifiers, not display strings.
type Status string

const (
	// StatusConstatee: the violation has been observed and recorded.
	StatusConstatee Status = "CONSTATEE"
	// StatusValidee: the citation has been reviewed and validated.
	StatusValidee Status = "VALIDEE"
	// StatusPayee: the fine has been paid in full.
	StatusPayee Status = "PAYEE"
	// StatusContestee: the driver has contested the citation.
	StatusContestee Status = "CONTESTEE"
	// StatusAnnulee: the citation has been cancelled.
	StatusAnnulee Status = "ANNULEE"
	// StatusArchivee: the closed record has been moved out of the active
	// working set. Terminal, reversible only via unarchive.
	StatusArchivee Status = "ARCHIVEE"
)

// transitions is the full legal transition table. Any status pair absent
// here is an illegal transition; there is no other path to mutate Status.
var transitions = map[Status]map[Status]bool{
	StatusConstatee: {
		StatusValidee:   true,
		StatusPayee:     true,
		StatusContestee: true,
		StatusAnnulee:   true,
	},
	StatusValidee: {
		StatusPayee:     true,
		StatusContestee: true,
		StatusAnnulee:   true,
	},
	StatusContestee: {
		StatusAnnulee: true,
	},
	StatusPayee: {
		StatusArchivee: true,
	},
	StatusAnnulee: {
		StatusArchivee: true,
	},
	StatusArchivee: {
		// Unarchive restores the pre-archival status.
		StatusPayee:   true,
		StatusAnnulee: true,
	},
}

// ParseStatus validates a status wire value.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("unknown status: %q", s)
	}
	return st, nil
}

// CanTransitionTo reports whether moving from s to target is legal.
func (s Status) CanTransitionTo(target Status) bool {
	return transitions[s][target]
}

// Open reports whether money is still collectible on a record in this
// status.
func (s Status) Open() bool {
	return s == StatusConstatee || s == StatusValidee
}

// Archivable reports whether a record in this status may be archived.
func (s Status) Archivable() bool {
	return s == StatusPayee || s == StatusAnnulee
}
