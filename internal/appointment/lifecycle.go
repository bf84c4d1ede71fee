package appointment

import "fmt"

type party int

const (
	partyAdmin party = iota
	partyOwningPatient
	partyAssignedDentist
)

// transitions is the only place that decides who may move an appointment where.
//
//	PENDING   -> CONFIRMED             admin
//	PENDING   -> CANCELLED             owning patient, admin
//	CONFIRMED -> COMPLETED | NO_SHOW   dentist
//	CONFIRMED -> CANCELLED             owning patient, admin
//
// Terminal statuses have no outgoing edges.
var transitions = map[Status]map[Status][]party{
	StatusPending: {
		StatusConfirmed: {partyAdmin},
		StatusCancelled: {partyOwningPatient, partyAdmin},
	},
	StatusConfirmed: {
		StatusCompleted: {partyAssignedDentist},
		StatusNoShow:    {partyAssignedDentist},
		StatusCancelled: {partyOwningPatient, partyAdmin},
	},
}

func (p party) matches(a *Appointment, actor Actor) bool {
	switch p {
	case partyAdmin:
		return actor.Role == RoleAdmin
	case partyOwningPatient:
		return actor.Role == RolePatient && actor.UserID == a.PatientID
	case partyAssignedDentist:
		return actor.Role == RoleDentist && actor.UserID == a.DentistID
	}
	return false
}

// CheckTransition validates moving a to the target status on behalf of actor.
// It returns ErrInvalidTransition when the edge does not exist and ErrForbidden
// when the edge exists but actor may not take it.
func CheckTransition(a *Appointment, to Status, actor Actor) error {
	if a.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, a.Status)
	}
	parties, ok := transitions[a.Status][to]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}
	for _, p := range parties {
		if p.matches(a, actor) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not move appointment %s to %s", ErrForbidden, actor.Role, a.Status, to)
}

var paymentTransitions = map[PaymentStatus]PaymentStatus{
	PaymentPending: PaymentPaid,
	PaymentPaid:    PaymentRefunded,
}

// CheckPaymentTransition validates a payment status move. Only admins move payments.
func CheckPaymentTransition(from, to PaymentStatus, actor Actor) error {
	next, ok := paymentTransitions[from]
	if !ok || next != to {
		return fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, from, to)
	}
	if actor.Role != RoleAdmin {
		return fmt.Errorf("%w: only admins update payment status", ErrForbidden)
	}
	return nil
}
