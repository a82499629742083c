package enums

// ChargeStatus is the state of one payment row. Rows start pending and move
// to exactly one terminal state.
type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusSucceeded ChargeStatus = "succeeded"
	ChargeStatusFailed    ChargeStatus = "failed"
)

var chargeStatuses = []ChargeStatus{ChargeStatusPending, ChargeStatusSucceeded, ChargeStatusFailed}

func (c ChargeStatus) String() string { return string(c) }

func (c ChargeStatus) IsValid() bool { return oneOf(chargeStatuses, c) }

func (c ChargeStatus) IsTerminal() bool {
	return c == ChargeStatusSucceeded || c == ChargeStatusFailed
}
