package shared

// TransferStatus defines the transfer state machine states
type TransferStatus string

const (
	TransferStatusPrepared  TransferStatus = "PREPARED"
	TransferStatusConfirmed TransferStatus = "CONFIRMED"
	TransferStatusSuccess   TransferStatus = "SUCCESS"
	TransferStatusFailed    TransferStatus = "FAILED"
	TransferStatusTechnical TransferStatus = "TECHNICAL"
	TransferStatusExpired   TransferStatus = "EXPIRED"
	TransferStatusFraud     TransferStatus = "FRAUD"
)

// IsTerminal reports whether no further transition is accepted from the status.
// CONFIRMED is not terminal: the post-provider step (or the outbox dispatcher)
// still moves it to SUCCESS, FAILED or TECHNICAL.
func (s TransferStatus) IsTerminal() bool {
	switch s {
	case TransferStatusSuccess, TransferStatusFailed, TransferStatusTechnical,
		TransferStatusExpired, TransferStatusFraud:
		return true
	}
	return false
}

// OutboxStatus defines normalized provider call outcomes. The same set is used
// for generic-sender status mapping tables and for outbox record states.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusSuccess   OutboxStatus = "SUCCESS"
	OutboxStatusFailed    OutboxStatus = "FAILED"
	OutboxStatusTechnical OutboxStatus = "TECHNICAL"
	OutboxStatusExpired   OutboxStatus = "EXPIRED"
	OutboxStatusFraud     OutboxStatus = "FRAUD"
)

// IsTerminal reports whether a provider outcome settles the transfer.
// PENDING and TECHNICAL leave the transfer eligible for a later retry.
func (s OutboxStatus) IsTerminal() bool {
	switch s {
	case OutboxStatusSuccess, OutboxStatusFailed, OutboxStatusExpired, OutboxStatusFraud:
		return true
	}
	return false
}

// IsFailure reports whether the outcome carries an error description.
func (s OutboxStatus) IsFailure() bool {
	switch s {
	case OutboxStatusFailed, OutboxStatusFraud, OutboxStatusExpired:
		return true
	}
	return false
}

// TransferStatus maps a terminal provider outcome onto the transfer state machine.
func (s OutboxStatus) TransferStatus() TransferStatus {
	switch s {
	case OutboxStatusSuccess:
		return TransferStatusSuccess
	case OutboxStatusExpired:
		return TransferStatusExpired
	case OutboxStatusFraud:
		return TransferStatusFraud
	case OutboxStatusTechnical:
		return TransferStatusTechnical
	default:
		return TransferStatusFailed
	}
}
