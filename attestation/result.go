package attestation

// ValidationCode is the outcome of running an attestation through
// gossip validation.
type ValidationCode int

const (
	// Accept forwards the attestation to fork-choice and to local
	// subscribers.
	Accept ValidationCode = iota
	// SaveForFuture forwards to fork-choice anyway (which will park it)
	// but does not gossip-retransmit.
	SaveForFuture
	// Ignore drops the attestation silently, without re-gossiping.
	Ignore
	// Reject drops the attestation and penalizes its source.
	Reject
)

func (c ValidationCode) String() string {
	switch c {
	case Accept:
		return "ACCEPT"
	case SaveForFuture:
		return "SAVE_FOR_FUTURE"
	case Ignore:
		return "IGNORE"
	case Reject:
		return "REJECT"
	default:
		return "UNKNOWN"
	}
}

// InternalValidationResult is the tagged result of gossip validation,
// carrying a reason when the code is Reject.
type InternalValidationResult struct {
	Code   ValidationCode
	Reason string
}

// IsAcceptOrSaveForFuture reports whether the result should still be
// forwarded to fork choice.
func (r InternalValidationResult) IsAcceptOrSaveForFuture() bool {
	return r.Code == Accept || r.Code == SaveForFuture
}

// ProcessingStatus is the outcome of applying an attestation to the
// fork-choice vote store.
type ProcessingStatus int

const (
	// Successful means the attestation was applied to the vote store.
	Successful ProcessingStatus = iota
	// UnknownBlock means the attestation's beacon block root is not yet
	// known locally; it belongs in the Pending waiting area.
	UnknownBlock
	// DeferForkChoiceProcessing means fork-choice asked to re-evaluate
	// this attestation on the next slot tick; it belongs in Deferred.
	DeferForkChoiceProcessing
	// SavedForFuture means the attestation's slot is ahead of the local
	// clock; it belongs in the Future waiting area.
	SavedForFuture
	// Invalid means the attestation was rejected by fork-choice.
	Invalid
)

func (s ProcessingStatus) String() string {
	switch s {
	case Successful:
		return "SUCCESSFUL"
	case UnknownBlock:
		return "UNKNOWN_BLOCK"
	case DeferForkChoiceProcessing:
		return "DEFER_FORK_CHOICE_PROCESSING"
	case SavedForFuture:
		return "SAVED_FOR_FUTURE"
	case Invalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// ProcessingResult is the tagged result of applying an attestation.
type ProcessingResult struct {
	Status ProcessingStatus
	Reason string
}

// IfInvalid calls fn with the rejection reason when the result is
// Invalid, without propagating an error across the gateway boundary.
func (r ProcessingResult) IfInvalid(fn func(reason string)) {
	if r.Status == Invalid {
		fn(r.Reason)
	}
}
