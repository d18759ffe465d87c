package treasury

import (
	"strconv"

	"arbitrationd/core/events"
	"arbitrationd/crypto"
)

const (
	eventTypeTreasuryPolicySet = "treasury.policy_set"
	eventTypeTreasuryRegistered = "treasury.registered"
	eventTypePayoutQueued       = "treasury.payout_queued"
	eventTypePayoutChallenged   = "treasury.payout_challenged"
	eventTypeRulingRecorded     = "treasury.ruling_recorded"
	eventTypeRulingAppealed     = "treasury.ruling_appealed"
	eventTypeRulingFinalized    = "treasury.ruling_finalized"
	eventTypePayoutReleased     = "treasury.payout_released"
	eventTypePayoutDenied       = "treasury.payout_denied"
	eventTypePayoutCancelled    = "treasury.payout_cancelled"
	eventTypeCustodyExited      = "treasury.custody_exited"
)

// baseEvent implements events.Event for every event in this package.
type baseEvent struct {
	eventType string
	attrs     map[string]string
}

func (e baseEvent) EventType() string { return e.eventType }

// Attributes exposes the flattened string map for RPC/log consumers.
func (e baseEvent) Attributes() map[string]string { return e.attrs }

func newEvent(eventType string, attrs map[string]string) events.Event {
	return baseEvent{eventType: eventType, attrs: attrs}
}

func u64s(v uint64) string { return strconv.FormatUint(v, 10) }
func i64s(v int64) string  { return strconv.FormatInt(v, 10) }
func u8s(v uint8) string   { return strconv.FormatUint(uint64(v), 10) }
func bools(v bool) string  { return strconv.FormatBool(v) }

func NewTreasuryPolicySetEvent(policy crypto.Address, authority, resolver crypto.Address, disputeWindow, challengeBond uint64, maxAppealRounds uint8) events.Event {
	return newEvent(eventTypeTreasuryPolicySet, map[string]string{
		"safe_policy":       policy.String(),
		"authority":         authority.String(),
		"resolver":          resolver.String(),
		"dispute_window":    u64s(disputeWindow),
		"challenge_bond":    u64s(challengeBond),
		"max_appeal_rounds": u8s(maxAppealRounds),
	})
}

func NewTreasuryRegisteredEvent(safe crypto.Address, mode TreasuryMode) events.Event {
	return newEvent(eventTypeTreasuryRegistered, map[string]string{
		"safe":        safe.String(),
		"mode":        u8s(uint8(mode)),
		"is_enforced": bools(mode == TreasuryModeSafeCustodied),
	})
}

func NewPayoutQueuedEvent(p Payout) events.Event {
	attrs := map[string]string{
		"safe":             p.Safe.String(),
		"payout_id":        u64s(p.PayoutID),
		"asset_type":       u8s(uint8(p.AssetType)),
		"recipient":        p.Recipient.String(),
		"amount":           u64s(p.Amount),
		"dispute_deadline": i64s(p.DisputeDeadline),
	}
	if p.Mint != nil {
		attrs["mint"] = p.Mint.String()
	}
	return newEvent(eventTypePayoutQueued, attrs)
}

func NewPayoutChallengedEvent(safe crypto.Address, payoutID uint64, challenger crypto.Address, bondAmount uint64, round uint8) events.Event {
	return newEvent(eventTypePayoutChallenged, map[string]string{
		"safe":        safe.String(),
		"payout_id":   u64s(payoutID),
		"challenger":  challenger.String(),
		"bond_amount": u64s(bondAmount),
		"round":       u8s(round),
	})
}

func NewRulingRecordedEvent(safe crypto.Address, payoutID uint64, round uint8, outcome RulingOutcome, isFinal bool) events.Event {
	return newEvent(eventTypeRulingRecorded, map[string]string{
		"safe":      safe.String(),
		"payout_id": u64s(payoutID),
		"round":     u8s(round),
		"outcome":   u8s(uint8(outcome)),
		"is_final":  bools(isFinal),
	})
}

func NewRulingAppealedEvent(safe crypto.Address, payoutID uint64, newRound uint8, bondAmount uint64) events.Event {
	return newEvent(eventTypeRulingAppealed, map[string]string{
		"safe":        safe.String(),
		"payout_id":   u64s(payoutID),
		"new_round":   u8s(newRound),
		"bond_amount": u64s(bondAmount),
	})
}

func NewRulingFinalizedEvent(safe crypto.Address, payoutID uint64, round uint8, outcome RulingOutcome) events.Event {
	return newEvent(eventTypeRulingFinalized, map[string]string{
		"safe":      safe.String(),
		"payout_id": u64s(payoutID),
		"round":     u8s(round),
		"outcome":   u8s(uint8(outcome)),
	})
}

func NewPayoutReleasedEvent(safe crypto.Address, payoutID uint64, recipient crypto.Address, amount uint64, assetType AssetType) events.Event {
	return newEvent(eventTypePayoutReleased, map[string]string{
		"safe":       safe.String(),
		"payout_id":  u64s(payoutID),
		"recipient":  recipient.String(),
		"amount":     u64s(amount),
		"asset_type": u8s(uint8(assetType)),
	})
}

func NewPayoutDeniedEvent(safe crypto.Address, payoutID uint64) events.Event {
	return newEvent(eventTypePayoutDenied, map[string]string{
		"safe":      safe.String(),
		"payout_id": u64s(payoutID),
	})
}

func NewPayoutCancelledEvent(safe crypto.Address, payoutID uint64) events.Event {
	return newEvent(eventTypePayoutCancelled, map[string]string{
		"safe":      safe.String(),
		"payout_id": u64s(payoutID),
	})
}

func NewCustodyExitedEvent(safe crypto.Address, assetType AssetType, recipient crypto.Address) events.Event {
	return newEvent(eventTypeCustodyExited, map[string]string{
		"safe":       safe.String(),
		"asset_type": u8s(uint8(assetType)),
		"recipient":  recipient.String(),
	})
}
