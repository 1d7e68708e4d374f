package services

import "escrowdesk/internal/models"

// Action names a requested deal transition.
type Action string

const (
	ActionCreate         Action = "create"
	ActionConfirmEscrow  Action = "confirm_escrow"
	ActionConfirmPayment Action = "confirm_payment"
	ActionRelease        Action = "release"
	ActionCancel         Action = "cancel"
	ActionRaiseDispute   Action = "raise_dispute"
	ActionResolveDispute Action = "resolve_dispute"
	ActionExpire         Action = "expire"
)

type edge struct {
	from models.DealStatus
	to   models.DealStatus
}

var transitionTable = map[Action][]edge{
	ActionConfirmEscrow:  {{models.DealPending, models.DealEscrowed}},
	ActionCancel:         {{models.DealPending, models.DealCancelled}},
	ActionConfirmPayment: {{models.DealEscrowed, models.DealPaid}},
	ActionRaiseDispute:   {{models.DealEscrowed, models.DealDisputed}, {models.DealPaid, models.DealDisputed}},
	ActionRelease:        {{models.DealPaid, models.DealReleased}},
	ActionResolveDispute: {{models.DealDisputed, models.DealReleased}, {models.DealDisputed, models.DealCancelled}},
	ActionExpire: {
		{models.DealPending, models.DealExpired},
		{models.DealEscrowed, models.DealExpired},
		{models.DealPaid, models.DealExpired},
	},
}

// targetStatus is the status action leads to. Only resolve_dispute depends on outcome.
func targetStatus(action Action, outcome models.DealStatus) (models.DealStatus, bool) {
	switch action {
	case ActionConfirmEscrow:
		return models.DealEscrowed, true
	case ActionConfirmPayment:
		return models.DealPaid, true
	case ActionRelease:
		return models.DealReleased, true
	case ActionCancel:
		return models.DealCancelled, true
	case ActionRaiseDispute:
		return models.DealDisputed, true
	case ActionExpire:
		return models.DealExpired, true
	case ActionResolveDispute:
		if outcome == models.DealReleased || outcome == models.DealCancelled {
			return outcome, true
		}
	}
	return "", false
}

func allowed(action Action, from, to models.DealStatus) bool {
	for _, e := range transitionTable[action] {
		if e.from == from && e.to == to {
			return true
		}
	}
	return false
}
