// Package notify holds the consumer-side rules for payout notifications:
// who sees which notification and who may acknowledge a payment.
//
// Settlement broadcasts notifications without filtering; filtering and
// dismissal happen here, per viewer, and never delete anything.
package notify

import (
	"errors"

	"github.com/atmx/league-engine/internal/model"
)

var (
	// ErrNotPayer is returned when someone other than the owing member
	// tries to acknowledge a payment.
	ErrNotPayer = errors.New("notify: only the owing member can acknowledge a payment")
)

// Involves reports whether userID is the winner, a paid finisher or an
// owing member of n.
func Involves(n *model.PayoutNotification, userID string) bool {
	if n.WinnerUserID == userID {
		return true
	}
	for _, p := range n.WinnerPayouts {
		if p.UserID == userID {
			return true
		}
	}
	for _, p := range n.MemberPayments {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Visible returns the notifications viewer should see: those involving the
// viewer and not in the viewer's dismissed set. Order is preserved.
func Visible(viewerID string, all []model.PayoutNotification, dismissed map[string]bool) []model.PayoutNotification {
	out := []model.PayoutNotification{}
	for i := range all {
		n := &all[i]
		if dismissed[n.ID] || !Involves(n, viewerID) {
			continue
		}
		out = append(out, *n)
	}
	return out
}

// Acknowledge marks actorID's own payment as acknowledged. It reports
// whether anything changed; acknowledging twice is a no-op.
func Acknowledge(n *model.PayoutNotification, actorID string) (bool, error) {
	for i := range n.MemberPayments {
		p := &n.MemberPayments[i]
		if p.UserID != actorID {
			continue
		}
		if p.PaymentStatus == model.PaymentAcknowledged {
			return false, nil
		}
		p.PaymentStatus = model.PaymentAcknowledged
		return true, nil
	}
	return false, ErrNotPayer
}

// Outstanding returns the payments still pending.
func Outstanding(n *model.PayoutNotification) []model.MemberPayment {
	var out []model.MemberPayment
	for _, p := range n.MemberPayments {
		if p.PaymentStatus == model.PaymentPending {
			out = append(out, p)
		}
	}
	return out
}
