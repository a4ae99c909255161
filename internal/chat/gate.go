package chat

import (
	"context"
	"fmt"
	"time"
)

// BanChecker is the slice of the ban store the gate needs. The temp-ban check
// performs lazy expiry as a side effect: an expired record is deleted and the
// address is admitted, all within one atomic store operation.
type BanChecker interface {
	IsPermanentlyBanned(ctx context.Context, ip string) (bool, error)
	CheckTempBan(ctx context.Context, ip string) (banned bool, remaining time.Duration, err error)
}

// Decision is the outcome of an admission check. Notice is the user-facing
// rejection text, set only when Allowed is false.
type Decision struct {
	Allowed bool
	Notice  string
}

// Gate decides whether a connecting (or sending) address may participate.
// Permanent bans are checked first, then temporary suspensions.
type Gate struct {
	bans BanChecker
}

// NewGate creates a Gate backed by the given ban store.
func NewGate(bans BanChecker) *Gate {
	return &Gate{bans: bans}
}

// Admit runs the ban checks for an address. The checks complete (including
// the store round trips) before the caller may send anything to the client.
func (g *Gate) Admit(ctx context.Context, ip string) (Decision, error) {
	banned, err := g.bans.IsPermanentlyBanned(ctx, ip)
	if err != nil {
		return Decision{}, fmt.Errorf("gate: permanent ban check: %w", err)
	}
	if banned {
		return Decision{Notice: "Has sido baneado permanentemente."}, nil
	}

	suspended, remaining, err := g.bans.CheckTempBan(ctx, ip)
	if err != nil {
		return Decision{}, fmt.Errorf("gate: temp ban check: %w", err)
	}
	if suspended {
		mins := remainingMinutes(remaining)
		return Decision{Notice: fmt.Sprintf("Suspendido temporalmente. Tiempo restante: %d minutos.", mins)}, nil
	}

	return Decision{Allowed: true}, nil
}

// remainingMinutes converts a remaining suspension to whole minutes,
// rounding up so "30 seconds left" reads as 1 minute, never 0.
func remainingMinutes(d time.Duration) int64 {
	ms := d.Milliseconds()
	return (ms + 59999) / 60000
}
