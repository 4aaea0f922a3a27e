package creditfeed

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cyruslab/pedalpay/src/model"
)

func tick(session, owner string, amount string, duration int64, emitted time.Time) *WorkoutTick {
	return &WorkoutTick{
		SessionID:   session,
		OwnerID:     owner,
		Type:        model.RewardTypeToken,
		Amount:      decimal.RequireFromString(amount),
		DurationSec: duration,
		EmittedAt:   emitted.Unix(),
	}
}

func TestFoldTicksAccumulatesPerSession(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	ticks := []*WorkoutTick{
		tick("s1", "owner-a", "0.5", 60, base),
		tick("s1", "owner-a", "0.25", 60, base.Add(time.Minute)),
		tick("s2", "owner-b", "1.75", 120, base.Add(2*time.Minute)),
		tick("s1", "owner-a", "0.25", 30, base.Add(3*time.Minute)),
	}

	credits := FoldTicks(ticks)
	if len(credits) != 2 {
		t.Fatalf("expected 2 credits, got %d", len(credits))
	}

	byOwner := map[string]*model.WorkoutCredit{}
	for _, c := range credits {
		byOwner[c.OwnerID] = c
	}

	a := byOwner["owner-a"]
	if !a.Amount.Equal(decimal.RequireFromString("1")) {
		t.Errorf("owner-a amount = %s, want 1", a.Amount)
	}
	if a.DurationSec != 150 {
		t.Errorf("owner-a duration = %d, want 150", a.DurationSec)
	}
	if !a.CreatedAt.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("owner-a credit dated %s, want last tick time", a.CreatedAt)
	}
	if a.Status != model.CreditStatusUnsettled {
		t.Errorf("owner-a status = %s, want unsettled", a.Status)
	}

	b := byOwner["owner-b"]
	if !b.Amount.Equal(decimal.RequireFromString("1.75")) {
		t.Errorf("owner-b amount = %s, want 1.75", b.Amount)
	}
}

func TestTickRoundTrip(t *testing.T) {
	in := tick("s9", "owner-z", "2.125", 90, time.Unix(1700000000, 0))
	encoded, err := in.Encode()
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeTick(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if out.SessionID != in.SessionID || out.OwnerID != in.OwnerID ||
		!out.Amount.Equal(in.Amount) || out.DurationSec != in.DurationSec ||
		out.EmittedAt != in.EmittedAt {
		t.Errorf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestDecodeTickRejectsGarbage(t *testing.T) {
	if _, err := DecodeTick("not json"); err == nil {
		t.Fatal("expected decode error")
	}
}
