package portfolio

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplyDeltaAndBalance(t *testing.T) {
	p := New("alice")
	p.ApplyDelta("weth", d("1.5"))
	p.ApplyDelta("WETH", d("-0.25"))
	p.ApplyDelta("USDC", d("-10"))

	if got := p.Balance("WETH"); !got.Equal(d("1.25")) {
		t.Fatalf("WETH balance = %s, want 1.25", got)
	}
	if got := p.Balance(" usdc "); !got.Equal(d("-10")) {
		t.Fatalf("USDC balance = %s, want -10", got)
	}
	if got := p.Balance("DAI"); !got.IsZero() {
		t.Fatalf("untouched balance = %s, want 0", got)
	}
	if got, want := p.Tokens(), []string{"USDC", "WETH"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("tokens = %v, want %v", got, want)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	p := NewWithBalances("bob", map[string]decimal.Decimal{"WETH": d("2")})
	snap := p.Snapshot()
	snap["WETH"] = d("100")
	if got := p.Balance("WETH"); !got.Equal(d("2")) {
		t.Fatalf("snapshot aliased balances: %s", got)
	}
}

func TestDiff(t *testing.T) {
	p := NewWithBalances("carol", map[string]decimal.Decimal{"WETH": d("2"), "USDC": d("5")})
	before := p.Snapshot()
	p.ApplyDelta("WETH", d("-1"))
	p.ApplyDelta("USDC", d("1800.5"))
	p.ApplyDelta("DAI", d("0"))

	diff := p.Diff(before)
	if len(diff) != 2 {
		t.Fatalf("diff = %v, want two tokens", diff)
	}
	if !diff["WETH"].Equal(d("-1")) || !diff["USDC"].Equal(d("1800.5")) {
		t.Fatalf("diff = %v", diff)
	}

	gone := map[string]decimal.Decimal{"LINK": d("3")}
	if got := p.Diff(gone); !got["LINK"].Equal(d("-3")) {
		t.Fatalf("missing token diff = %v", got)
	}
}

func TestBook(t *testing.T) {
	b := NewBook()
	first := b.Get("lp")
	first.ApplyDelta("WETH", d("1"))
	if second := b.Get("lp"); second != first {
		t.Fatalf("Get returned a different portfolio")
	}
	b.Put(New("lp"))
	if got := b.Get("lp"); !got.Balance("WETH").IsZero() {
		t.Fatalf("Put did not replace portfolio")
	}
}
