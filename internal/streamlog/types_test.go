package streamlog

import (
	"errors"
	"testing"
)

func TestLogOffsetCompare(t *testing.T) {
	p := PartitionOf("orders", 1)
	a := LogOffset{Partition: p, Offset: 3}
	if c, err := a.Compare(a.Next()); err != nil || c != -1 {
		t.Fatalf("compare next: %d %v", c, err)
	}
	if c, err := a.Next().Compare(a); err != nil || c != 1 {
		t.Fatalf("compare prev: %d %v", c, err)
	}
	if c, err := a.Compare(a); err != nil || c != 0 {
		t.Fatalf("compare self: %d %v", c, err)
	}
	other := LogOffset{Partition: PartitionOf("orders", 2), Offset: 3}
	if _, err := a.Compare(other); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("cross partition compare: %v", err)
	}
}

func TestStrings(t *testing.T) {
	if s := PartitionOf("orders", 3).String(); s != "orders-03" {
		t.Fatalf("partition %q", s)
	}
	if s := (LogOffset{Partition: PartitionOf("orders", 0), Offset: 12}).String(); s != "orders-00:+12" {
		t.Fatalf("offset %q", s)
	}
	if s := (LogLag{Lower: 2, Upper: 5}).String(); s != "LogLag(2, 5, lag=3)" {
		t.Fatalf("lag %q", s)
	}
}

func TestLag(t *testing.T) {
	if l := LagOf(7); l.Lower != 0 || l.Upper != 7 || l.Lag() != 7 {
		t.Fatalf("LagOf: %v", l)
	}
	if l := (LogLag{Lower: 9, Upper: 4}); l.Lag() != 0 {
		t.Fatalf("negative lag not clamped: %v", l)
	}
	sum := SumLags(LogLag{Lower: 1, Upper: 3}, LogLag{Lower: 0, Upper: 2}, LagOf(0))
	if sum != (LogLag{Lower: 1, Upper: 5}) {
		t.Fatalf("sum %v", sum)
	}
	if SumLags() != (LogLag{}) {
		t.Fatalf("empty sum")
	}
}

func TestErrorCategories(t *testing.T) {
	for _, err := range []error{ErrUnknownLog, ErrPartitionOutOfRange, ErrTailerAlreadyOpen, ErrForeignFiles, ErrCodecMismatch, ErrInvalidName} {
		if !errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrIllegalState) {
			t.Fatalf("%v should be an argument error", err)
		}
	}
	for _, err := range []error{ErrNotAssigned, ErrClosed} {
		if !errors.Is(err, ErrIllegalState) || errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%v should be a state error", err)
		}
	}
	if IsRebalance(ErrClosed) || !IsRebalance(errors.Join(errors.New("x"), ErrRebalance)) {
		t.Fatalf("IsRebalance")
	}
}
