package series

import (
	"errors"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Append / Revise
// ────────────────────────────────────────────────────────────

func TestSeries_AppendRevise(t *testing.T) {
	s := New("close")
	for i, v := range []float64{1, 2, 3} {
		if err := s.Append(smp(i, v)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := s.Revise(smp(2, 30)); err != nil {
		t.Fatalf("revise: %v", err)
	}
	assertValues(t, "close", s.Values(), []float64{1, 2, 30})

	last, ok := s.Last()
	if !ok || last.Value != 30 || !last.TS.Equal(at(2)) {
		t.Errorf("last = %+v, %v", last, ok)
	}
	if !s.Hot() {
		t.Error("non-empty root series should be hot")
	}
}

func TestSeries_EqualTimestampsAllowed(t *testing.T) {
	s := New("x")
	if err := s.Append(smp(0, 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(smp(0, 2)); err != nil {
		t.Errorf("equal timestamp append: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("len = %d, want 2", s.Len())
	}
}

func TestSeries_OutOfOrderRejected(t *testing.T) {
	s := New("x")
	_ = s.Append(smp(5, 1))
	_ = s.Append(smp(6, 2))

	notified := 0
	s.Subscribe(func(Event) { notified++ })

	err := s.Append(smp(3, 99))
	var ooo *OutOfOrderError
	if !errors.As(err, &ooo) {
		t.Fatalf("expected OutOfOrderError, got %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("len = %d, want 2", s.Len())
	}
	if last, _ := s.Last(); last.Value != 2 {
		t.Errorf("tail = %v, want 2", last.Value)
	}
	if notified != 0 {
		t.Errorf("rejected append notified %d subscribers", notified)
	}
}

func TestSeries_ReviseBeforePreviousRejected(t *testing.T) {
	s := New("x")
	_ = s.Append(smp(5, 1))
	_ = s.Append(smp(6, 2))

	var ooo *OutOfOrderError
	if err := s.Revise(smp(4, 7)); !errors.As(err, &ooo) {
		t.Fatalf("expected OutOfOrderError, got %v", err)
	}
	// Revising to the previous element's timestamp is fine.
	if err := s.Revise(smp(5, 7)); err != nil {
		t.Errorf("revise to previous ts: %v", err)
	}
	assertValues(t, "x", s.Values(), []float64{1, 7})
}

func TestSeries_ReviseEmpty(t *testing.T) {
	s := New("x")
	var empty *EmptySeriesError
	if err := s.Revise(smp(0, 1)); !errors.As(err, &empty) {
		t.Fatalf("expected EmptySeriesError, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("len = %d, want 0", s.Len())
	}
}

// ────────────────────────────────────────────────────────────
// Subscriptions
// ────────────────────────────────────────────────────────────

func TestSeries_NotifyOrderAndKind(t *testing.T) {
	s := New("x")
	var got []string
	s.Subscribe(func(ev Event) { got = append(got, "a:"+ev.Kind.String()) })
	s.Subscribe(func(ev Event) { got = append(got, "b:"+ev.Kind.String()) })

	_ = s.Append(smp(0, 1))
	_ = s.Revise(smp(0, 2))

	want := []string{"a:append", "b:append", "a:revise", "b:revise"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSeries_EventCarriesTail(t *testing.T) {
	s := New("x")
	var last Event
	s.Subscribe(func(ev Event) { last = ev })
	_ = s.Append(smp(0, 1))
	_ = s.Append(smp(1, 2))
	if last.Index != 1 || last.Sample.Value != 2 || last.Kind != KindAppend {
		t.Errorf("event = %+v", last)
	}
}

func TestSubscription_Unsubscribe(t *testing.T) {
	s := New("x")
	n := 0
	sub := s.Subscribe(func(Event) { n++ })
	_ = s.Append(smp(0, 1))
	sub.Unsubscribe()
	sub.Unsubscribe()
	_ = s.Append(smp(1, 2))

	if n != 1 {
		t.Errorf("deliveries = %d, want 1", n)
	}
	if sub.Active() {
		t.Error("subscription still active")
	}
	if s.Subscribers() != 0 {
		t.Errorf("subscribers = %d, want 0", s.Subscribers())
	}
}

func TestSubscription_UnsubscribeDuringDispatch(t *testing.T) {
	s := New("x")
	var order []string
	var subB *Subscription

	s.Subscribe(func(Event) {
		order = append(order, "a")
		subB.Unsubscribe()
	})
	subB = s.Subscribe(func(Event) { order = append(order, "b") })
	s.Subscribe(func(Event) { order = append(order, "c") })

	_ = s.Append(smp(0, 1))
	_ = s.Append(smp(1, 2))

	want := []string{"a", "c", "a", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestSubscription_SelfUnsubscribeDuringDispatch(t *testing.T) {
	s := New("x")
	n, m := 0, 0
	var self *Subscription
	self = s.Subscribe(func(Event) {
		n++
		self.Unsubscribe()
	})
	s.Subscribe(func(Event) { m++ })

	_ = s.Append(smp(0, 1))
	_ = s.Append(smp(1, 2))
	if n != 1 || m != 2 {
		t.Errorf("n=%d m=%d, want 1 and 2", n, m)
	}
}

func TestSubscription_SubscribeDuringDispatch(t *testing.T) {
	s := New("x")
	late := 0
	added := false
	s.Subscribe(func(Event) {
		if !added {
			added = true
			s.Subscribe(func(Event) { late++ })
		}
	})

	_ = s.Append(smp(0, 1))
	if late != 0 {
		t.Errorf("late subscriber saw the event it was added during")
	}
	_ = s.Append(smp(1, 2))
	if late != 1 {
		t.Errorf("late deliveries = %d, want 1", late)
	}
}

func TestSubscription_NilSafe(t *testing.T) {
	var sub *Subscription
	sub.Unsubscribe()
	if sub.Active() {
		t.Error("nil subscription reported active")
	}
}

// ────────────────────────────────────────────────────────────
// Cell
// ────────────────────────────────────────────────────────────

func TestCell_RollbackUsesCommitted(t *testing.T) {
	var c Cell[float64]
	add := func(v float64) func(float64) (float64, float64) {
		return func(s float64) (float64, float64) { return s + v, s + v }
	}

	c.Step(false, add(1))         // committed 0, candidate 1
	c.Step(false, add(2))         // committed 1, candidate 3
	out := c.Step(true, add(10))  // committed 1, candidate 11
	out2 := c.Step(true, add(10)) // idempotent

	if out != 11 || out2 != 11 {
		t.Errorf("revise outputs = %v, %v; want 11", out, out2)
	}
	if c.Committed() != 1 || c.Candidate() != 11 {
		t.Errorf("committed=%v candidate=%v", c.Committed(), c.Candidate())
	}

	c.Step(false, add(5))
	if c.Committed() != 11 || c.Candidate() != 16 {
		t.Errorf("after promote: committed=%v candidate=%v", c.Committed(), c.Candidate())
	}
}
