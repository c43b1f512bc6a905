package signal

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

func collectEnvelopes() (func(Envelope), func() []Envelope) {
	var mu sync.Mutex
	var got []Envelope
	record := func(env Envelope) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, env)
	}
	snapshot := func() []Envelope {
		mu.Lock()
		defer mu.Unlock()
		out := make([]Envelope, len(got))
		copy(out, got)
		return out
	}
	return record, snapshot
}

func waitForCount(t *testing.T, snapshot func() []Envelope, want int) []Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := snapshot(); len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d envelopes, have %d", want, len(snapshot()))
	return nil
}

func TestReplayOnSubscribe(t *testing.T) {
	bus := NewMemoryBus()

	// Sent before bob subscribes; must still arrive, in order.
	bus.SendFrom("alice", "bob", Offer{SDP: "early-offer"})
	bus.SendFrom("alice", "bob", Candidate{})

	record, snapshot := collectEnvelopes()
	cancel, err := bus.Subscribe(context.Background(), "bob", record)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	bus.SendFrom("alice", "bob", Answer{SDP: "late-answer"})

	got := waitForCount(t, snapshot, 3)
	if _, ok := got[0].Msg.(Offer); !ok {
		t.Errorf("got[0] = %T, want the replayed offer first", got[0].Msg)
	}
	if _, ok := got[1].Msg.(Candidate); !ok {
		t.Errorf("got[1] = %T, want the replayed candidate second", got[1].Msg)
	}
	if _, ok := got[2].Msg.(Answer); !ok {
		t.Errorf("got[2] = %T, want the live answer last", got[2].Msg)
	}
	for i, env := range got {
		if env.From != "alice" {
			t.Errorf("got[%d].From = %q, want alice", i, env.From)
		}
	}
}

func TestReplayLargerThanSubscriberQueue(t *testing.T) {
	bus := NewMemoryBus()

	// A backlog deeper than the subscriber queue must replay fully
	// instead of wedging the bus mid-replay.
	total := subscriberQueueSize + 50
	for i := 0; i < total; i++ {
		bus.SendFrom("alice", "bob", Offer{SDP: "offer-" + strconv.Itoa(i)})
	}

	record, snapshot := collectEnvelopes()
	cancel, err := bus.Subscribe(context.Background(), "bob", record)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	// The bus must stay usable for other identities while bob drains.
	if err := bus.SendFrom("alice", "carol", Offer{SDP: "unrelated"}); err != nil {
		t.Fatal(err)
	}

	got := waitForCount(t, snapshot, total)
	for i, env := range got[:total] {
		if offer := env.Msg.(Offer); offer.SDP != "offer-"+strconv.Itoa(i) {
			t.Fatalf("got[%d] = %q, replay out of order", i, offer.SDP)
		}
	}
}

func TestDeliveryIsAddressed(t *testing.T) {
	bus := NewMemoryBus()

	record, snapshot := collectEnvelopes()
	cancel, err := bus.Subscribe(context.Background(), "bob", record)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	bus.SendFrom("alice", "carol", Offer{SDP: "not-for-bob"})
	bus.SendFrom("alice", "bob", Offer{SDP: "for-bob"})

	got := waitForCount(t, snapshot, 1)
	time.Sleep(20 * time.Millisecond)
	if got := snapshot(); len(got) != 1 {
		t.Fatalf("bob received %d envelopes, want only his own", len(got))
	}
	if offer := got[0].Msg.(Offer); offer.SDP != "for-bob" {
		t.Fatalf("bob received %q", offer.SDP)
	}
}

func TestClearDropsOneSender(t *testing.T) {
	bus := NewMemoryBus()

	bus.SendFrom("alice", "bob", Offer{SDP: "from-alice"})
	bus.SendFrom("carol", "bob", Offer{SDP: "from-carol"})

	if err := bus.Clear(context.Background(), "bob", "alice"); err != nil {
		t.Fatal(err)
	}

	record, snapshot := collectEnvelopes()
	cancel, err := bus.Subscribe(context.Background(), "bob", record)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	got := waitForCount(t, snapshot, 1)
	time.Sleep(20 * time.Millisecond)
	if got := snapshot(); len(got) != 1 {
		t.Fatalf("replayed %d envelopes after clear, want 1", len(got))
	}
	if got[0].From != "carol" {
		t.Fatalf("surviving envelope from %q, want carol", got[0].From)
	}
}

func TestRosterWatch(t *testing.T) {
	bus := NewMemoryBus()

	var mu sync.Mutex
	var latest []Participant
	var updates int
	cancel, err := bus.Watch(context.Background(), func(r []Participant) {
		mu.Lock()
		defer mu.Unlock()
		latest = r
		updates++
	})
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	waitRoster := func(what string, cond func([]Participant) bool) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			ok := cond(latest)
			mu.Unlock()
			if ok {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("timed out waiting for %s, roster = %+v", what, latest)
	}

	waitRoster("initial empty snapshot", func(r []Participant) bool {
		return updates >= 1 && len(r) == 0
	})

	bus.Join(context.Background(), Participant{ID: "bob", Name: "Bob", Online: true})
	bus.Join(context.Background(), Participant{ID: "alice", Name: "Alice", Online: true})
	waitRoster("both joined, sorted by ID", func(r []Participant) bool {
		return len(r) == 2 && r[0].ID == "alice" && r[1].ID == "bob"
	})

	bus.Update(context.Background(), Participant{ID: "alice", Name: "Alice", Muted: true, Online: true})
	waitRoster("alice muted", func(r []Participant) bool {
		return len(r) == 2 && r[0].Muted
	})

	bus.Leave(context.Background(), "bob")
	waitRoster("bob gone", func(r []Participant) bool {
		return len(r) == 1 && r[0].ID == "alice"
	})
}

func TestClosedBusRejectsOperations(t *testing.T) {
	bus := NewMemoryBus()
	bus.Close()

	if err := bus.SendFrom("alice", "bob", Offer{}); !errors.Is(err, ErrBusClosed) {
		t.Errorf("SendFrom on closed bus = %v, want ErrBusClosed", err)
	}
	if _, err := bus.Subscribe(context.Background(), "bob", func(Envelope) {}); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Subscribe on closed bus = %v, want ErrBusClosed", err)
	}
	if _, err := bus.Watch(context.Background(), func([]Participant) {}); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Watch on closed bus = %v, want ErrBusClosed", err)
	}
}

func TestMessageWireRoundTrip(t *testing.T) {
	for _, msg := range []Message{
		Offer{SDP: "v=0 offer"},
		Answer{SDP: "v=0 answer"},
	} {
		data, err := EncodeMessage(msg)
		if err != nil {
			t.Fatalf("encoding %T: %v", msg, err)
		}
		decoded, err := DecodeMessage(data)
		if err != nil {
			t.Fatalf("decoding %T: %v", msg, err)
		}
		if decoded != msg {
			t.Errorf("round trip changed %T: %+v -> %+v", msg, msg, decoded)
		}
	}

	data, err := EncodeMessage(Candidate{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeMessage(data); err != nil {
		t.Fatalf("decoding candidate: %v", err)
	}

	if _, err := DecodeMessage([]byte(`{"type":"bogus"}`)); err == nil {
		t.Error("decoding an unknown type should fail")
	}
}
