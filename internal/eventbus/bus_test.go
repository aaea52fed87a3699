package eventbus

import (
	"fmt"
	"testing"
	"time"
)

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func TestPublishDelivers(t *testing.T) {
	b := NewBus(8, nil)
	defer b.Close()

	ch := b.Subscribe()
	b.Publish("step_start", "executor", map[string]any{"step_id": "T001"})

	ev := waitEvent(t, ch)
	if ev.Type != "step_start" || ev.Source != "executor" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Data["step_id"] != "T001" {
		t.Errorf("unexpected data: %v", ev.Data)
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected timestamp set")
	}
}

func TestSubscribeReplaysRecent(t *testing.T) {
	b := NewBus(8, nil)
	defer b.Close()

	for i := 0; i < 10; i++ {
		b.Publish("tick", "test", map[string]any{"n": i})
	}
	// 等派发 goroutine 处理完
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		probe := b.Subscribe()
		var got []Event
	drain:
		for {
			select {
			case ev := <-probe:
				got = append(got, ev)
			case <-time.After(50 * time.Millisecond):
				break drain
			}
		}
		b.Unsubscribe(probe)
		if len(got) == replayCount {
			if got[0].Data["n"] != 5 || got[len(got)-1].Data["n"] != 9 {
				t.Errorf("expected last %d events, got %v", replayCount, got)
			}
			return
		}
	}
	t.Fatalf("replay never reached %d events", replayCount)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(8, nil)
	defer b.Close()

	ch := b.Subscribe()
	b.Unsubscribe(ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed")
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	b := NewBus(64, nil)
	ch := b.Subscribe()
	for i := 0; i < 3; i++ {
		b.Publish("ev", "test", map[string]any{"n": fmt.Sprint(i)})
	}
	b.Close()

	var count int
	for range ch {
		count++
	}
	if count != 3 {
		t.Errorf("expected 3 events before close, got %d", count)
	}
}
