package eventbus

import "testing"

func TestPublish_DeliversToSubscribersInOrder(t *testing.T) {
	b := New()
	var order []int

	b.Subscribe(TopicJobDelivered, func(e Event) { order = append(order, 1) })
	b.Subscribe(TopicJobDelivered, func(e Event) { order = append(order, 2) })

	b.Publish(Event{Topic: TopicJobDelivered, Data: "lead-1"})

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected handlers called in registration order, got %v", order)
	}
}

func TestPublish_OnlyNotifiesMatchingTopic(t *testing.T) {
	b := New()
	called := false

	b.Subscribe(TopicJobFailed, func(e Event) { called = true })
	b.Publish(Event{Topic: TopicJobDelivered})

	if called {
		t.Fatalf("expected handler on a different topic not to be called")
	}
}

func TestPublish_NoSubscribersIsNoop(t *testing.T) {
	b := New()
	b.Publish(Event{Topic: "nobody-listening"})
}

func TestPublish_PassesEventData(t *testing.T) {
	b := New()
	var got any

	b.Subscribe(TopicAnalyticsInvalidate, func(e Event) { got = e.Data })
	b.Publish(Event{Topic: TopicAnalyticsInvalidate, Data: "lead-42"})

	if got != "lead-42" {
		t.Fatalf("expected handler to receive event data, got %v", got)
	}
}
