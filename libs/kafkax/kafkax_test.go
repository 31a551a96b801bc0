package kafkax

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestSplitBrokers(t *testing.T) {
	brokers := SplitBrokers(" kafka-1:9092 , ,kafka-2:9092,")
	if len(brokers) != 2 {
		t.Fatalf("expected 2 brokers, got %v", brokers)
	}
	if brokers[0] != "kafka-1:9092" || brokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", brokers)
	}
	if got := SplitBrokers(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestExtractEventMeta(t *testing.T) {
	msg := kafka.Message{
		Topic: "meeting.booked.v1",
		Key:   []byte("fallback-id"),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte("evt-1")},
			{Key: "event_type", Value: []byte("meeting.booked.v1")},
		},
	}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != "meeting.booked.v1" {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	bare := kafka.Message{Topic: "meeting.cancelled.v1", Key: []byte("k-2")}
	meta = ExtractEventMeta(bare)
	if meta.EventID != "k-2" {
		t.Fatalf("expected key fallback, got %q", meta.EventID)
	}
	if meta.EventType != "meeting.cancelled.v1" {
		t.Fatalf("expected topic fallback, got %q", meta.EventType)
	}
}

func TestHeaderCarrierSetAppendsAndOverwrites(t *testing.T) {
	c := headerCarrier{}
	c.Set("traceparent", "00-aaa-bbb-01")
	c.Set("traceparent", "00-ccc-ddd-01")
	c.Set("tracestate", "vendor=1")

	if len(c.headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(c.headers))
	}
	if got := c.Get("traceparent"); got != "00-ccc-ddd-01" {
		t.Fatalf("expected overwrite, got %q", got)
	}
	if len(c.Keys()) != 2 {
		t.Fatalf("unexpected keys: %v", c.Keys())
	}
}
