package mqtt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func pushSeq(rb *ringBuffer, from, to int) (reported int) {
	for i := from; i < to; i++ {
		if rb.push(bufferedMsg{topic: TopicSamples, payload: []byte{byte(i)}}) {
			reported++
		}
	}
	return reported
}

func payloads(msgs []bufferedMsg) []byte {
	var out []byte
	for _, m := range msgs {
		out = append(out, m.payload[0])
	}
	return out
}

func TestRingBufferDrain(t *testing.T) {
	tests := []struct {
		name        string
		capacity    int
		pushed      int
		want        []byte
		wantDropped int
	}{
		{"empty", 4, 0, nil, 0},
		{"partial", 4, 3, []byte{0, 1, 2}, 0},
		{"full", 4, 4, []byte{0, 1, 2, 3}, 0},
		{"overflow keeps newest", 4, 7, []byte{3, 4, 5, 6}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := newRingBuffer(tt.capacity)
			pushSeq(rb, 0, tt.pushed)
			if rb.len() != len(tt.want) {
				t.Errorf("len: got %d, want %d", rb.len(), len(tt.want))
			}

			got, dropped := rb.drainAll()
			if diff := cmp.Diff(tt.want, payloads(got)); diff != "" {
				t.Errorf("drained payloads (-want +got):\n%s", diff)
			}
			if dropped != tt.wantDropped {
				t.Errorf("dropped: got %d, want %d", dropped, tt.wantDropped)
			}
			if rb.len() != 0 {
				t.Errorf("len after drain: got %d, want 0", rb.len())
			}
		})
	}
}

func TestRingBufferReusedAfterDrain(t *testing.T) {
	rb := newRingBuffer(3)
	pushSeq(rb, 0, 2)
	rb.drainAll()

	pushSeq(rb, 20, 25)
	got, dropped := rb.drainAll()
	if diff := cmp.Diff([]byte{22, 23, 24}, payloads(got)); diff != "" {
		t.Errorf("second cycle (-want +got):\n%s", diff)
	}
	if dropped != 2 {
		t.Errorf("dropped: got %d, want 2", dropped)
	}
}

func TestRingBufferReportsFirstDropOncePerOutage(t *testing.T) {
	rb := newRingBuffer(2)
	if n := pushSeq(rb, 0, 6); n != 1 {
		t.Errorf("first outage: overflow reported %d times, want 1", n)
	}
	rb.drainAll()
	if n := pushSeq(rb, 0, 3); n != 1 {
		t.Errorf("second outage: overflow reported %d times, want 1", n)
	}
}

func TestRingBufferKeepsMessageOptions(t *testing.T) {
	rb := newRingBuffer(2)
	rb.push(bufferedMsg{
		topic:    TopicSystem,
		payload:  []byte(`{"status":{"event":"OFFLINE"}}`),
		qos:      1,
		retained: true,
	})

	got, _ := rb.drainAll()
	if len(got) != 1 {
		t.Fatalf("drained: got %d, want 1", len(got))
	}
	m := got[0]
	if m.topic != TopicSystem || m.qos != 1 || !m.retained {
		t.Errorf("options: got topic=%s qos=%d retained=%v", m.topic, m.qos, m.retained)
	}
	if string(m.payload) != `{"status":{"event":"OFFLINE"}}` {
		t.Errorf("payload: got %s", m.payload)
	}
}
