package mqtt

// outboxLimit bounds how many messages are held while disconnected.
const outboxLimit = 256

// message is a serialized MQTT message waiting to be sent.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a bounded FIFO of messages published while the broker was
// unreachable. When full, the oldest message is discarded.
// Not safe for concurrent use; the caller must synchronize.
type outbox struct {
	ring    []message
	next    int // slot for the next add
	size    int
	dropped bool // a message was discarded since the last flush
}

func newOutbox(limit int) *outbox {
	return &outbox{ring: make([]message, limit)}
}

// add queues msg. It reports true when this add is the first since the
// last flush to discard a message.
func (o *outbox) add(msg message) bool {
	full := o.size == len(o.ring)
	o.ring[o.next] = msg
	o.next = (o.next + 1) % len(o.ring)
	if !full {
		o.size++
		return false
	}
	first := !o.dropped
	o.dropped = true
	return first
}

// flush removes and returns every queued message, oldest first.
func (o *outbox) flush() []message {
	if o.size == 0 {
		return nil
	}
	out := make([]message, 0, o.size)
	oldest := (o.next - o.size + len(o.ring)) % len(o.ring)
	for i := 0; i < o.size; i++ {
		out = append(out, o.ring[(oldest+i)%len(o.ring)])
	}
	o.next, o.size, o.dropped = 0, 0, false
	return out
}

func (o *outbox) len() int {
	return o.size
}
