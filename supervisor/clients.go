package supervisor

import "sync"

// MaxClients is the client table's fixed capacity (spec.md §3, literal
// value fixed by SPEC_FULL.md §D.3).
const MaxClients = 64

// Client is one registered helper's slot (spec.md §3 RunnerClient).
type Client struct {
	NotifyFD int // -1 if the helper registered without a notify FD
	PID      uint32
	Agent    string
	Binary   string
}

// clientTable owns every occupied slot; only the supervisor's own
// goroutine mutates it during normal operation, but the mutex lets tests
// and the shutdown path inspect it safely from another goroutine.
type clientTable struct {
	mu    sync.Mutex
	slots [MaxClients]*Client
}

// add installs c in the first free slot and returns its index, or false
// if the table is full (spec.md §4.2.1: "If the table is full, fail and
// close the connection").
func (t *clientTable) add(c *Client) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s == nil {
			t.slots[i] = c
			return i, true
		}
	}
	return -1, false
}

// remove drops the slot at index, closing its notify FD if present.
func (t *clientTable) remove(index int) {
	t.mu.Lock()
	c := t.slots[index]
	t.slots[index] = nil
	t.mu.Unlock()

	if c != nil && c.NotifyFD >= 0 {
		_ = closeFD(c.NotifyFD)
	}
}

// snapshot returns a copy of occupied (index, client) pairs for building
// a poll set.
func (t *clientTable) snapshot() []indexedClient {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]indexedClient, 0, MaxClients)
	for i, s := range t.slots {
		if s != nil {
			out = append(out, indexedClient{index: i, client: s})
		}
	}
	return out
}

// removeAll drops every occupied slot, closing its notify FD.
func (t *clientTable) removeAll() {
	t.mu.Lock()
	slots := t.slots
	t.slots = [MaxClients]*Client{}
	t.mu.Unlock()

	for _, c := range slots {
		if c != nil && c.NotifyFD >= 0 {
			_ = closeFD(c.NotifyFD)
		}
	}
}

type indexedClient struct {
	index  int
	client *Client
}
