package grouping

import "container/list"

// robotsLRU is a fixed-capacity, not-safe-for-concurrent-use LRU cache
// from host to *robots.Rules. Generator is itself single-threaded, so no
// locking is needed here; callers that need concurrent access must
// serialize it themselves.
type robotsLRU struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

type robotsLRUEntry struct {
	host  string
	rules any
}

func newRobotsLRU(capacity int) *robotsLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &robotsLRU{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *robotsLRU) get(host string) (any, bool) {
	el, ok := c.entries[host]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*robotsLRUEntry).rules, true
}

func (c *robotsLRU) put(host string, rules any) {
	if el, ok := c.entries[host]; ok {
		el.Value.(*robotsLRUEntry).rules = rules
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&robotsLRUEntry{host: host, rules: rules})
	c.entries[host] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*robotsLRUEntry).host)
		}
	}
}

func (c *robotsLRU) len() int { return c.order.Len() }
