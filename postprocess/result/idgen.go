package result

import "sync"

// IDGenerator is a struct to hold a counter for generating the next
// incremental ID number.  IDs start at zero and are never handed out twice
// by the same generator
type IDGenerator struct {
	next int
	sync.Mutex
}

// NewIDGenerator returns a generator whose first ID is zero
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// GetNext returns the next incremental number
func (id *IDGenerator) GetNext() int {
	id.Lock()
	defer id.Unlock()
	n := id.next
	id.next++
	return n
}
