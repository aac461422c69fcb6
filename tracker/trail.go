package tracker

import (
	"image"
	"sync"
)

// Trail is the struct to keep a history of object positions used for drawing
// a trail behind each tracked object.  It is read by the renderer and written
// by the processing loop so access is guarded
type Trail struct {
	// size is the maximum number of most recent points to keep in history
	size int
	// history of tracked points keyed by object id
	history map[int][]image.Point
	sync.Mutex
}

// NewTrail returns a new trail history instance.  Size is the number of most
// recent points to keep and specifies the maximum length of the trail
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[int][]image.Point),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int][]image.Point)
}

// Add appends the centroid of a track to its object's history
func (t *Trail) Add(track Track) {
	t.Lock()
	defer t.Unlock()

	points := append(t.history[track.ID], track.Centroid.Point())

	// check if history is exceeded and drop oldest point
	if len(points) > t.size {
		points = points[len(points)-t.size:]
	}

	t.history[track.ID] = points
}

// Remove drops the history of deregistered objects
func (t *Trail) Remove(ids ...int) {
	t.Lock()
	defer t.Unlock()

	for _, id := range ids {
		delete(t.history, id)
	}
}

// Len returns the number of objects with history
func (t *Trail) Len() int {
	t.Lock()
	defer t.Unlock()

	return len(t.history)
}

// GetPoints gets a copy of the point history for a specific object id
func (t *Trail) GetPoints(id int) []image.Point {
	t.Lock()
	defer t.Unlock()

	points, exists := t.history[id]

	if !exists {
		// no history yet
		return nil
	}

	out := make([]image.Point, len(points))
	copy(out, points)

	return out
}
