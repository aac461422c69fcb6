package tracker

import (
	"time"

	"github.com/swdee/go-motionwatch/postprocess/result"
)

// MatchPolicy selects how a detection is associated with an existing object
type MatchPolicy int

const (
	// MatchFirst assigns a detection to the first object, in registration
	// order, whose centroid lies within the distance threshold.  This is a
	// greedy policy and two nearby objects can swap identities across frames
	MatchFirst MatchPolicy = 0
	// MatchNearest assigns a detection to the closest object within the
	// distance threshold, ties go to the earliest registered object
	MatchNearest MatchPolicy = 1
)

// Default tracker settings
const (
	DefaultDistanceThreshold     = 225.0
	DefaultMaxThreatLevel        = 3
	DefaultEscalationTime        = 10 * time.Second
	DefaultDeregistrationTimeout = 10 * time.Second
)

// Config holds the parameters for the centroid tracker
type Config struct {
	// DistanceThreshold is the centroid distance in pixels below which a
	// detection is considered the same object
	DistanceThreshold float64
	// MaxThreatLevel caps threat level escalation
	MaxThreatLevel int
	// EscalationTime is the minimum time between threat level increases
	EscalationTime time.Duration
	// DeregistrationTimeout is how long an object may go unmatched before it
	// is removed
	DeregistrationTimeout time.Duration
	// Policy is the detection to object matching policy
	Policy MatchPolicy
	// ClaimOnce stops an object from matching more than one detection per
	// frame.  When false a second detection near an already matched object
	// matches it again
	ClaimOnce bool
	// ProcessNoise is the process noise scale of each object's predictor
	ProcessNoise float64
}

// DefaultConfig returns the default tracker configuration
func DefaultConfig() Config {
	return Config{
		DistanceThreshold:     DefaultDistanceThreshold,
		MaxThreatLevel:        DefaultMaxThreatLevel,
		EscalationTime:        DefaultEscalationTime,
		DeregistrationTimeout: DefaultDeregistrationTimeout,
		Policy:                MatchFirst,
		ClaimOnce:             false,
		ProcessNoise:          DefaultProcessNoise,
	}
}

// CentroidTracker keeps object identities across frames by matching the
// centroid of each new detection against the last known centroid of the
// objects currently registered.  It is not safe for concurrent use, a single
// processing loop must own it
type CentroidTracker struct {
	cfg Config
	// ids hands out object identities
	ids *result.IDGenerator
	// objects holds the active objects keyed by id
	objects map[int]*TrackedObject
	// order is the active ids in registration order
	order []int
	// deregistered holds the ids removed during the last Update
	deregistered []int
}

// NewCentroidTracker initializes and returns a new CentroidTracker
func NewCentroidTracker(cfg Config) *CentroidTracker {
	return &CentroidTracker{
		cfg:     cfg,
		ids:     result.NewIDGenerator(),
		objects: make(map[int]*TrackedObject),
	}
}

// Config returns the current tracker configuration
func (ct *CentroidTracker) Config() Config {
	return ct.cfg
}

// SetConfig replaces the tracker configuration.  Active objects keep their
// state except that a lowered MaxThreatLevel clamps objects above the new
// cap down to it
func (ct *CentroidTracker) SetConfig(cfg Config) {

	if cfg.MaxThreatLevel >= 1 && cfg.MaxThreatLevel < ct.cfg.MaxThreatLevel {
		for _, obj := range ct.objects {
			if obj.threatLevel > cfg.MaxThreatLevel {
				obj.threatLevel = cfg.MaxThreatLevel
			}
		}
	}

	ct.cfg = cfg
}

// Len returns the number of active objects
func (ct *CentroidTracker) Len() int {
	return len(ct.order)
}

// Deregistered returns the ids removed during the most recent Update
func (ct *CentroidTracker) Deregistered() []int {
	out := make([]int, len(ct.deregistered))
	copy(out, ct.deregistered)
	return out
}

// Active returns a snapshot of every active object in registration order
func (ct *CentroidTracker) Active() []Track {

	out := make([]Track, 0, len(ct.order))

	for _, id := range ct.order {
		obj := ct.objects[id]
		out = append(out, obj.snapshot(obj.rect))
	}

	return out
}

// Update matches the detections of the current frame against the active
// objects, registers unmatched detections as new objects, then removes any
// object not seen within the deregistration timeout.  The returned tracks
// are in detection order, one per detection
func (ct *CentroidTracker) Update(rects []Rect, now time.Time) []Track {

	tracks := make([]Track, 0, len(rects))
	owners := make([]*TrackedObject, 0, len(rects))
	claimed := make(map[int]bool)
	touched := make([]*TrackedObject, 0, len(rects))

	for _, rect := range rects {

		c := rect.Centroid()
		obj := ct.match(c, claimed)

		if obj != nil {
			obj.match(rect, now, ct.cfg.EscalationTime, ct.cfg.MaxThreatLevel)
		} else {
			obj = ct.register(rect, now)
		}

		if !claimed[obj.id] {
			claimed[obj.id] = true
			touched = append(touched, obj)
		}

		tracks = append(tracks, obj.snapshot(rect))
		owners = append(owners, obj)
	}

	// run each touched object's predictor once with its final centroid
	for _, obj := range touched {
		obj.predict()
	}

	for i, obj := range owners {
		tracks[i].Predicted = obj.predicted
	}

	ct.sweep(now)

	return tracks
}

// match finds the object a detection centroid belongs to according to the
// configured policy, returns nil if none is within the distance threshold
func (ct *CentroidTracker) match(c Centroid, claimed map[int]bool) *TrackedObject {

	var best *TrackedObject
	bestDist := ct.cfg.DistanceThreshold

	for _, id := range ct.order {

		if ct.cfg.ClaimOnce && claimed[id] {
			continue
		}

		obj := ct.objects[id]
		dist := c.DistanceTo(obj.centroid)

		if dist >= ct.cfg.DistanceThreshold {
			continue
		}

		if ct.cfg.Policy == MatchFirst {
			return obj
		}

		if best == nil || dist < bestDist {
			best = obj
			bestDist = dist
		}
	}

	return best
}

// register creates a new object with a fresh identity
func (ct *CentroidTracker) register(rect Rect, now time.Time) *TrackedObject {

	obj := newTrackedObject(ct.ids.GetNext(), rect, now, ct.processNoise())

	ct.objects[obj.id] = obj
	ct.order = append(ct.order, obj.id)

	return obj
}

// sweep removes every object unmatched for longer than the deregistration
// timeout, the object's state and predictor are discarded entirely
func (ct *CentroidTracker) sweep(now time.Time) {

	ct.deregistered = ct.deregistered[:0]
	keep := ct.order[:0]

	for _, id := range ct.order {
		if ct.objects[id].expired(now, ct.cfg.DeregistrationTimeout) {
			ct.deregistered = append(ct.deregistered, id)
			delete(ct.objects, id)
			continue
		}
		keep = append(keep, id)
	}

	ct.order = keep
}

// processNoise returns the configured predictor process noise or the
// default when unset
func (ct *CentroidTracker) processNoise() float64 {
	if ct.cfg.ProcessNoise <= 0 {
		return DefaultProcessNoise
	}
	return ct.cfg.ProcessNoise
}
