package tracker

import (
	"time"
)

// TrackedObject is the tracker owned state of a single object identity.  It
// is never handed out to callers, they receive Track copies instead
type TrackedObject struct {
	// id is the unique identity of this object, never reused
	id int
	// rect is the bounding box from the most recent matching detection
	rect Rect
	// centroid is the center of rect
	centroid Centroid
	// firstSeen is the time the object was registered
	firstSeen time.Time
	// lastSeen is the time of the last successful match
	lastSeen time.Time
	// threatLevel escalates with sustained presence, starts at 1
	threatLevel int
	// lastEscalated is the time of the last threat level increase
	lastEscalated time.Time
	// predictor is this object's own position filter
	predictor *KalmanFilter
	// predicted is the most recent predicted position
	predicted Centroid
}

// newTrackedObject registers a new object from its first detection
func newTrackedObject(id int, rect Rect, now time.Time, processNoise float64) *TrackedObject {

	c := rect.Centroid()

	kf := NewKalmanFilter(processNoise, DefaultMeasurementNoise)
	kf.Initiate(c.X, c.Y)

	return &TrackedObject{
		id:            id,
		rect:          rect,
		centroid:      c,
		firstSeen:     now,
		lastSeen:      now,
		threatLevel:   1,
		lastEscalated: now,
		predictor:     kf,
		predicted:     c,
	}
}

// match updates the object with a new matching detection and escalates its
// threat level if the escalation interval has elapsed
func (o *TrackedObject) match(rect Rect, now time.Time, escalation time.Duration,
	maxThreat int) {

	o.rect = rect
	o.centroid = rect.Centroid()
	o.lastSeen = now

	if now.Sub(o.lastEscalated) > escalation {
		if o.threatLevel < maxThreat {
			o.threatLevel++
		}
		o.lastEscalated = now
	}
}

// predict feeds the current centroid to the object's filter and stores the
// next predicted position.  A filter that fails to correct is restarted
// from the measurement
func (o *TrackedObject) predict() {

	if err := o.predictor.Correct(o.centroid.X, o.centroid.Y); err != nil {
		o.predictor.Initiate(o.centroid.X, o.centroid.Y)
	}

	x, y := o.predictor.Predict()
	o.predicted = Centroid{X: x, Y: y}
}

// expired reports whether the object has gone unmatched for longer than the
// deregistration timeout
func (o *TrackedObject) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(o.lastSeen) > timeout
}

// Track is an immutable snapshot of a tracked object as reported for a
// single frame
type Track struct {
	// ID is the object identity
	ID int `json:"id"`
	// Rect is the bounding box of the detection matched this frame
	Rect Rect `json:"rect"`
	// Centroid is the center of Rect
	Centroid Centroid `json:"centroid"`
	// ThreatLevel is the object's threat level after this frame
	ThreatLevel int `json:"threat_level"`
	// Predicted is the forecast position for the next frame
	Predicted Centroid `json:"predicted"`
	// FirstSeen is when the object was registered
	FirstSeen time.Time `json:"first_seen"`
	// LastSeen is when the object was last matched
	LastSeen time.Time `json:"last_seen"`
}

// PredictedRect returns the bounding box moved to the predicted position
func (t Track) PredictedRect() Rect {
	return t.Rect.CenteredAt(t.Predicted)
}

// snapshot copies the object state into a Track using the given detection
// rectangle
func (o *TrackedObject) snapshot(rect Rect) Track {
	return Track{
		ID:          o.id,
		Rect:        rect,
		Centroid:    rect.Centroid(),
		ThreatLevel: o.threatLevel,
		Predicted:   o.predicted,
		FirstSeen:   o.firstSeen,
		LastSeen:    o.lastSeen,
	}
}
