package tracker

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// boxAt returns a 40x40 rect centered on the given point
func boxAt(x, y int) Rect {
	return NewRect(x-20, y-20, 40, 40)
}

// at returns a time offset from a fixed epoch so runs are reproducible
func at(d time.Duration) time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).Add(d)
}

// expectedTrack is the observable result of a track for a frame
type expectedTrack struct {
	id    int
	rect  Rect
	level int
}

// trackerFrame holds the detections for a single frame and the expected
// tracks and active object count after the update
type trackerFrame struct {
	name     string
	offset   time.Duration
	rects    []Rect
	expected []expectedTrack
	active   int
	removed  []int
}

func runFrames(t *testing.T, ct *CentroidTracker, frames []trackerFrame) {
	t.Helper()

	for _, f := range frames {

		tracks := ct.Update(f.rects, at(f.offset))

		if len(tracks) != len(f.expected) {
			t.Fatalf("%s: expected %d tracks, got %d", f.name, len(f.expected),
				len(tracks))
		}

		for i, exp := range f.expected {
			got := tracks[i]

			if got.ID != exp.id {
				t.Errorf("%s: track %d expected id %d, got %d", f.name, i, exp.id,
					got.ID)
			}

			if got.Rect != exp.rect {
				t.Errorf("%s: track %d expected rect %+v, got %+v", f.name, i,
					exp.rect, got.Rect)
			}

			if got.ThreatLevel != exp.level {
				t.Errorf("%s: track %d expected threat level %d, got %d", f.name,
					i, exp.level, got.ThreatLevel)
			}
		}

		if ct.Len() != f.active {
			t.Errorf("%s: expected %d active objects, got %d", f.name, f.active,
				ct.Len())
		}

		if diff := cmp.Diff(f.removed, ct.Deregistered(), cmpEmptyInts); diff != "" {
			t.Errorf("%s: deregistered mismatch (-want +got):\n%s", f.name, diff)
		}
	}
}

// cmpEmptyInts treats nil and empty int slices as equal
var cmpEmptyInts = cmp.FilterValues(func(a, b []int) bool {
	return len(a) == 0 && len(b) == 0
}, cmp.Ignore())

// TestCentroidTrackerScenario walks an object through registration,
// re-identification, escalation, deregistration and re-registration
func TestCentroidTrackerScenario(t *testing.T) {

	ct := NewCentroidTracker(DefaultConfig())

	frames := []trackerFrame{
		{
			name:     "appears",
			offset:   0,
			rects:    []Rect{boxAt(100, 100)},
			expected: []expectedTrack{{0, boxAt(100, 100), 1}},
			active:   1,
		},
		{
			name:     "moves within threshold",
			offset:   time.Second,
			rects:    []Rect{boxAt(110, 105)},
			expected: []expectedTrack{{0, boxAt(110, 105), 1}},
			active:   1,
		},
		{
			name:     "escalates",
			offset:   DefaultEscalationTime + time.Second,
			rects:    []Rect{boxAt(110, 105)},
			expected: []expectedTrack{{0, boxAt(110, 105), 2}},
			active:   1,
		},
		{
			name:     "absent past timeout",
			offset:   DefaultEscalationTime + DefaultDeregistrationTimeout + 2*time.Second,
			rects:    nil,
			expected: nil,
			active:   0,
			removed:  []int{0},
		},
		{
			name:     "returns with new identity",
			offset:   DefaultEscalationTime + DefaultDeregistrationTimeout + 3*time.Second,
			rects:    []Rect{boxAt(100, 100)},
			expected: []expectedTrack{{1, boxAt(100, 100), 1}},
			active:   1,
		},
	}

	runFrames(t, ct, frames)
}

func TestCentroidTrackerNewRegistration(t *testing.T) {

	ct := NewCentroidTracker(DefaultConfig())

	frames := []trackerFrame{
		{
			name:     "two far apart",
			offset:   0,
			rects:    []Rect{boxAt(100, 100), boxAt(500, 100)},
			expected: []expectedTrack{{0, boxAt(100, 100), 1}, {1, boxAt(500, 100), 1}},
			active:   2,
		},
		{
			name:   "third beyond threshold of both",
			offset: time.Second,
			rects:  []Rect{boxAt(500, 100), boxAt(300, 500), boxAt(100, 100)},
			expected: []expectedTrack{
				{1, boxAt(500, 100), 1},
				{2, boxAt(300, 500), 1},
				{0, boxAt(100, 100), 1},
			},
			active: 3,
		},
	}

	runFrames(t, ct, frames)
}

func TestCentroidTrackerThresholdIsStrict(t *testing.T) {

	ct := NewCentroidTracker(DefaultConfig())

	ct.Update([]Rect{boxAt(100, 100)}, at(0))

	// exactly on the threshold distance is not a match
	tracks := ct.Update([]Rect{boxAt(100+225, 100)}, at(time.Second))

	if tracks[0].ID != 1 {
		t.Errorf("expected detection at threshold distance to register id 1, got %d",
			tracks[0].ID)
	}

	tracks = ct.Update([]Rect{boxAt(100+224, 100)}, at(2*time.Second))

	// first match in registration order wins
	if tracks[0].ID != 0 {
		t.Errorf("expected detection inside threshold to match id 0, got %d",
			tracks[0].ID)
	}
}

func TestCentroidTrackerEmptyFrameOnlySweeps(t *testing.T) {

	ct := NewCentroidTracker(DefaultConfig())

	ct.Update([]Rect{boxAt(100, 100)}, at(0))

	tracks := ct.Update(nil, at(5*time.Second))

	if len(tracks) != 0 {
		t.Errorf("expected no tracks for empty frame, got %d", len(tracks))
	}

	if ct.Len() != 1 {
		t.Errorf("expected object to survive within timeout, got %d active", ct.Len())
	}

	active := ct.Active()

	if len(active) != 1 || active[0].ThreatLevel != 1 || !active[0].LastSeen.Equal(at(0)) {
		t.Errorf("expected untouched object state, got %+v", active)
	}
}

func TestCentroidTrackerDeregistrationBoundary(t *testing.T) {

	ct := NewCentroidTracker(DefaultConfig())

	ct.Update([]Rect{boxAt(100, 100)}, at(0))

	ct.Update(nil, at(DefaultDeregistrationTimeout))

	if ct.Len() != 1 {
		t.Fatalf("expected object kept at exactly the timeout, got %d active", ct.Len())
	}

	ct.Update(nil, at(DefaultDeregistrationTimeout+time.Nanosecond))

	if ct.Len() != 0 {
		t.Fatalf("expected object removed past the timeout, got %d active", ct.Len())
	}

	if diff := cmp.Diff([]int{0}, ct.Deregistered()); diff != "" {
		t.Errorf("deregistered mismatch (-want +got):\n%s", diff)
	}

	// the sweep only reports removals of its own update
	ct.Update(nil, at(DefaultDeregistrationTimeout+time.Second))

	if len(ct.Deregistered()) != 0 {
		t.Errorf("expected no removals, got %v", ct.Deregistered())
	}
}

func TestCentroidTrackerEscalationCadence(t *testing.T) {

	ct := NewCentroidTracker(DefaultConfig())

	// escalation happens when strictly more than 10s passed since the last
	// one, so matched every second it lands on 11s, 22s and 33s
	levels := map[int]int{0: 1, 10: 1, 11: 2, 21: 2, 22: 3, 32: 3, 33: 3, 60: 3}

	prev := 0

	for sec := 0; sec <= 60; sec++ {

		tracks := ct.Update([]Rect{boxAt(100, 100)}, at(time.Duration(sec)*time.Second))

		if len(tracks) != 1 || tracks[0].ID != 0 {
			t.Fatalf("second %d: expected single track id 0, got %+v", sec, tracks)
		}

		level := tracks[0].ThreatLevel

		if level < prev {
			t.Fatalf("second %d: threat level decreased from %d to %d", sec, prev, level)
		}

		if level > DefaultMaxThreatLevel {
			t.Fatalf("second %d: threat level %d exceeds maximum", sec, level)
		}

		if want, ok := levels[sec]; ok && level != want {
			t.Errorf("second %d: expected threat level %d, got %d", sec, want, level)
		}

		if level-prev > 1 {
			t.Errorf("second %d: threat level jumped from %d to %d", sec, prev, level)
		}

		prev = level
	}
}

func TestCentroidTrackerMonotonicIDs(t *testing.T) {

	ct := NewCentroidTracker(DefaultConfig())

	seen := make(map[int]bool)
	last := -1

	// each cycle registers an object then lets it expire
	for cycle := 0; cycle < 5; cycle++ {

		base := time.Duration(cycle) * time.Minute

		tracks := ct.Update([]Rect{boxAt(100, 100)}, at(base))

		id := tracks[0].ID

		if seen[id] {
			t.Fatalf("cycle %d: id %d reused", cycle, id)
		}

		if id <= last {
			t.Fatalf("cycle %d: id %d not greater than previous %d", cycle, id, last)
		}

		seen[id] = true
		last = id

		ct.Update(nil, at(base+DefaultDeregistrationTimeout+time.Second))

		if ct.Len() != 0 {
			t.Fatalf("cycle %d: expected object to expire", cycle)
		}
	}
}

func TestCentroidTrackerDeterministic(t *testing.T) {

	frames := [][]Rect{
		{boxAt(100, 100), boxAt(400, 300)},
		{boxAt(105, 102), boxAt(395, 310), boxAt(700, 50)},
		{boxAt(112, 104)},
		{},
		{boxAt(118, 109), boxAt(690, 60)},
	}

	run := func() [][]Track {
		ct := NewCentroidTracker(DefaultConfig())
		var out [][]Track

		for i, rects := range frames {
			out = append(out, ct.Update(rects, at(time.Duration(i)*4*time.Second)))
		}

		return out
	}

	first := run()
	second := run()

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated runs differ (-first +second):\n%s", diff)
	}
}

// TestCentroidTrackerDuplicateMatch checks that under the default policy two
// detections near the same object both report that object
func TestCentroidTrackerDuplicateMatch(t *testing.T) {

	ct := NewCentroidTracker(DefaultConfig())

	ct.Update([]Rect{boxAt(100, 100)}, at(0))

	tracks := ct.Update([]Rect{boxAt(90, 100), boxAt(130, 100)}, at(time.Second))

	if len(tracks) != 2 || tracks[0].ID != 0 || tracks[1].ID != 0 {
		t.Fatalf("expected both detections to match id 0, got %+v", tracks)
	}

	// the object keeps the box of the last detection matched
	active := ct.Active()

	if len(active) != 1 || active[0].Rect != boxAt(130, 100) {
		t.Errorf("expected one object at the last matched box, got %+v", active)
	}
}

func TestCentroidTrackerClaimOnce(t *testing.T) {

	cfg := DefaultConfig()
	cfg.ClaimOnce = true

	ct := NewCentroidTracker(cfg)

	ct.Update([]Rect{boxAt(100, 100)}, at(0))

	tracks := ct.Update([]Rect{boxAt(90, 100), boxAt(130, 100)}, at(time.Second))

	if len(tracks) != 2 || tracks[0].ID != 0 || tracks[1].ID != 1 {
		t.Fatalf("expected ids 0 and 1, got %+v", tracks)
	}

	if ct.Len() != 2 {
		t.Errorf("expected 2 active objects, got %d", ct.Len())
	}
}

func TestCentroidTrackerMatchPolicy(t *testing.T) {

	tests := []struct {
		name     string
		policy   MatchPolicy
		expected int
	}{
		{"first match wins", MatchFirst, 0},
		{"nearest match wins", MatchNearest, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {

			cfg := DefaultConfig()
			cfg.Policy = tc.policy

			ct := NewCentroidTracker(cfg)
			ct.Update([]Rect{boxAt(100, 100), boxAt(400, 100)}, at(0))

			// 160px from object 0 and 140px from object 1
			tracks := ct.Update([]Rect{boxAt(260, 100)}, at(time.Second))

			if tracks[0].ID != tc.expected {
				t.Errorf("expected id %d, got %d", tc.expected, tracks[0].ID)
			}
		})
	}
}

func TestCentroidTrackerPredictorPerObject(t *testing.T) {

	ct := NewCentroidTracker(DefaultConfig())

	var tracks []Track

	// object 0 moves right, object 1 moves left
	for k := 0; k < 30; k++ {
		tracks = ct.Update([]Rect{
			boxAt(100+5*k, 100),
			boxAt(900-5*k, 500),
		}, at(time.Duration(k)*100*time.Millisecond))
	}

	if tracks[0].ID != 0 || tracks[1].ID != 1 {
		t.Fatalf("expected ids 0 and 1, got %d and %d", tracks[0].ID, tracks[1].ID)
	}

	right := tracks[0]
	left := tracks[1]

	if math.Abs(right.Predicted.X-(right.Centroid.X+5)) > 1.0 {
		t.Errorf("expected object 0 predicted near x=%v, got %v",
			right.Centroid.X+5, right.Predicted.X)
	}

	if math.Abs(left.Predicted.X-(left.Centroid.X-5)) > 1.0 {
		t.Errorf("expected object 1 predicted near x=%v, got %v",
			left.Centroid.X-5, left.Predicted.X)
	}

	if math.Abs(right.Predicted.Y-100) > 1e-6 || math.Abs(left.Predicted.Y-500) > 1e-6 {
		t.Errorf("expected predicted y unchanged, got %v and %v",
			right.Predicted.Y, left.Predicted.Y)
	}

	if pr := right.PredictedRect(); pr.Width != 40 || pr.Height != 40 {
		t.Errorf("expected predicted rect to keep size, got %+v", pr)
	}
}

func TestCentroidTrackerSetConfig(t *testing.T) {

	ct := NewCentroidTracker(DefaultConfig())

	ct.Update([]Rect{boxAt(100, 100)}, at(0))

	cfg := ct.Config()
	cfg.DeregistrationTimeout = 2 * time.Second
	ct.SetConfig(cfg)

	ct.Update(nil, at(3*time.Second))

	if ct.Len() != 0 {
		t.Errorf("expected object removed with shortened timeout, got %d", ct.Len())
	}
}

func TestCentroidTrackerLoweredThreatCap(t *testing.T) {

	cfg := DefaultConfig()
	cfg.EscalationTime = 0
	ct := NewCentroidTracker(cfg)

	for i := 0; i < 4; i++ {
		ct.Update([]Rect{boxAt(100, 100)}, at(time.Duration(i)*time.Second))
	}

	if lvl := ct.Active()[0].ThreatLevel; lvl != 3 {
		t.Fatalf("expected threat level 3 before lowering the cap, got %d", lvl)
	}

	cfg.MaxThreatLevel = 2
	ct.SetConfig(cfg)

	if lvl := ct.Active()[0].ThreatLevel; lvl != 2 {
		t.Errorf("expected threat level clamped to 2, got %d", lvl)
	}

	tracks := ct.Update([]Rect{boxAt(104, 100)}, at(5*time.Second))

	if len(tracks) != 1 || tracks[0].ThreatLevel != 2 {
		t.Errorf("expected a single track held at the new cap, got %+v", tracks)
	}

	// raising the cap again resumes escalation from the clamped level
	cfg.MaxThreatLevel = 3
	ct.SetConfig(cfg)

	tracks = ct.Update([]Rect{boxAt(108, 100)}, at(6*time.Second))

	if len(tracks) != 1 || tracks[0].ThreatLevel != 3 {
		t.Errorf("expected escalation to 3 after raising the cap, got %+v", tracks)
	}
}
