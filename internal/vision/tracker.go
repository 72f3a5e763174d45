package vision

// Detection is one face observed in a sampled frame.
type Detection struct {
	Rect          Rect     `json:"bbox"`
	Confidence    float64  `json:"confidence"`
	MouthOpenness *float64 `json:"mouth_openness,omitempty"`
}

// FrameSample is the scanner output for one sampled frame.
type FrameSample struct {
	FrameIndex int         `json:"frame"`
	TimeSec    float64     `json:"time"`
	Detections []Detection `json:"faces"`
}

// Observation is one matched detection appended to a track's history.
type Observation struct {
	FrameIndex    int
	Rect          Rect
	MouthOpenness float64
	HasMouth      bool
}

// Track is one face identity across sampled frames. The history is append-only
// so identities can be replayed after the scan completes.
type Track struct {
	ID      int
	History []Observation
	Misses  int
	Active  bool
}

// Last returns the most recent observation.
func (t *Track) Last() Observation {
	return t.History[len(t.History)-1]
}

// Tracker matches detections across sampled frames into tracks.
type Tracker struct {
	iouThreshold float64
	maxMisses    int
	nextID       int
	tracks       []*Track
}

// NewTracker builds a tracker. A detection joins an existing track when its
// IOU with the track's last box meets the threshold; a track unmatched for
// more than maxMisses sampled frames is retired.
func NewTracker(iouThreshold float64, maxMisses int) *Tracker {
	return &Tracker{iouThreshold: iouThreshold, maxMisses: maxMisses}
}

// Observe matches one frame's detections against active tracks and returns
// the tracks updated this frame, ordered by track id.
func (tr *Tracker) Observe(frameIndex int, detections []Detection) []*Track {
	used := make([]bool, len(detections))

	var updated []*Track
	for _, track := range tr.tracks {
		if !track.Active {
			continue
		}
		bestIOU := 0.0
		bestIdx := -1
		last := track.Last().Rect
		for i, det := range detections {
			if used[i] {
				continue
			}
			if score := IOU(last, det.Rect); score > bestIOU {
				bestIOU = score
				bestIdx = i
			}
		}
		if bestIdx >= 0 && bestIOU >= tr.iouThreshold {
			used[bestIdx] = true
			track.appendObservation(frameIndex, detections[bestIdx])
			track.Misses = 0
			updated = append(updated, track)
			continue
		}
		track.Misses++
		if track.Misses > tr.maxMisses {
			track.Active = false
		}
	}

	for i, det := range detections {
		if used[i] {
			continue
		}
		track := &Track{ID: tr.nextID, Active: true}
		tr.nextID++
		track.appendObservation(frameIndex, det)
		tr.tracks = append(tr.tracks, track)
		updated = append(updated, track)
	}

	return updated
}

// ActiveTracks returns tracks still considered present.
func (tr *Tracker) ActiveTracks() []*Track {
	var active []*Track
	for _, track := range tr.tracks {
		if track.Active {
			active = append(active, track)
		}
	}
	return active
}

// AllTracks returns every track ever created, including retired ones.
func (tr *Tracker) AllTracks() []*Track {
	return tr.tracks
}

func (t *Track) appendObservation(frameIndex int, det Detection) {
	obs := Observation{FrameIndex: frameIndex, Rect: det.Rect}
	if det.MouthOpenness != nil {
		obs.MouthOpenness = *det.MouthOpenness
		obs.HasMouth = true
	}
	t.History = append(t.History, obs)
}
