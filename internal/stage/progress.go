package stage

import "clipforge/internal/queue"

// Band is the slice of overall job progress owned by one stage. Handlers
// report stage-local fractions; the band maps them onto the pipeline total.
type Band struct {
	Lo float64
	Hi float64
}

// Pipeline bands: each job stage owns a fifth of the overall bar.
var (
	BandAcquire    = Band{Lo: 0, Hi: 20}
	BandNormalize  = Band{Lo: 20, Hi: 40}
	BandTranscribe = Band{Lo: 40, Hi: 60}
	BandHighlight  = Band{Lo: 60, Hi: 80}
	BandClip       = Band{Lo: 80, Hi: 100}
)

// Percent maps a stage-local fraction in [0, 1] into the band.
func (b Band) Percent(fraction float64) float64 {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return b.Lo + (b.Hi-b.Lo)*fraction
}

// Report records stage progress on the job, mapped into the stage's band.
// The job's monotonic guard drops regressions.
func Report(job *queue.Job, band Band, label, message string, fraction float64) {
	job.SetProgress(label, message, band.Percent(fraction))
}
