package renderpass

import "time"

type Mode uint8

const (
	ModeSettled Mode = iota
	ModeInteractive
)

func (m Mode) String() string {
	if m == ModeInteractive {
		return "interactive"
	}
	return "settled"
}

// FrameStats describes the most recently resolved frame.
type FrameStats struct {
	Mode Mode

	// Resolution the frame was rendered at.
	Width, Height int

	// Interactive resolution divisor.
	Scale float64

	// Backend render time for the frame.
	RenderTime time.Duration

	AccumulatedSamples int
	TargetSamples      int
	Converged          bool

	// Size of the last committed world, including the lights group
	// instance.
	Instances int
	Lights    int

	FramesLaunched  int
	FramesResolved  int
	FramesCancelled int
	WorldCommits    int
}
