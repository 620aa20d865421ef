package pipeline

// Stage is the position of a document in its pipeline run.
type Stage int

const (
	StageNotStarted Stage = iota
	StageRendering
	StageExtracting
	StageScanning
	StageReconciling
	StageDone
	StageFailed
)

var stageNames = map[Stage]string{
	StageNotStarted:  "NOT_STARTED",
	StageRendering:   "RENDERING",
	StageExtracting:  "EXTRACTING",
	StageScanning:    "SCANNING",
	StageReconciling: "RECONCILING",
	StageDone:        "DONE",
	StageFailed:      "FAILED",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// transitions lists the stages reachable from each stage. Scanning may jump
// to Done when no code was found, which skips reconciliation.
var transitions = map[Stage][]Stage{
	StageNotStarted:  {StageRendering, StageFailed},
	StageRendering:   {StageExtracting, StageFailed},
	StageExtracting:  {StageScanning, StageFailed},
	StageScanning:    {StageReconciling, StageDone, StageFailed},
	StageReconciling: {StageDone, StageFailed},
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s Stage) CanTransition(next Stage) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
