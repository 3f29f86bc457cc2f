package port

import "time"

type MetricsRecorder interface {
	ObserveTransition(stage, result string, elapsed time.Duration)
	SetStageDistribution(counts map[string]int)
}
