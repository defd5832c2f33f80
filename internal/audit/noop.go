package audit

// NoopRecorder discards all decisions. Used when the decision log is
// disabled.
type NoopRecorder struct{}

var _ Recorder = (*NoopRecorder)(nil)

func (NoopRecorder) Record(Decision) {}
func (NoopRecorder) Stop()           {}
