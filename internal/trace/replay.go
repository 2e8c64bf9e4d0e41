package trace

// LoadEvents reads all events from a trace file. Convenience wrapper for
// replay and report generation, which only need a one-shot read.
func LoadEvents(path string) ([]Event, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Events()
}
