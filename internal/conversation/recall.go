package conversation

type Direction int

const (
	Older Direction = iota
	Newer
)

// ParseDirection accepts "older"/"up" and "newer"/"down".
func ParseDirection(raw string) (Direction, bool) {
	switch raw {
	case "older", "up":
		return Older, true
	case "newer", "down":
		return Newer, true
	}
	return 0, false
}

// pushHistoryLocked records raw input, most recent first, capped at historyLimit.
func (s *Session) pushHistoryLocked(raw string) {
	keep := len(s.history)
	if keep > s.historyLimit-1 {
		keep = s.historyLimit - 1
	}
	history := make([]string, 0, keep+1)
	history = append(history, raw)
	history = append(history, s.history[:keep]...)
	s.history = history
}

// Recall moves the history cursor one step and returns the entry under it.
// The cursor stays within [-1, len(history)-1]; -1 yields "".
func (s *Session) Recall(dir Direction) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cursor
	switch dir {
	case Older:
		next = min(s.cursor+1, len(s.history)-1)
	case Newer:
		next = max(s.cursor-1, -1)
	}
	s.cursor = next
	s.notifyLocked()

	if next < 0 {
		return ""
	}
	return s.history[next]
}
