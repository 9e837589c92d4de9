package logstore

import "os"

// PruneResult reports one file the pruning pass acted on (or failed to).
type PruneResult struct {
	Path string
	Size int64
	Err  error
}

// PruneOversized removes capture files larger than maxBytes. Files whose
// session isOpen reports true are exempt regardless of size; an actively
// written log is never truncated. Best effort: one failed removal does not
// stop the pass, and every outcome is reported to the caller.
func (s *Store) PruneOversized(maxBytes int64, isOpen func(sessionID string) bool) ([]PruneResult, error) {
	files, err := s.List()
	if err != nil {
		return nil, err
	}

	var results []PruneResult
	for _, f := range files {
		if f.Size <= maxBytes {
			continue
		}
		if isOpen != nil && isOpen(f.Session) {
			continue
		}
		results = append(results, PruneResult{
			Path: f.Path,
			Size: f.Size,
			Err:  os.Remove(f.Path),
		})
	}
	return results, nil
}
