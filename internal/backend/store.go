// Package backend is a local stand-in for the interview backend so a
// session can be exercised without the production deployment.
package backend

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/prajwalbangera/interview-voice/internal/domain"
)

// Store keeps interviews in a JSON file guarded by a mutex.
type Store struct {
	mu         sync.Mutex
	path       string
	interviews []domain.Interview
}

func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.interviews = seedInterviews()
		return s.persistLocked()
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &s.interviews)
}

func seedInterviews() []domain.Interview {
	now := time.Now().UTC()
	return []domain.Interview{
		{
			ID:            uuid.NewString(),
			RefNum:        "NORMALIZED_TEST_001",
			CandidateName: "Sample Candidate",
			Position:      "Senior AI Engineer",
			ScheduledAt:   now,
			Duration:      45,
			Status:        domain.InterviewScheduled,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
}

func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.interviews, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// List returns a snapshot of all interviews.
func (s *Store) List() []domain.Interview {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Interview, len(s.interviews))
	copy(out, s.interviews)
	return out
}

// Get looks an interview up by id.
func (s *Store) Get(id string) (domain.Interview, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, iv := range s.interviews {
		if iv.ID == id {
			return iv, true
		}
	}
	return domain.Interview{}, false
}

// GetByRef looks an interview up by reference number.
func (s *Store) GetByRef(refNum string) (domain.Interview, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, iv := range s.interviews {
		if iv.RefNum == refNum {
			return iv, true
		}
	}
	return domain.Interview{}, false
}

// Upsert replaces the interview with the same id or appends it.
func (s *Store) Upsert(iv domain.Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := false
	for i := range s.interviews {
		if s.interviews[i].ID == iv.ID {
			s.interviews[i] = iv
			replaced = true
			break
		}
	}
	if !replaced {
		s.interviews = append(s.interviews, iv)
	}
	if err := s.persistLocked(); err != nil {
		log.Error().Err(err).Str("module", "backend.store").Msg("persist")
		return err
	}
	return nil
}

// Metrics aggregates the current interview set.
func (s *Store) Metrics() domain.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.interviews)
	m := domain.Metrics{TotalInterviews: total}
	if total == 0 {
		return m
	}

	completed := 0
	durationSum := 0
	scoreSum, scored := 0, 0
	roleCounts := make(map[string]int)
	roleScoreSums := make(map[string]int)
	roleScored := make(map[string]int)
	for _, iv := range s.interviews {
		switch iv.Status {
		case domain.InterviewInProgress, domain.InterviewPreparing:
			m.ActiveInterviews++
		case domain.InterviewCompleted:
			completed++
		}
		durationSum += iv.Duration
		roleCounts[iv.Position]++
		if iv.Evaluation != nil {
			scoreSum += iv.Evaluation.OverallScore
			scored++
			roleScoreSums[iv.Position] += iv.Evaluation.OverallScore
			roleScored[iv.Position]++
		}
	}
	m.CompletionRate = float64(completed) / float64(total)
	m.AverageDuration = float64(durationSum) / float64(total)
	if scored > 0 {
		avg := float64(scoreSum) / float64(scored)
		m.AverageScore = &avg
	}

	roles := make([]string, 0, len(roleCounts))
	for role := range roleCounts {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		rm := domain.RoleMetrics{Role: role, Count: roleCounts[role]}
		if n := roleScored[role]; n > 0 {
			avg := float64(roleScoreSums[role]) / float64(n)
			rm.AverageScore = &avg
		}
		m.InterviewsByRole = append(m.InterviewsByRole, rm)
	}
	return m
}
