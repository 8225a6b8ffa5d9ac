package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Service runs persisted habit reminders and scheduled reports. Jobs with a
// cron expression go through robfig/cron; interval jobs are driven by a
// one-second ticker.
type Service struct {
	storePath string
	mu        sync.Mutex
	jobs      []Job
	OnJob     func(job Job) (string, error)
	cron      *rcron.Cron
	entryMap  map[string]rcron.EntryID
	cancel    context.CancelFunc
}

func NewService(storePath string) *Service {
	return &Service{
		storePath: storePath,
		entryMap:  make(map[string]rcron.EntryID),
	}
}

func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.load(); err != nil {
		log.Warn().Str("component", "cron").Err(err).Msg("failed to load jobs")
	}

	s.cron = rcron.New(rcron.WithSeconds())

	s.mu.Lock()
	for i := range s.jobs {
		if s.jobs[i].Enabled && s.jobs[i].Schedule.Kind == "cron" {
			s.registerJob(&s.jobs[i])
		}
	}
	total := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	log.Info().Str("component", "cron").Int("jobs", total).Msg("started")

	go s.tickLoop(runCtx)
	return nil
}

func (s *Service) registerJob(job *Job) {
	jobCopy := *job
	id, err := s.cron.AddFunc(job.Schedule.Expr, func() {
		s.executeJob(jobCopy)
	})
	if err != nil {
		log.Warn().Str("component", "cron").Str("job", job.Name).Str("expr", job.Schedule.Expr).Err(err).Msg("failed to register job")
		return
	}
	s.entryMap[job.ID] = id
}

func (s *Service) executeJob(job Job) {
	log.Info().Str("component", "cron").Str("job", job.Name).Msg("executing")

	if s.OnJob == nil {
		log.Warn().Str("component", "cron").Msg("no OnJob handler set")
		return
	}

	_, err := s.OnJob(job)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		if s.jobs[i].ID != job.ID {
			continue
		}
		s.jobs[i].State.LastRunAtMs = time.Now().UnixMilli()
		if err != nil {
			s.jobs[i].State.LastStatus = "error"
			s.jobs[i].State.LastError = err.Error()
			log.Warn().Str("component", "cron").Str("job", job.Name).Err(err).Msg("job failed")
		} else {
			s.jobs[i].State.LastStatus = "ok"
			s.jobs[i].State.LastError = ""
		}
		break
	}

	_ = s.save()
}

// tickLoop drives interval ("every") jobs.
func (s *Service) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now().UnixMilli()
			s.mu.Lock()
			var due []Job
			for i := range s.jobs {
				job := &s.jobs[i]
				if !job.Enabled || job.Schedule.Kind != "every" || job.Schedule.EveryMs <= 0 {
					continue
				}
				if now >= job.State.LastRunAtMs+job.Schedule.EveryMs {
					job.State.LastRunAtMs = now
					due = append(due, *job)
				}
			}
			s.mu.Unlock()
			for _, job := range due {
				s.executeJob(job)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			log.Warn().Str("component", "cron").Msg("stop timeout waiting for running jobs")
		}
	}
	log.Info().Str("component", "cron").Msg("stopped")
}

func (s *Service) AddJob(name string, schedule Schedule, payload Payload) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := NewJob(name, schedule, payload)
	s.jobs = append(s.jobs, job)

	if job.Schedule.Kind == "cron" && s.cron != nil {
		s.registerJob(&s.jobs[len(s.jobs)-1])
	}

	if err := s.save(); err != nil {
		return nil, fmt.Errorf("save jobs: %w", err)
	}
	return &job, nil
}

func (s *Service) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, job := range s.jobs {
		if job.ID == id {
			if entryID, ok := s.entryMap[id]; ok && s.cron != nil {
				s.cron.Remove(entryID)
				delete(s.entryMap, id)
			}
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			_ = s.save()
			return true
		}
	}
	return false
}

func (s *Service) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Job, len(s.jobs))
	copy(result, s.jobs)
	return result
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.storePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read jobs: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := json.Unmarshal(data, &s.jobs); err != nil {
		return fmt.Errorf("parse jobs: %w", err)
	}
	return nil
}

// save must be called with the mutex held.
func (s *Service) save() error {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0755); err != nil {
		return fmt.Errorf("create jobs dir: %w", err)
	}
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal jobs: %w", err)
	}
	return os.WriteFile(s.storePath, data, 0644)
}
