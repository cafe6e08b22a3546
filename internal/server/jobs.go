package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/pipeline"
)

// Job status constants
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusComplete   JobStatus = "complete"
	StatusFailed     JobStatus = "failed"
)

// Job represents one song generation request
type Job struct {
	ID         string
	Status     JobStatus
	Stage      string
	Filename   string
	AudioPath  string
	LyricsPath string
	Title      string
	Artist     string
	WorkDir    string
	Result     *pipeline.Result
	Error      string
	Updates    chan string
	CreatedAt  time.Time
}

// JobManager manages processing jobs
type JobManager struct {
	jobs       map[string]*Job
	mu         sync.RWMutex
	ffmpegPath string
	pythonPath string
}

// NewJobManager creates a new job manager
func NewJobManager(ffmpegPath, pythonPath string) *JobManager {
	return &JobManager{
		jobs:       make(map[string]*Job),
		ffmpegPath: ffmpegPath,
		pythonPath: pythonPath,
	}
}

// Create registers a new pending job with its own work directory.
func (m *JobManager) Create(workDir string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Stage:     "Uploading...",
		WorkDir:   workDir,
		Updates:   make(chan string, 32),
		CreatedAt: time.Now(),
	}

	m.jobs[job.ID] = job
	return job
}

// Get retrieves a job by ID
func (m *JobManager) Get(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// expire drops a finished job and its files after a grace period so
// download links keep working for a while.
func (m *JobManager) expire(job *Job, cleanup func()) {
	time.AfterFunc(10*time.Minute, func() {
		cleanup()
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
	})
}

// Process runs the generation pipeline for a job. Each job gets its
// own orchestrator; nothing is shared between concurrent jobs.
func (m *JobManager) Process(job *Job, cleanup func()) {
	defer close(job.Updates)
	defer m.expire(job, cleanup)

	job.Status = StatusProcessing
	ctx := context.Background()

	cfg := pipeline.DefaultConfig()
	cfg.AudioPath = job.AudioPath
	cfg.LyricsPath = job.LyricsPath
	cfg.Title = job.Title
	cfg.Artist = job.Artist
	cfg.OutputPath = job.WorkDir + "/song.txt"
	cfg.MIDIOutputPath = job.WorkDir + "/song.mid"

	orch := pipeline.NewOrchestrator(m.ffmpegPath, m.pythonPath, &updateWriter{job: job}, false)

	result, err := orch.Execute(ctx, cfg)
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		m.push(job, "Error: "+job.Error)
		return
	}

	job.Result = result
	job.Status = StatusComplete
	job.Stage = "Complete!"
	m.push(job, job.Stage)
}

// push sends an update without blocking a slow or absent listener.
func (m *JobManager) push(job *Job, msg string) {
	select {
	case job.Updates <- msg:
	default:
	}
}

// updateWriter adapts the progress reporter's output stream to the
// job's update channel, one line per event.
type updateWriter struct {
	job *Job
}

func (w *updateWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		w.job.Stage = line
		select {
		case w.job.Updates <- line:
		default:
		}
	}
	return len(p), nil
}
