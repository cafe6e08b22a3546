package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maxUploadSize = 100 * 1024 * 1024 // 100MB

// handleIndex serves the main upload page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index.html", nil)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleUpload accepts an audio file plus a lyric transcript and
// starts a generation job.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.renderError(w, "Upload too large. Maximum size is 100MB.", http.StatusBadRequest)
		return
	}

	audioFile, audioHeader, err := r.FormFile("audio")
	if err != nil {
		s.renderError(w, "Please upload an audio file.", http.StatusBadRequest)
		return
	}
	defer audioFile.Close()

	ext := strings.ToLower(filepath.Ext(audioHeader.Filename))
	if ext != ".wav" && ext != ".mp3" {
		s.renderError(w, "Unsupported format. Please upload a WAV or MP3 file.", http.StatusBadRequest)
		return
	}

	lyricsFile, lyricsHeader, err := r.FormFile("lyrics")
	if err != nil {
		s.renderError(w, "Please upload a lyric transcript (.txt or .lrc).", http.StatusBadRequest)
		return
	}
	defer lyricsFile.Close()

	lext := strings.ToLower(filepath.Ext(lyricsHeader.Filename))
	if lext != ".txt" && lext != ".lrc" {
		s.renderError(w, "Lyrics must be a .txt or .lrc file.", http.StatusBadRequest)
		return
	}

	workDir, err := os.MkdirTemp("", "ultrastar-job-*")
	if err != nil {
		s.renderError(w, "Failed to prepare job workspace.", http.StatusInternalServerError)
		return
	}

	job := s.jobs.Create(workDir)
	job.Filename = audioHeader.Filename
	job.Title = r.FormValue("title")
	job.Artist = r.FormValue("artist")

	audioPath := filepath.Join(workDir, "input"+ext)
	if err := saveUpload(audioFile, audioPath); err != nil {
		s.renderError(w, "Failed to save audio file.", http.StatusInternalServerError)
		return
	}
	job.AudioPath = audioPath

	lyricsPath := filepath.Join(workDir, "lyrics"+lext)
	if err := saveUpload(lyricsFile, lyricsPath); err != nil {
		s.renderError(w, "Failed to save lyric file.", http.StatusInternalServerError)
		return
	}
	job.LyricsPath = lyricsPath

	go s.jobs.Process(job, func() { os.RemoveAll(workDir) })

	s.render(w, "processing.html", map[string]any{
		"JobID":    job.ID,
		"Filename": job.Filename,
	})
}

// handleStatus streams job progress via SSE
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job := s.jobs.Get(jobID)

	if job == nil {
		s.renderError(w, "Job not found.", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case update, open := <-job.Updates:
			if open {
				fmt.Fprintf(w, "event: progress\n")
				fmt.Fprintf(w, "data: %s\n\n", update)
				flusher.Flush()
			}

			if !open || job.Status == StatusComplete || job.Status == StatusFailed {
				fmt.Fprintf(w, "event: done\n")
				fmt.Fprintf(w, "data: %s\n\n", job.Status)
				flusher.Flush()
				return
			}
		}
	}
}

// handleResult renders the final result page
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job := s.jobs.Get(jobID)

	if job == nil {
		s.renderError(w, "Job not found.", http.StatusNotFound)
		return
	}

	if job.Status == StatusFailed {
		s.render(w, "error.html", map[string]any{
			"Error": job.Error,
		})
		return
	}

	if job.Status != StatusComplete {
		s.render(w, "processing.html", map[string]any{
			"JobID":    job.ID,
			"Filename": job.Filename,
			"Stage":    job.Stage,
		})
		return
	}

	preview := ""
	if data, err := os.ReadFile(job.Result.OutputPath); err == nil {
		preview = string(data)
	}

	var warnings []string
	for _, d := range job.Result.Degradations {
		warnings = append(warnings, fmt.Sprintf("%s: %s", d.Stage, d.Detail))
	}

	s.render(w, "result.html", map[string]any{
		"JobID":     job.ID,
		"Filename":  job.Filename,
		"Title":     job.Result.Song.Header.Title,
		"Artist":    job.Result.Song.Header.Artist,
		"BPM":       fmt.Sprintf("%.1f", job.Result.BPM),
		"BPMConf":   fmt.Sprintf("%.0f%%", job.Result.BPMConfidence*100),
		"Notes":     job.Result.NoteCount,
		"Lines":     job.Result.Song.LineCount(),
		"Voiced":    fmt.Sprintf("%.0f%%", job.Result.VoicedRatio*100),
		"Separated": job.Result.UsedSeparation,
		"Warnings":  warnings,
		"SongText":  preview,
	})
}

// handleDownloadTXT serves the generated song file
func (s *Server) handleDownloadTXT(w http.ResponseWriter, r *http.Request) {
	s.serveJobFile(w, r, "song.txt", "text/plain; charset=utf-8", ".txt")
}

// handleDownloadMIDI serves the exported MIDI file
func (s *Server) handleDownloadMIDI(w http.ResponseWriter, r *http.Request) {
	s.serveJobFile(w, r, "song.mid", "audio/midi", ".mid")
}

func (s *Server) serveJobFile(w http.ResponseWriter, r *http.Request, name, contentType, ext string) {
	jobID := chi.URLParam(r, "id")
	job := s.jobs.Get(jobID)

	if job == nil || job.Status != StatusComplete {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	path := filepath.Join(job.WorkDir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		http.Error(w, "File not available", http.StatusNotFound)
		return
	}

	stem := strings.TrimSuffix(job.Filename, filepath.Ext(job.Filename))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stem+ext))
	http.ServeFile(w, r, path)
}

// render renders a template
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template error", "template", name, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// renderError renders an error message
func (s *Server) renderError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	s.templates.ExecuteTemplate(w, "error.html", map[string]any{
		"Error": message,
	})
}

// saveUpload copies an uploaded part to disk
func saveUpload(src io.Reader, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		return err
	}
	return f.Close()
}
