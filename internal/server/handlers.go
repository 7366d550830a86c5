package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"document-processor/internal/chunker"
	"document-processor/internal/helper"
	"document-processor/internal/jobs"
	"document-processor/internal/llmservice"
	"document-processor/internal/parser"
	"document-processor/internal/pricing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const multipartMemory = 32 << 20

type jobResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pricing.Models())
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Registry().List())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Server.MaxUploadMB << 20
	if r.ContentLength > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds %d MB", s.cfg.Server.MaxUploadMB)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds %d MB", s.cfg.Server.MaxUploadMB)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form: %v", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "no file selected")
		return
	}
	if !parser.Supported(name) {
		writeError(w, http.StatusBadRequest, "unsupported file type %q, allowed: %s",
			filepath.Ext(name), strings.Join(parser.SupportedExtensions(), ", "))
		return
	}

	req, err := submitRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	path, err := s.saveUpload(file, name)
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("Failed to save upload")
		writeError(w, http.StatusInternalServerError, "failed to save upload")
		return
	}
	req.FilePath = path
	req.FileName = name

	id, err := s.manager.Submit(req)
	if err != nil {
		_ = os.Remove(path)
		switch {
		case errors.Is(err, llmservice.ErrMissingCredentials),
			errors.Is(err, llmservice.ErrUnknownProvider),
			errors.Is(err, pricing.ErrUnknownModel),
			errors.Is(err, parser.ErrUnsupportedFormat),
			errors.Is(err, chunker.ErrInvalidOptions):
			writeError(w, http.StatusBadRequest, "%v", err)
		default:
			log.Error().Err(err).Msg("Failed to submit job")
			writeError(w, http.StatusInternalServerError, "failed to start job")
		}
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{JobID: id, Message: "File uploaded successfully. Processing started."})
}

// submitRequest reads the optional form fields of an upload.
func submitRequest(r *http.Request) (jobs.SubmitRequest, error) {
	req := jobs.SubmitRequest{
		Prompt:       r.FormValue("prompt"),
		SystemPrompt: r.FormValue("system_prompt"),
		Model:        r.FormValue("model"),
		Provider:     r.FormValue("provider"),
		APIKey:       r.FormValue("api_key"),
	}

	var err error
	if req.Chunk.ChunkSize, err = formInt(r, "chunk_size"); err != nil {
		return req, err
	}
	req.Chunk.Overlap = -1
	if strings.TrimSpace(r.FormValue("chunk_overlap")) != "" {
		if req.Chunk.Overlap, err = formInt(r, "chunk_overlap"); err != nil {
			return req, err
		}
	}
	if req.MaxOutputTokens, err = formInt(r, "max_output"); err != nil {
		return req, err
	}
	if v := r.FormValue("optimize_images"); v != "" {
		req.Chunk.OptimizeImages = v == "on" || v == "true" || v == "1"
	}

	if req.Chunk.ChunkSize > 0 && req.Chunk.Overlap >= 0 {
		opts := chunker.Options{ChunkSize: req.Chunk.ChunkSize, Overlap: req.Chunk.Overlap}
		if err := opts.Validate(); err != nil {
			return req, err
		}
	}
	return req, nil
}

func formInt(r *http.Request, key string) (int, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func (s *Server) saveUpload(src io.Reader, name string) (string, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.UploadDir, id+"_"+name)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(path)
		return "", err
	}
	return path, dst.Close()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.manager.Registry().Snapshot(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	path, err := s.manager.ResultPath(id)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "job not completed")
		return
	}

	snap, _ := s.manager.Registry().Snapshot(id)
	base := strings.TrimSuffix(snap.FileName, filepath.Ext(snap.FileName))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+"_results.json"))
	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, path)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.manager.Cancel, "Cancellation requested")
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.manager.Pause, "Pause requested")
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.manager.Resume, "Job resumed")
}

func (s *Server) control(w http.ResponseWriter, r *http.Request, action func(string) error, msg string) {
	id := chi.URLParam(r, "jobID")
	err := action(id)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrInvalidState):
		writeError(w, http.StatusConflict, "%v", err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, "%v", err)
	default:
		writeJSON(w, http.StatusOK, jobResponse{JobID: id, Message: msg})
	}
}
