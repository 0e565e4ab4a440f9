package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/mattjoyce/nodeagent/internal/events"
	"github.com/mattjoyce/nodeagent/internal/job"
	"github.com/mattjoyce/nodeagent/internal/sysstat"
	"github.com/mattjoyce/nodeagent/internal/workspace"
)

// handleHealth handles GET /health/.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, sysstat.Alive)
}

// handleResourceUsage handles GET /resource-usage/. It blocks for the CPU
// sampling window.
func (s *Server) handleResourceUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.sampler.Usage(r.Context())
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.logger.Error("failed to sample resource usage", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "resource usage unavailable")
		return
	}
	respondJSON(w, http.StatusOK, usage)
}

// handleLogs handles GET /logs/?lines=N.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	lines := DefaultLogLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "lines must be an integer")
			return
		}
		lines = n
	}
	respondJSON(w, http.StatusOK, LogsResponse{Logs: strings.Join(s.logs.Tail(lines), "\n")})
}

// handleStatus handles GET /status/.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.jobs.Status())
}

// handleExec handles POST /exec/ with form field cmd.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	cmd := r.PostFormValue("cmd")
	if strings.TrimSpace(cmd) == "" {
		s.writeError(w, http.StatusBadRequest, "cmd is required")
		return
	}

	snap, err := s.jobs.Run(cmd)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrEmptyCommand):
			s.writeError(w, http.StatusBadRequest, "cmd is required")
		default:
			s.logger.Error("failed to start command", "cmd", cmd, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to start command")
		}
		return
	}

	respondJSON(w, http.StatusOK, ExecResponse{
		Status: string(job.StateRunning),
		Cmd:    cmd,
		JobID:  snap.ID,
	})
}

// handleInterrupt handles POST /interrupt/. It never fails.
func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	outcome := s.jobs.Interrupt()
	respondJSON(w, http.StatusOK, StatusResponse{Status: string(outcome)})
}

// handleClearWorkspace handles POST /clear-workspace/.
func (s *Server) handleClearWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := s.workspace.Clear(r.Context()); err != nil {
		s.writeWorkspaceError(w, r, err, "failed to clear workspace")
		return
	}
	s.events.Publish(events.WorkspaceCleared, map[string]any{})
	respondJSON(w, http.StatusOK, StatusResponse{Status: "success", Msg: "Workspace cleared"})
}

// handleUploadAlgo handles POST /upload-algo/ with a multipart file field.
// The part is streamed into the workspace without buffering the form.
func (s *Server) handleUploadAlgo(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUpload)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart form with a file field is required")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "file is required")
			return
		}
		if err != nil {
			s.writeUploadReadError(w, err)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		dep, err := s.workspace.DeployArchive(r.Context(), part)
		_ = part.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				s.writeUploadReadError(w, maxErr)
				return
			}
			s.writeWorkspaceError(w, r, err, "failed to deploy archive")
			return
		}

		s.logger.Info("archive deployed", "files", dep.Files, "bytes", dep.Bytes, "digest", dep.Digest)
		s.events.Publish(events.WorkspaceDeployed, dep)
		respondJSON(w, http.StatusOK, UploadResponse{
			Status: "success",
			Msg:    "Algorithm uploaded and extracted",
			Files:  dep.Files,
			Bytes:  dep.Bytes,
			Digest: dep.Digest,
		})
		return
	}
}

func (s *Server) writeUploadReadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		return
	}
	s.writeError(w, http.StatusBadRequest, "malformed multipart body")
}

// handleListFiles handles GET /list-files/?path=rel. Files are served raw,
// directories as a JSON name list.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")

	listing, err := s.workspace.List(r.Context(), rel)
	if err != nil {
		s.writeWorkspaceError(w, r, err, "failed to read path")
		return
	}
	defer listing.Close()

	if listing.IsDir() {
		w.Header().Set(EntryTypeHeader, EntryDir)
		respondJSON(w, http.StatusOK, FilesResponse{Files: listing.Files})
		return
	}

	w.Header().Set(EntryTypeHeader, EntryFile)
	w.Header().Set("Content-Type", listing.ContentType)
	http.ServeContent(w, r, listing.Name, listing.ModTime, listing.Body())
}

// writeWorkspaceError maps workspace failures onto status codes. Messages
// stay generic so filesystem paths never reach the caller.
func (s *Server) writeWorkspaceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Path not found")
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		s.logger.Warn("request canceled", "path", r.URL.Path)
		s.writeError(w, StatusClientClosedRequest, "request canceled")
	case errors.Is(err, workspace.ErrArchive):
		s.logger.Warn(msg, "error", err)
		s.writeError(w, http.StatusInternalServerError, "invalid archive")
	default:
		s.logger.Error(msg, "error", err)
		s.writeError(w, http.StatusInternalServerError, msg)
	}
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
