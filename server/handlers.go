package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/feedlens/feedlens/pkg/domain"
)

// startRunHandler triggers a new collection run
func (s *Server) startRunHandler(w http.ResponseWriter, r *http.Request) {
	runID, err := s.coordinator.StartRun(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrRunActive) {
			RenderError(w, r, err, http.StatusConflict)
			return
		}
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusAccepted, map[string]string{"run_id": runID})
}

// listRunsHandler returns the archive of finished runs
func (s *Server) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string]interface{}{"runs": runs})
}

// activeRunHandler returns the in-flight run, 404 when idle
func (s *Server) activeRunHandler(w http.ResponseWriter, r *http.Request) {
	run := s.coordinator.ActiveRun()
	if run == nil {
		RenderError(w, r, fmt.Errorf("no active run"), http.StatusNotFound)
		return
	}
	RenderJSON(w, r, http.StatusOK, run)
}

// runStatusHandler returns one run by id, in-flight or archived
func (s *Server) runStatusHandler(w http.ResponseWriter, r *http.Request) {
	run, err := s.coordinator.RunStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			RenderError(w, r, err, http.StatusNotFound)
			return
		}
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, run)
}

// cancelRunHandler requests cancellation of the in-flight run
func (s *Server) cancelRunHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.CancelRun(r.PathValue("id")); err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			RenderError(w, r, err, http.StatusNotFound)
			return
		}
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusAccepted, map[string]string{"result": "cancellation requested"})
}

// progressHandler returns the current progress snapshot
func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request) {
	RenderJSON(w, r, http.StatusOK, s.progress.Snapshot())
}

// progressStreamHandler pushes progress updates as server-sent events until
// the client disconnects or the run reaches a terminal status
func (s *Server) progressStreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		RenderError(w, r, fmt.Errorf("streaming not supported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates := s.progress.Subscribe(r.Context())

	// send the current state first so late subscribers are not blind
	if err := writeEvent(w, s.progress.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, u); err != nil {
				return
			}
			flusher.Flush()
			if u.Status.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// listRecordsHandler returns persisted records, newest first
func (s *Server) listRecordsHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	records, err := s.records.ListRecords(r.Context(), limit, offset)
	if err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string]interface{}{"records": records})
}

// getRecordHandler returns one record by identity
func (s *Server) getRecordHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.lifecycle.Get(r.Context(), r.PathValue("identity"))
	if err != nil {
		renderRecordError(w, r, err)
		return
	}
	RenderJSON(w, r, http.StatusOK, rec)
}

// stateRequest is the body of a state transition call
type stateRequest struct {
	State string `json:"state"`
	User  string `json:"user"`
}

// updateStateHandler applies a lifecycle transition to a record
func (s *Server) updateStateHandler(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RenderError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}

	rec, err := s.lifecycle.Transition(r.Context(), r.PathValue("identity"), domain.RecordState(req.State), req.User)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			RenderError(w, r, err, http.StatusBadRequest)
			return
		}
		renderRecordError(w, r, err)
		return
	}
	RenderJSON(w, r, http.StatusOK, rec)
}

// commentRequest is the body of an add-comment call
type commentRequest struct {
	Text string `json:"text"`
	User string `json:"user"`
}

// addCommentHandler appends a comment to a record
func (s *Server) addCommentHandler(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RenderError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}

	comment, err := s.lifecycle.Comment(r.Context(), r.PathValue("identity"), req.Text, req.User)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownIdentity) {
			RenderError(w, r, err, http.StatusNotFound)
			return
		}
		RenderError(w, r, err, http.StatusBadRequest)
		return
	}
	RenderJSON(w, r, http.StatusCreated, comment)
}

// listCommentsHandler returns all comments for a record
func (s *Server) listCommentsHandler(w http.ResponseWriter, r *http.Request) {
	comments, err := s.lifecycle.Comments(r.Context(), r.PathValue("identity"))
	if err != nil {
		renderRecordError(w, r, err)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string]interface{}{"comments": comments})
}

// historyHandler returns the audit trail for a record
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	history, err := s.lifecycle.History(r.Context(), r.PathValue("identity"))
	if err != nil {
		renderRecordError(w, r, err)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string]interface{}{"history": history})
}

// exportHandler streams all records as a CSV download
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="feedlens-export.csv"`)
	if err := s.records.ExportCSV(r.Context(), w); err != nil {
		// headers are out already, all we can do is log
		log.Printf("[ERROR] csv export failed: %v", err)
	}
}

func renderRecordError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrUnknownIdentity) {
		RenderError(w, r, err, http.StatusNotFound)
		return
	}
	RenderError(w, r, err, http.StatusInternalServerError)
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
