package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/cartoprint/cartoprint/pkg/infrastructure/logging"
	"github.com/cartoprint/cartoprint/pkg/storage"
	"github.com/cartoprint/cartoprint/pkg/util"
)

// maxUploadBytes bounds request bodies before the store's own size check
// runs, so a runaway upload cannot exhaust memory.
const maxUploadBytes = 256 * 1024 * 1024

type server struct {
	store      *storage.Store
	reconciler *storage.Reconciler
	logger     *logging.Logger
	maxUpload  int64
}

func newServer(store *storage.Store, reconciler *storage.Reconciler, logger *logging.Logger) *server {
	return &server{
		store:      store,
		reconciler: reconciler,
		logger:     logger.WithComponent("http"),
		maxUpload:  maxUploadBytes,
	}
}

func (s *server) registerRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	router.HandleFunc("/generated-maps/{namespace}/{filename}", s.handleDownload).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/artifacts", s.handleSave).Methods(http.MethodPost)
	api.HandleFunc("/artifacts", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/artifacts/{namespace}/{filename}", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/artifacts/{namespace}/{filename}/verify", s.handleVerify).Methods(http.MethodGet)
	api.HandleFunc("/artifacts/{namespace}/{filename}/move", s.handleMove).Methods(http.MethodPost)
	api.HandleFunc("/stats/{namespace}", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/reconcile", s.handleReconcile).Methods(http.MethodPost)
	api.HandleFunc("/audit", s.handleAudit).Methods(http.MethodPost)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSave accepts the raw payload as the request body; ownership
// metadata arrives in query parameters. Bodies over the upload limit are
// rejected outright: a truncated payload stored as if complete would pass
// its own checksum and hide the loss.
func (s *server) handleSave(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, storage.NewError(storage.KindFileTooLarge, "request body exceeds upload limit", err).
				WithDetail("max_bytes", s.maxUpload))
			return
		}
		s.writeError(w, storage.NewError(storage.KindIOError, "failed to read request body", err))
		return
	}

	query := r.URL.Query()
	req := storage.SaveRequest{
		Data:       data,
		OwnerID:    query.Get("owner"),
		ResourceID: query.Get("resource"),
		Variant:    query.Get("variant"),
		Extension:  query.Get("ext"),
		Namespace:  storage.Namespace(query.Get("namespace")),
	}
	if format := query.Get("format"); format != "" {
		req.Extra = map[string]string{"format": format}
	}

	stored, saveErr := s.store.Save(r.Context(), req)
	if saveErr != nil {
		s.writeError(w, saveErr)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	filename := vars["filename"]
	ns := storage.Namespace(vars["namespace"])

	file, err := s.store.Open(filename, ns)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer file.Close()

	info, statErr := file.Stat()
	if statErr != nil {
		s.writeError(w, storage.NewError(storage.KindIOError, "failed to stat payload", statErr))
		return
	}
	http.ServeContent(w, r, filename, info.ModTime(), file)
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ns := storage.Namespace(query.Get("namespace"))
	if ns == "" {
		ns = storage.NamespaceTemporary
	}

	opts := storage.ListOptions{
		OwnerID: query.Get("owner"),
		Variant: query.Get("variant"),
		Offset:  parseIntParam(query.Get("offset")),
		Limit:   parseIntParam(query.Get("limit")),
	}

	entries, err := s.store.List(r.Context(), ns, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"namespace": ns,
		"count":     len(entries),
		"artifacts": entries,
	})
}

func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := s.store.Verify(r.Context(), vars["filename"], storage.Namespace(vars["namespace"]))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleMove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var body struct {
		To storage.Namespace `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, storage.NewValidationError("body", "expected JSON with a \"to\" namespace"))
		return
	}

	stored, err := s.store.Move(r.Context(), vars["filename"], storage.Namespace(vars["namespace"]), body.To)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.store.Delete(r.Context(), vars["filename"], storage.Namespace(vars["namespace"])); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	stats, err := s.store.Stats(r.Context(), storage.Namespace(vars["namespace"]))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"namespace":   stats.Namespace,
		"count":       stats.Count,
		"total_bytes": stats.TotalBytes,
		"total_human": util.FormatBytes(stats.TotalBytes),
	})
}

func (s *server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.reconciler.Sweep(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.Audit(r.Context(), parseIntParam(r.URL.Query().Get("workers")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// writeError relays a classified storage error with its stable status code
// and fixed user message. Structured details stay in the server log; the
// response body carries only the user-facing fields.
func (s *server) writeError(w http.ResponseWriter, err error) {
	var serr *storage.StorageError
	if !errors.As(err, &serr) {
		serr = storage.NewError(storage.KindIOError, "unclassified failure", err)
	}

	resp := serr.ToResponse()
	s.logger.Warn("request failed", map[string]interface{}{
		"kind":    string(resp.Body.Error),
		"status":  resp.Status,
		"details": resp.Body.Details,
	})

	resp.Body.Details = nil
	writeJSON(w, resp.Status, resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func parseIntParam(value string) int {
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
