package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/catcoverage/internal/aggregate"
	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/apperr"
	"github.com/starford/catcoverage/internal/coverage"
)

// Handler holds API route handlers.
type Handler struct {
	svc *coverage.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *coverage.Service) *Handler {
	return &Handler{svc: svc}
}

// current returns the loaded snapshot or writes 503 when there is none.
func (h *Handler) current(w http.ResponseWriter) (*coverage.Snapshot, bool) {
	snap, err := h.svc.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "no annotation file loaded")
		return nil, false
	}
	return snap, true
}

func sortField(r *http.Request) (aggregate.Field, bool) {
	switch r.URL.Query().Get("sort") {
	case "", "bytes", "volume":
		return aggregate.ByBytes, true
	case "files", "number":
		return aggregate.ByFiles, true
	default:
		return 0, false
	}
}

// Coverage handles GET /api/coverage.
//
//	@Summary		Full coverage report
//	@Tags			coverage
//	@Produce		json
//	@Success		200	{object}	CoverageResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/coverage [get]
func (h *Handler) Coverage(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, CoverageResponse{
		Checksum: snap.Checksum,
		LoadedAt: snap.LoadedAt,
		Report:   snap.Report,
	})
}

// Annotations handles GET /api/coverage/annotations.
//
//	@Summary		Totals per annotation
//	@Tags			coverage
//	@Produce		json
//	@Param			sort	query		string	false	"Sort field"	Enums(bytes, files)
//	@Success		200		{object}	AnnotationsResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/coverage/annotations [get]
func (h *Handler) Annotations(w http.ResponseWriter, r *http.Request) {
	field, ok := sortField(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "sort must be bytes or files")
		return
	}
	snap, ok := h.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, AnnotationsResponse{
		Annotations: aggregate.SortedAnnotations(snap.Report.ByAnnotation, field),
		Split:       snap.Report.Split,
	})
}

// Collections handles GET /api/coverage/collections.
//
//	@Summary		Totals per annotation and collection
//	@Tags			coverage
//	@Produce		json
//	@Param			sort		query		string	false	"Sort field"	Enums(bytes, files)
//	@Param			annotation	query		string	false	"Only this annotation"
//	@Param			limit		query		int		false	"Maximum rows"
//	@Success		200			{object}	CollectionsResponse
//	@Failure		400			{object}	errResponse
//	@Failure		503			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/coverage/collections [get]
func (h *Handler) Collections(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	field, ok := sortField(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "sort must be bytes or files")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	only := annotation.Annotation(q.Get("annotation"))

	snap, ok := h.current(w)
	if !ok {
		return
	}
	rows := make([]aggregate.Row, 0, len(snap.Report.ByKey))
	for _, row := range aggregate.Sorted(snap.Report.ByKey, field) {
		if only != "" && row.Annotation != only {
			continue
		}
		if limit > 0 && len(rows) == limit {
			break
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, CollectionsResponse{
		Collections: rows,
		Total:       snap.Report.Residual.Total,
	})
}

// AnnotationPaths handles GET /api/annotations/{annotation}.
//
//	@Summary		Directories carrying an annotation
//	@Tags			annotations
//	@Produce		json
//	@Param			annotation	path		string	true	"Annotation"
//	@Success		200			{object}	PathsResponse
//	@Failure		404			{object}	errResponse
//	@Failure		503			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations/{annotation} [get]
func (h *Handler) AnnotationPaths(w http.ResponseWriter, r *http.Request) {
	a := annotation.Annotation(chi.URLParam(r, "annotation"))
	if _, ok := h.current(w); !ok {
		return
	}
	paths, err := h.svc.Paths(a)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
		} else {
			slog.Error("annotation paths failed", slog.String("annotation", string(a)), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, PathsResponse{Annotation: a, Paths: paths, Total: len(paths)})
}
