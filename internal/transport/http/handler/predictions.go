package handler

import (
	"net/http"

	"github.com/growsmart/internal/application/prediction"
	"github.com/growsmart/internal/transport/http/middleware"
)

type PredictionHandler struct {
	shells ShellSource
}

func NewPredictionHandler(shells ShellSource) *PredictionHandler {
	return &PredictionHandler{shells: shells}
}

func (h *PredictionHandler) Rainfall(w http.ResponseWriter, r *http.Request) {
	var in prediction.RainfallInput
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s, ok := shellOrError(w, h.shells, r)
	if !ok {
		return
	}
	res, err := s.PredictRainfall(r.Context(), middleware.SubjectFromContext(r.Context()), in)
	writeResult(w, res, err)
}

func (h *PredictionHandler) Crop(w http.ResponseWriter, r *http.Request) {
	var in prediction.CropInput
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s, ok := shellOrError(w, h.shells, r)
	if !ok {
		return
	}
	res, err := s.PredictCrop(r.Context(), middleware.SubjectFromContext(r.Context()), in)
	writeResult(w, res, err)
}

func (h *PredictionHandler) Yield(w http.ResponseWriter, r *http.Request) {
	var in prediction.YieldInput
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s, ok := shellOrError(w, h.shells, r)
	if !ok {
		return
	}
	res, err := s.PredictYield(r.Context(), middleware.SubjectFromContext(r.Context()), in)
	writeResult(w, res, err)
}

// writeResult answers 200 whenever a prediction was produced, saved or not.
func writeResult(w http.ResponseWriter, res prediction.Result, err error) {
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
