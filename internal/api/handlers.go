package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
	"github.com/ibh-daai/bone-mineral-density/internal/middleware"
	"github.com/ibh-daai/bone-mineral-density/internal/service"
	"github.com/ibh-daai/bone-mineral-density/pkg/orthanc"
	"github.com/ibh-daai/bone-mineral-density/pkg/sr"
)

const defaultListLimit = 50

// handleHealth reports liveness and the state of each dependency
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	checks := make(map[string]string, len(s.deps.Checks))
	for name, checker := range s.deps.Checks {
		if err := checker.Ping(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
		"checks":    checks,
	})
}

// handleInterpret ingests one structured report sent as DICOM JSON or as a
// DICOM file and returns its interpretation
func (s *Server) handleInterpret(c *gin.Context) {
	opts, err := processOptions(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.abort(c, http.StatusRequestEntityTooLarge, domain.ErrInvalidInput, "request body too large", err)
			return
		}
		s.abort(c, http.StatusBadRequest, domain.ErrInvalidInput, "failed to read request body", err)
		return
	}
	if len(body) == 0 {
		s.abort(c, http.StatusBadRequest, domain.ErrInvalidInput, "empty request body", nil)
		return
	}

	root, err := decodeDocument(c.ContentType(), body)
	if err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrParse, "failed to decode structured report", err)
		return
	}

	result, err := s.deps.Processor.ProcessDocument(c.Request.Context(), root, opts)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleGetResults lists the stored results of an accession
func (s *Server) handleGetResults(c *gin.Context) {
	accession := c.Param("accession")
	records, err := s.deps.Results.GetResultsByAccession(c.Request.Context(), accession)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to load results", err)
		return
	}
	if len(records) == 0 {
		s.abort(c, http.StatusNotFound, domain.ErrResourceNotFound, "no results for accession "+accession, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accession": accession, "results": records})
}

// handleListResults lists the most recent results
func (s *Server) handleListResults(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(c, domain.NewValidationError("limit", "must be a positive integer", raw))
			return
		}
		limit = n
	}

	records, err := s.deps.Results.ListResults(c.Request.Context(), limit)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to list results", err)
		return
	}
	if records == nil {
		records = []*domain.ResultRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(records), "results": records})
}

// handleProcessStudy pulls an archive study and interprets it
func (s *Server) handleProcessStudy(c *gin.Context) {
	opts, err := processOptions(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.deps.Processor.ProcessStudy(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// decodeDocument picks the reader by content type: DICOM files are parsed
// as binary, everything else as DICOM JSON
func decodeDocument(contentType string, body []byte) (sr.Item, error) {
	if contentType == "application/dicom" {
		return sr.ParseReader(bytes.NewReader(body), int64(len(body)))
	}
	return sr.FromJSON(body)
}

var historyFlags = []string{
	"fracture_history",
	"glucocorticoid_history",
	"hip_fracture",
	"vertebral_fracture",
	"two_or_more_fractures",
	"comparison_suppressed",
	"skip_send",
}

func processOptions(c *gin.Context) (service.ProcessOptions, error) {
	flags := make(map[string]bool, len(historyFlags))
	for _, name := range historyFlags {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return service.ProcessOptions{}, domain.NewValidationError(name, "must be a boolean", raw)
		}
		flags[name] = v
	}

	return service.ProcessOptions{
		History: domain.FragilityHistory{
			FractureHistory:        flags["fracture_history"],
			GlucocorticoidHistory:  flags["glucocorticoid_history"],
			PriorHipFracture:       flags["hip_fracture"],
			PriorVertebralFracture: flags["vertebral_fracture"],
			TwoOrMoreFractures:     flags["two_or_more_fractures"],
		},
		ComparisonSuppressed: flags["comparison_suppressed"],
		SkipSend:             flags["skip_send"],
	}, nil
}

// respondError maps service errors onto HTTP status codes
func (s *Server) respondError(c *gin.Context, err error) {
	var validation *domain.ValidationError
	var status *orthanc.StatusError

	switch {
	case errors.As(err, &validation):
		s.abort(c, http.StatusBadRequest, domain.ErrValidation, validation.Error(), nil)
	case errors.Is(err, sr.ErrNotContainer), errors.Is(err, sr.ErrMissingAttribute):
		s.abort(c, http.StatusUnprocessableEntity, domain.ErrParse, "malformed structured report", err)
	case errors.Is(err, domain.ErrAlreadyProcessed):
		s.abort(c, http.StatusConflict, domain.ErrInvalidInput, "report already processed", err)
	case errors.Is(err, domain.ErrNoBMDValues), errors.Is(err, domain.ErrNoScores):
		s.abort(c, http.StatusUnprocessableEntity, domain.ErrInterpretation, "study cannot be interpreted", err)
	case errors.Is(err, domain.ErrNotFound):
		s.abort(c, http.StatusNotFound, domain.ErrResourceNotFound, "not found", err)
	case errors.As(err, &status) && status.Code == http.StatusNotFound:
		s.abort(c, http.StatusNotFound, domain.ErrResourceNotFound, "study not found in archive", err)
	case errors.Is(err, orthanc.ErrStatus), errors.Is(err, service.ErrNoArchive):
		s.abort(c, http.StatusBadGateway, domain.ErrArchive, "archive request failed", err)
	default:
		s.abort(c, http.StatusInternalServerError, domain.ErrInternalServer, "processing failed", err)
	}
}

func (s *Server) abort(c *gin.Context, code int, errCode, message string, cause error) {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	requestID := c.GetString(middleware.CorrelationIDKey)

	fields := logrus.Fields{
		"correlation_id": requestID,
		"code":           errCode,
		"status":         code,
	}
	if cause != nil {
		fields["error"] = cause
	}
	if code >= http.StatusInternalServerError {
		s.logger.WithFields(fields).Error(message)
	} else {
		s.logger.WithFields(fields).Debug(message)
	}

	c.AbortWithStatusJSON(code, domain.NewProcessingError(errCode, message, details, requestID))
}
