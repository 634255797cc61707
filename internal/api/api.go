package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"nautilus-server/internal/attestation"
	"nautilus-server/internal/compute"
	"nautilus-server/internal/core"
	"nautilus-server/internal/database"
	"nautilus-server/internal/metrics"
	"nautilus-server/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Catalog interface {
	Computations() []string

	DefaultComputation() string
}

type EnclaveService struct {
	processor *core.Processor
	catalog   Catalog
	ledger    *database.Ledger
	metrics   *metrics.PipelineMetrics
}

// NewEnclaveService wires the process_data pipeline to HTTP. ledger may be
// nil, in which case signed attestations are returned but not recorded.
func NewEnclaveService(processor *core.Processor, catalog Catalog, ledger *database.Ledger) *EnclaveService {
	return &EnclaveService{
		processor: processor,
		catalog:   catalog,
		ledger:    ledger,
		metrics:   metrics.NewPipelineMetrics(),
	}
}

func (s *EnclaveService) AddRoutes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("Pong!")) //nolint:errcheck
	})
	r.Get("/health_check", RestHandler(s.HealthCheck))
	r.Post("/process_data", RestHandler(s.ProcessData))
	r.Route("/attestations", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListAttestations))
		r.Get("/{attestation_id}", RestHandler(s.GetAttestation))
	})
	r.Handle("/metrics", promhttp.Handler())
}

func (s *EnclaveService) HealthCheck(r *http.Request) (any, error) {
	signer := s.processor.Signer()
	return api.HealthCheckResponse{
		PublicKey:    signer.PublicKey(),
		Scheme:       signer.Scheme(),
		Intent:       attestation.ProcessData.String(),
		Computations: s.catalog.Computations(),
	}, nil
}

func (s *EnclaveService) ProcessData(r *http.Request) (any, error) {
	req, err := ParseRequest[api.ProcessDataRequest[api.MLRequest]](r)
	if err != nil {
		return nil, err
	}

	computation := req.Payload.Computation
	if computation == "" {
		computation = s.catalog.DefaultComputation()
	}

	ctx := r.Context()

	signed, err := s.processor.Process(ctx, compute.Request{
		Computation: computation,
		Argument:    req.Payload.DataPath,
	})
	if err != nil {
		var stageErr *core.StageError
		if errors.As(err, &stageErr) && stageErr.Kind == core.KindInvalidRequest {
			return nil, CodedError(http.StatusBadRequest, err)
		}
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	if s.ledger != nil {
		// The attestation is already signed and valid; a ledger failure is
		// reported to operators but does not withhold it from the caller.
		if _, err := database.RecordAttestation(ctx, s.ledger, computation, s.processor.Signer(), signed); err != nil {
			s.metrics.RecordFailures.Inc()
			slog.Error("error recording attestation", "computation", computation, "error", err)
		}
	}

	return signed, nil
}

func (s *EnclaveService) ListAttestations(r *http.Request) (any, error) {
	if s.ledger == nil {
		return nil, CodedErrorf(http.StatusNotFound, "attestation ledger is not enabled")
	}

	params, err := ParseRequestQueryParams[api.ListAttestationsParams](r)
	if err != nil {
		return nil, err
	}

	records, err := s.ledger.List(r.Context(), params.Limit, params.Offset)
	if err != nil {
		slog.Error("error listing attestations", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving attestation records")
	}

	return convertAttestations(records), nil
}

func (s *EnclaveService) GetAttestation(r *http.Request) (any, error) {
	if s.ledger == nil {
		return nil, CodedErrorf(http.StatusNotFound, "attestation ledger is not enabled")
	}

	id, err := URLParamUUID(r, "attestation_id")
	if err != nil {
		return nil, err
	}

	record, err := s.ledger.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "attestation not found")
		}
		slog.Error("error getting attestation", "attestation_id", id, "error", err)
		return nil, CodedError(http.StatusInternalServerError, fmt.Errorf("error retrieving attestation record"))
	}

	return convertAttestation(record), nil
}
