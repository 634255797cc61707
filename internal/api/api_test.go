package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	backend "nautilus-server/internal/api"
	"nautilus-server/internal/attestation"
	"nautilus-server/internal/compute"
	"nautilus-server/internal/core"
	"nautilus-server/internal/database"
	"nautilus-server/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockInvoker struct {
	outcome  compute.Outcome
	err      error
	requests []compute.Request
}

func (m *mockInvoker) Invoke(ctx context.Context, req compute.Request) (compute.Outcome, error) {
	m.requests = append(m.requests, req)
	if req.Computation != "ml_task" && req.Computation != "dummy_task" {
		return compute.Outcome{}, fmt.Errorf("%w: '%s'", compute.ErrUnknownComputation, req.Computation)
	}
	return m.outcome, m.err
}

func (m *mockInvoker) Computations() []string {
	return []string{"dummy_task", "ml_task"}
}

func (m *mockInvoker) DefaultComputation() string {
	return "ml_task"
}

type blockingInvoker struct {
	*mockInvoker
}

func (b *blockingInvoker) Invoke(ctx context.Context, req compute.Request) (compute.Outcome, error) {
	<-ctx.Done()
	return compute.Outcome{ExitCode: -1}, &compute.ExecutionError{Computation: req.Computation, ExitCode: -1, Err: ctx.Err()}
}

func createLedger(t *testing.T) *database.Ledger {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	return database.NewLedger(db)
}

func createRouter(t *testing.T, invoker *mockInvoker, ledger *database.Ledger) (chi.Router, attestation.Signer) {
	signer, err := attestation.GenerateEd25519Signer()
	require.NoError(t, err)

	processor := core.NewProcessor(invoker, attestation.NewBuilder(signer, attestation.ProcessData), 0)
	service := backend.NewEnclaveService(processor, invoker, ledger)

	router := chi.NewRouter()
	service.AddRoutes(router)
	return router, signer
}

func processData(t *testing.T, router chi.Router, payload api.MLRequest) *httptest.ResponseRecorder {
	body, err := json.Marshal(api.ProcessDataRequest[api.MLRequest]{Payload: payload})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/process_data", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func successfulInvoker() *mockInvoker {
	return &mockInvoker{outcome: compute.Outcome{Stdout: []byte("{\"accuracy\": 1, \"loss\": 0}\n")}}
}

func TestPing(t *testing.T) {
	router, _ := createRouter(t, successfulInvoker(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Pong!", rec.Body.String())
}

func TestHealthCheck(t *testing.T) {
	router, signer := createRouter(t, successfulInvoker(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health_check", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health api.HealthCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, signer.PublicKey(), []byte(health.PublicKey))
	assert.Equal(t, attestation.SchemeEd25519, health.Scheme)
	assert.Equal(t, "process_data", health.Intent)
	assert.Equal(t, []string{"dummy_task", "ml_task"}, health.Computations)
}

func TestProcessData(t *testing.T) {
	invoker := successfulInvoker()
	router, signer := createRouter(t, invoker, nil)

	rec := processData(t, router, api.MLRequest{DataPath: "/data/iris.csv"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var signed api.ProcessedDataResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signed))
	assert.Equal(t, api.MLResponse{Accuracy: 1, Loss: 0}, signed.Response.Data)
	assert.Equal(t, attestation.ProcessData, signed.Response.Intent)
	assert.NotZero(t, signed.Response.TimestampMs)
	require.NoError(t, attestation.Verify(signer.Scheme(), signer.PublicKey(), signed))

	require.Len(t, invoker.requests, 1)
	assert.Equal(t, compute.Request{Computation: "ml_task", Argument: "/data/iris.csv"}, invoker.requests[0])

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.ElementsMatch(t, []string{"response", "signature"}, keys(raw))
}

func TestProcessDataSelectsComputation(t *testing.T) {
	invoker := successfulInvoker()
	router, _ := createRouter(t, invoker, nil)

	rec := processData(t, router, api.MLRequest{DataPath: "$(reboot)", Computation: "dummy_task"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, invoker.requests, 1)
	assert.Equal(t, compute.Request{Computation: "dummy_task", Argument: "$(reboot)"}, invoker.requests[0])
}

func TestProcessDataUnknownComputation(t *testing.T) {
	router, _ := createRouter(t, successfulInvoker(), nil)

	rec := processData(t, router, api.MLRequest{DataPath: "x", Computation: "/bin/sh"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var res api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Contains(t, res.Error, "unknown computation")
}

func TestProcessDataFailureIsNotSigned(t *testing.T) {
	cases := map[string]*mockInvoker{
		"exit code": {
			outcome: compute.Outcome{ExitCode: 1, Stdout: []byte(`{"accuracy": 1, "loss": 0}`), Stderr: []byte("secret stack trace")},
			err:     &compute.ExecutionError{Computation: "ml_task", ExitCode: 1, Stderr: []byte("secret stack trace")},
		},
		"launch":         {err: fmt.Errorf("%w: ml_task: no such file or directory", compute.ErrLaunchFailure)},
		"schema":         {outcome: compute.Outcome{Stdout: []byte(`{"accuracy": 0.5, "loss": 0}`)}},
		"invalid utf-8":  {outcome: compute.Outcome{Stdout: []byte{0xff}}},
		"missing fields": {outcome: compute.Outcome{Stdout: []byte(`{}`)}},
	}

	for name, invoker := range cases {
		t.Run(name, func(t *testing.T) {
			ledger := createLedger(t)
			router, _ := createRouter(t, invoker, ledger)

			rec := processData(t, router, api.MLRequest{DataPath: "/data/iris.csv"})
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var raw map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
			assert.Equal(t, []string{"error"}, keys(raw))
			assert.NotContains(t, rec.Body.String(), "secret stack trace")

			records, err := ledger.List(context.Background(), 0, 0)
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestProcessDataBadRequest(t *testing.T) {
	invoker := successfulInvoker()
	router, _ := createRouter(t, invoker, nil)

	bodies := []string{
		"",
		"not json",
		"null",
		"{}",
		`{"payload": null}`,
		`{"payload": {}}`,
		`{"payload": {"computation": "ml_task"}}`,
		`{"payload": {"data_path": null}}`,
		`{"payload": {"data_path": 7}}`,
		`{"payload": "iris.csv"}`,
		`{"payload": {"data_path": "x"}} trailing`,
		`{"payload": {"data_path": "x"}}{"payload": {"data_path": "y"}}`,
	}

	for _, body := range bodies {
		req := httptest.NewRequest(http.MethodPost, "/process_data", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.NotContains(t, rec.Body.String(), "signature", body)
	}

	big := `{"payload": {"data_path": "` + strings.Repeat("a", 2<<20) + `"}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/process_data", strings.NewReader(big)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, invoker.requests)
}

func TestProcessDataAcceptsEmptyArgument(t *testing.T) {
	invoker := successfulInvoker()
	router, _ := createRouter(t, invoker, nil)

	req := httptest.NewRequest(http.MethodPost, "/process_data", strings.NewReader("{\"payload\": {\"data_path\": \"\"}}\n"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, invoker.requests, 1)
	assert.Equal(t, compute.Request{Computation: "ml_task", Argument: ""}, invoker.requests[0])
}

func TestProcessDataTimeout(t *testing.T) {
	signer, err := attestation.GenerateEd25519Signer()
	require.NoError(t, err)

	invoker := &blockingInvoker{mockInvoker: successfulInvoker()}
	processor := core.NewProcessor(invoker, attestation.NewBuilder(signer, attestation.ProcessData), 50*time.Millisecond)

	router := chi.NewRouter()
	backend.NewEnclaveService(processor, invoker, nil).AddRoutes(router)

	rec := processData(t, router, api.MLRequest{DataPath: "x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var res api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Contains(t, res.Error, "deadline exceeded")
}

func TestAttestationLedger(t *testing.T) {
	ledger := createLedger(t)
	router, signer := createRouter(t, successfulInvoker(), ledger)

	for i := 0; i < 3; i++ {
		rec := processData(t, router, api.MLRequest{DataPath: fmt.Sprintf("/data/%d.csv", i)})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attestations?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []api.Attestation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 2)
	assert.NotContains(t, rec.Body.String(), "/data/")

	for _, a := range listed {
		assert.Equal(t, "ml_task", a.Computation)
		assert.Equal(t, signer.Scheme(), a.Scheme)
		assert.Equal(t, signer.PublicKey(), []byte(a.PublicKey))

		var signed api.ProcessedDataResponse
		require.NoError(t, json.Unmarshal(a.Signed, &signed))
		require.NoError(t, attestation.Verify(a.Scheme, a.PublicKey, signed))
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attestations/"+listed[0].Id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var single api.Attestation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &single))
	assert.Equal(t, listed[0].Id, single.Id)
	assert.JSONEq(t, string(listed[0].Signed), string(single.Signed))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attestations/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attestations/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttestationLedgerDisabled(t *testing.T) {
	router, _ := createRouter(t, successfulInvoker(), nil)

	for _, path := range []string{"/attestations", "/attestations/" + uuid.NewString()} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := createRouter(t, successfulInvoker(), nil)
	require.Equal(t, http.StatusOK, processData(t, router, api.MLRequest{DataPath: "x"}).Code)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nautilus_process_data_requests_total")
	assert.Contains(t, rec.Body.String(), "nautilus_attestation_signed_total")
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
