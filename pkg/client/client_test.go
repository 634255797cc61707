package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	backend "nautilus-server/internal/api"
	"nautilus-server/internal/attestation"
	"nautilus-server/internal/compute"
	"nautilus-server/internal/core"
	"nautilus-server/pkg/api"
	"nautilus-server/pkg/client"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticInvoker struct {
	stdout string
}

func (s *staticInvoker) Invoke(ctx context.Context, req compute.Request) (compute.Outcome, error) {
	if req.Computation != "ml_task" {
		return compute.Outcome{}, compute.ErrUnknownComputation
	}
	return compute.Outcome{Stdout: []byte(s.stdout)}, nil
}

func (s *staticInvoker) Computations() []string { return []string{"ml_task"} }

func (s *staticInvoker) DefaultComputation() string { return "ml_task" }

func startEnclave(t *testing.T, scheme string, stdout string) *httptest.Server {
	signer, err := attestation.NewSigner(scheme, "")
	require.NoError(t, err)

	invoker := &staticInvoker{stdout: stdout}
	processor := core.NewProcessor(invoker, attestation.NewBuilder(signer, attestation.ProcessData), time.Minute)

	router := chi.NewRouter()
	backend.NewEnclaveService(processor, invoker, nil).AddRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestProcessDataAndVerify(t *testing.T) {
	for _, scheme := range []string{attestation.SchemeEd25519, attestation.SchemeSecp256k1} {
		t.Run(scheme, func(t *testing.T) {
			server := startEnclave(t, scheme, `{"accuracy": 93, "loss": 7}`)
			c := client.New(server.URL, 5*time.Second)

			health, err := c.HealthCheck(context.Background())
			require.NoError(t, err)
			assert.Equal(t, scheme, health.Scheme)

			signed, err := c.ProcessData(context.Background(), api.MLRequest{DataPath: "/data/iris.csv"})
			require.NoError(t, err)
			assert.Equal(t, api.MLResponse{Accuracy: 93, Loss: 7}, signed.Response.Data)

			verifier := client.NewVerifier(health)
			require.NoError(t, verifier.Verify(signed))

			signed.Response.Data.Loss = 0
			assert.ErrorIs(t, verifier.Verify(signed), attestation.ErrInvalidSignature)
		})
	}
}

func TestVerifyRejectsOtherEnclave(t *testing.T) {
	first := client.New(startEnclave(t, attestation.SchemeEd25519, `{"accuracy": 1, "loss": 0}`).URL, 5*time.Second)
	second := client.New(startEnclave(t, attestation.SchemeEd25519, `{"accuracy": 1, "loss": 0}`).URL, 5*time.Second)

	health, err := first.HealthCheck(context.Background())
	require.NoError(t, err)

	signed, err := second.ProcessData(context.Background(), api.MLRequest{DataPath: "x"})
	require.NoError(t, err)

	assert.Error(t, client.NewVerifier(health).Verify(signed))
}

func TestVerifyRejectsOtherIntent(t *testing.T) {
	c := client.New(startEnclave(t, attestation.SchemeEd25519, `{"accuracy": 1, "loss": 0}`).URL, 5*time.Second)

	health, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	signed, err := c.ProcessData(context.Background(), api.MLRequest{DataPath: "x"})
	require.NoError(t, err)

	signed.Response.Intent = 7
	assert.ErrorContains(t, client.NewVerifier(health).Verify(signed), "intent")
}

func TestProcessDataErrors(t *testing.T) {
	c := client.New(startEnclave(t, attestation.SchemeEd25519, `{"accuracy": -1}`).URL, 5*time.Second)

	_, err := c.ProcessData(context.Background(), api.MLRequest{DataPath: "x"})
	assert.ErrorContains(t, err, "status 500")
	assert.ErrorContains(t, err, "validating failed")

	_, err = c.ProcessData(context.Background(), api.MLRequest{DataPath: "x", Computation: "rm"})
	assert.ErrorContains(t, err, "status 400")
	assert.ErrorContains(t, err, "unknown computation")
}
