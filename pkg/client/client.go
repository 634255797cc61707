package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nautilus-server/internal/attestation"
	"nautilus-server/pkg/api"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	client *resty.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
	}
}

func errorMessage(res *resty.Response) string {
	var body api.ErrorResponse
	if err := json.Unmarshal(res.Body(), &body); err == nil && body.Error != "" {
		return body.Error
	}
	return res.String()
}

func (c *Client) HealthCheck(ctx context.Context) (api.HealthCheckResponse, error) {
	var health api.HealthCheckResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetResult(&health).
		Get("/health_check")
	if err != nil {
		return api.HealthCheckResponse{}, fmt.Errorf("error calling health_check: %w", err)
	}
	if !res.IsSuccess() {
		return api.HealthCheckResponse{}, fmt.Errorf("health_check returned status %d: %s", res.StatusCode(), errorMessage(res))
	}
	return health, nil
}

func (c *Client) ProcessData(ctx context.Context, payload api.MLRequest) (api.ProcessedDataResponse, error) {
	var signed api.ProcessedDataResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(api.ProcessDataRequest[api.MLRequest]{Payload: payload}).
		SetResult(&signed).
		Post("/process_data")
	if err != nil {
		return api.ProcessedDataResponse{}, fmt.Errorf("error calling process_data: %w", err)
	}
	if !res.IsSuccess() {
		return api.ProcessedDataResponse{}, fmt.Errorf("process_data returned status %d: %s", res.StatusCode(), errorMessage(res))
	}
	return signed, nil
}

// Verifier checks attestations against the public key the enclave reported
// from its health check.
type Verifier struct {
	scheme    string
	publicKey []byte
	intent    attestation.IntentScope
}

func NewVerifier(health api.HealthCheckResponse) *Verifier {
	return &Verifier{scheme: health.Scheme, publicKey: health.PublicKey, intent: attestation.ProcessData}
}

func (v *Verifier) Verify(signed api.ProcessedDataResponse) error {
	if signed.Response.Intent != v.intent {
		return fmt.Errorf("unexpected intent scope %s, expected %s", signed.Response.Intent, v.intent)
	}
	return attestation.Verify(v.scheme, v.publicKey, signed)
}
