package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"nautilus-server/cmd"
	"nautilus-server/internal/core/utils"
	"nautilus-server/pkg/api"
	"nautilus-server/pkg/client"

	"github.com/caarlos0/env/v11"
)

type VerifyConfig struct {
	EnclaveURL string        `env:"ENCLAVE_URL" envDefault:"http://localhost:3000"`
	Timeout    time.Duration `env:"CLIENT_TIMEOUT" envDefault:"6m"`
}

type verifiedResult struct {
	response api.ProcessedDataResponse
	err      error
}

func main() {
	dataPath := flag.String("data-path", "", "argument passed to the computation")
	computation := flag.String("computation", "", "registered computation to run, the server default when empty")
	repeat := flag.Int("n", 1, "number of requests to send")
	workers := flag.Int("workers", 1, "number of concurrent requests")

	cmd.LoadEnvFile()

	var cfg VerifyConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	ctx := context.Background()
	c := client.New(cfg.EnclaveURL, cfg.Timeout)

	health, err := c.HealthCheck(ctx)
	if err != nil {
		log.Fatalf("Failed to reach enclave: %v", err)
	}
	log.Printf("enclave public key (%s): %s", health.Scheme, health.PublicKey)

	verifier := client.NewVerifier(health)
	payload := api.MLRequest{DataPath: *dataPath, Computation: *computation}

	requests := make([]api.MLRequest, max(*repeat, 1))
	for i := range requests {
		requests[i] = payload
	}

	worker := func(ctx context.Context, req api.MLRequest) (verifiedResult, error) {
		signed, err := c.ProcessData(ctx, req)
		if err != nil {
			return verifiedResult{}, err
		}
		return verifiedResult{response: signed, err: verifier.Verify(signed)}, nil
	}

	failed := 0
	for task := range utils.RunInPool(ctx, worker, requests, *workers) {
		if task.Error != nil {
			failed++
			fmt.Printf("request %d: failed: %v\n", task.Index, task.Error)
			continue
		}

		msg := task.Result.response.Response
		if task.Result.err != nil {
			failed++
			fmt.Printf("request %d: INVALID signature: %v\n", task.Index, task.Result.err)
			continue
		}
		fmt.Printf("request %d: verified accuracy=%d loss=%d timestamp_ms=%d\n", task.Index, msg.Data.Accuracy, msg.Data.Loss, msg.TimestampMs)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
