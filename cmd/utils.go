package cmd

import (
	"flag"
	"log"
	"log/slog"

	"nautilus-server/internal/attestation"
	"nautilus-server/internal/database"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func CreateSigner(scheme, keyHex string) attestation.Signer {
	if keyHex == "" {
		slog.Warn("no signing key provided, generating an ephemeral key pair", "scheme", scheme)
	}

	signer, err := attestation.NewSigner(scheme, keyHex)
	if err != nil {
		log.Fatalf("Failed to create signer: %v", err)
	}

	slog.Info("signing key ready", "scheme", signer.Scheme(), "public_key", attestation.HexBytes(signer.PublicKey()).String())
	return signer
}

func CreateLedger(databaseURL string) *database.Ledger {
	if databaseURL == "" {
		slog.Info("DATABASE_URL not set, attestation ledger disabled")
		return nil
	}

	db, err := database.NewDatabase(databaseURL)
	if err != nil {
		log.Fatalf("Failed to open attestation ledger: %v", err)
	}

	return database.NewLedger(db)
}
