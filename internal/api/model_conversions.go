package api

import (
	"encoding/hex"
	"encoding/json"

	"nautilus-server/internal/database"
	"nautilus-server/pkg/api"
)

func convertAttestation(r database.AttestationRecord) api.Attestation {
	publicKey, _ := hex.DecodeString(r.PublicKey)
	return api.Attestation{
		Id:           r.Id,
		Computation:  r.Computation,
		Scheme:       r.Scheme,
		PublicKey:    publicKey,
		CreationTime: r.CreationTime,
		Signed:       json.RawMessage(r.Envelope),
	}
}

func convertAttestations(rs []database.AttestationRecord) []api.Attestation {
	attestations := make([]api.Attestation, 0, len(rs))
	for _, r := range rs {
		attestations = append(attestations, convertAttestation(r))
	}
	return attestations
}
