package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// KeyPair is PEM-encoded ECDSA P-256 material. It only mints a stable public
// identifier for ledger attribution; nothing in this module signs with it.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// GenerateKeyPair mints a fresh P-256 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(pk)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&pk.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return &KeyPair{
		PublicKey:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		PrivateKey: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
	}, nil
}

// Fingerprint is the SHA-256 of the public key PEM, used as the attribution id
// in ledger payloads.
func (k *KeyPair) Fingerprint() string {
	return HashString(k.PublicKey)
}
