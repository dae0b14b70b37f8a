package sheets

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const googleTokenURI = "https://oauth2.googleapis.com/token"

type serviceAccountKey struct {
	Type        string `json:"type"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// ServiceAccountJSON builds a service account key document from a client
// email and PEM private key. Literal "\n" sequences in the key, as found in
// single-line environment variables, become newlines.
func ServiceAccountJSON(clientEmail, privateKey string) ([]byte, error) {
	clientEmail = strings.TrimSpace(clientEmail)
	privateKey = strings.ReplaceAll(privateKey, `\n`, "\n")
	if clientEmail == "" || strings.TrimSpace(privateKey) == "" {
		return nil, errors.New("client email and private key are required")
	}
	if !strings.Contains(privateKey, "PRIVATE KEY") {
		return nil, errors.New("private key is not PEM encoded")
	}

	data, err := json.Marshal(serviceAccountKey{
		Type:        "service_account",
		ClientEmail: clientEmail,
		PrivateKey:  privateKey,
		TokenURI:    googleTokenURI,
	})
	if err != nil {
		return nil, fmt.Errorf("encode service account key: %w", err)
	}

	return data, nil
}
