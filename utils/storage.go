package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type serviceAccountJSON struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

func getGCSClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC; explicit JSON via GCS_CREDENTIALS_JSON for local runs.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// UploadStatementToGCS stores a generated statement and returns a V4 signed
// download URL. The bucket comes from STATEMENT_BUCKET.
func UploadStatementToGCS(ctx context.Context, objectKey string, data []byte, contentType string, expires time.Duration) (string, error) {
	bucket := strings.TrimSpace(os.Getenv("STATEMENT_BUCKET"))
	if bucket == "" {
		return "", errors.New("STATEMENT_BUCKET is required")
	}

	client, err := getGCSClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	wc := client.Bucket(bucket).Object(objectKey).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		return "", fmt.Errorf("failed to upload statement: %v", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %v", err)
	}

	credJSON := strings.TrimSpace(os.Getenv("GCS_CREDENTIALS_JSON"))
	if credJSON == "" {
		return "", errors.New("GCS_CREDENTIALS_JSON is required for signed statement URLs")
	}
	var sa serviceAccountJSON
	if err := json.Unmarshal([]byte(credJSON), &sa); err != nil {
		return "", fmt.Errorf("invalid GCS_CREDENTIALS_JSON: %v", err)
	}

	signedURL, err := storage.SignedURL(bucket, objectKey, &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        time.Now().Add(expires),
		GoogleAccessID: sa.ClientEmail,
		PrivateKey:     []byte(sa.PrivateKey),
	})
	if err != nil {
		return "", err
	}
	return signedURL, nil
}
