package media

import (
	"context"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Store manages merchant gallery images hosted on Cloudinary. Uploads happen
// client-side with signed parameters; the backend signs requests, removes
// assets and verifies webhook notifications.
type Store struct {
	cld       *cloudinary.Cloudinary
	apiSecret string
}

func NewStore(cloudName, apiKey, apiSecret string) (*Store, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, errors.New("cloudinary credentials not configured")
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary init: %w", err)
	}
	return &Store{cld: cld, apiSecret: apiSecret}, nil
}

// Destroy removes an uploaded asset by its public ID.
func (s *Store) Destroy(ctx context.Context, publicID string) error {
	resp, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return err
	}
	if resp.Result != "ok" && resp.Result != "not found" {
		return fmt.Errorf("cloudinary destroy: %s", resp.Result)
	}
	return nil
}

// VerifyWebhookSignature checks Cloudinary's notification signature:
// SHA-1 over the raw body concatenated with the timestamp and the API secret.
func (s *Store) VerifyWebhookSignature(body []byte, timestamp, signature string) bool {
	return VerifySignature(body, timestamp, signature, s.apiSecret)
}

func VerifySignature(body []byte, timestamp, signature, apiSecret string) bool {
	if timestamp == "" || signature == "" {
		return false
	}
	sum := sha1.Sum(append(append([]byte{}, body...), []byte(timestamp+apiSecret)...))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
