package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/amillerrr/lms-pipeline/internal/config"
	"github.com/amillerrr/lms-pipeline/pkg/models"
)

// Signer produces time-limited, tamper-evident playback URLs. It is pure and
// stateless: no I/O, no clocks of its own.
type Signer struct {
	libraryID  string
	cdnHost    string
	embedHost  string
	signingKey string
	apiKey     string
	ttl        time.Duration
}

// NewSigner creates a Signer from configuration.
func NewSigner(cfg *config.Config) *Signer {
	ttl := cfg.Provider.PlaybackTTL
	if ttl <= 0 {
		ttl = config.DefaultPlaybackTTL
	}
	return &Signer{
		libraryID:  cfg.Provider.LibraryID,
		cdnHost:    cfg.Provider.CDNHost,
		embedHost:  cfg.Provider.EmbedHost,
		signingKey: cfg.Provider.SigningKey,
		apiKey:     cfg.Provider.APIKey,
		ttl:        ttl,
	}
}

// token computes the provider's URL auth digest: a hex SHA-256 over the
// concatenation of the signing key, the remote video id, and the expiry
// epoch. The same inputs always produce the same token.
func (s *Signer) token(remoteVideoID string, expires int64) string {
	sum := sha256.Sum256([]byte(s.signingKey + remoteVideoID + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(sum[:])
}

// SignedStreamURL returns the HLS playlist URL for a remote video with token
// auth query parameters. Tokens expire; there is no revocation list.
func (s *Signer) SignedStreamURL(remoteVideoID string, now time.Time) (string, error) {
	if s.libraryID == "" {
		return "", models.ErrProviderNotConfigured
	}
	if remoteVideoID == "" {
		return "", models.ErrMissingRemoteVideoID
	}

	expires := now.Add(s.ttl).Unix()
	u := url.URL{
		Scheme: "https",
		Host:   s.cdnHost,
		Path:   fmt.Sprintf("/%s/playlist.m3u8", remoteVideoID),
	}
	q := u.Query()
	q.Set("token", s.token(remoteVideoID, expires))
	q.Set("expires", strconv.FormatInt(expires, 10))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// SignedEmbedURL returns the iframe embed URL. When no signing key is
// configured it degrades to an unsigned embed link; callers must not treat
// that as access control.
func (s *Signer) SignedEmbedURL(remoteVideoID string, now time.Time) (string, error) {
	if s.libraryID == "" {
		return "", models.ErrProviderNotConfigured
	}
	if remoteVideoID == "" {
		return "", models.ErrMissingRemoteVideoID
	}

	u := url.URL{
		Scheme: "https",
		Host:   s.embedHost,
		Path:   fmt.Sprintf("/embed/%s/%s", s.libraryID, remoteVideoID),
	}

	// Token auth disabled: unsigned embed link.
	if s.signingKey == "" {
		return u.String(), nil
	}

	expires := now.Add(s.ttl).Unix()
	q := u.Query()
	q.Set("token", s.token(remoteVideoID, expires))
	q.Set("expires", strconv.FormatInt(expires, 10))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// EmbedURL returns the plain embed link recorded on assets at ingest time.
// It is a best-effort default, not access control.
func (s *Signer) EmbedURL(remoteVideoID string) string {
	return fmt.Sprintf("https://%s/embed/%s/%s", s.embedHost, s.libraryID, remoteVideoID)
}

// ThumbnailURL returns the provider's conventional thumbnail location for a
// finished video.
func (s *Signer) ThumbnailURL(remoteVideoID string) string {
	return fmt.Sprintf("https://%s/%s/thumbnail.jpg", s.cdnHost, remoteVideoID)
}

// UploadSignature produces the presigned digest for client-direct uploads:
// hex SHA-256 over libraryID + apiKey + expiry + videoID, per the provider's
// resumable upload scheme.
func (s *Signer) UploadSignature(remoteVideoID string, expires int64) (string, error) {
	if s.libraryID == "" {
		return "", models.ErrProviderNotConfigured
	}
	if remoteVideoID == "" {
		return "", models.ErrMissingRemoteVideoID
	}

	sum := sha256.Sum256([]byte(s.libraryID + s.apiKey + strconv.FormatInt(expires, 10) + remoteVideoID))
	return hex.EncodeToString(sum[:]), nil
}

// TTL exposes the configured playback lifetime so callers can report expiry.
func (s *Signer) TTL() time.Duration { return s.ttl }
