package rest

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Signer produces Backpack instruction signatures: an ED25519 signature over
// "instruction=<name>&<sorted params>&timestamp=<ms>&window=<ms>".
type Signer struct {
	priv   ed25519.PrivateKey
	apiKey string
}

func NewSigner(apiKey, apiSecret string) (*Signer, error) {
	seed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(apiSecret))
	if err != nil {
		return nil, fmt.Errorf("decode api secret: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("api secret must be a base64 ed25519 seed")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	apiKey = strings.TrimSpace(apiKey)
	if pub, err := base64.StdEncoding.DecodeString(apiKey); err == nil && len(pub) == ed25519.PublicKeySize {
		if !bytes.Equal(pub, priv.Public().(ed25519.PublicKey)) {
			return nil, errors.New("api key does not match api secret")
		}
	}
	return &Signer{priv: priv, apiKey: apiKey}, nil
}

// Key returns the base64 verifying key sent as X-API-KEY.
func (s *Signer) Key() string {
	return s.apiKey
}

func (s *Signer) Sign(instruction string, params map[string]string, timestampMS, windowMS int64) string {
	var b strings.Builder
	b.WriteString("instruction=")
	b.WriteString(instruction)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("&")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(params[k])
	}
	fmt.Fprintf(&b, "&timestamp=%d&window=%d", timestampMS, windowMS)
	sig := ed25519.Sign(s.priv, []byte(b.String()))
	return base64.StdEncoding.EncodeToString(sig)
}
