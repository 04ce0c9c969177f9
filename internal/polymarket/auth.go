package polymarket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Credentials authenticate order submission against the CLOB.
// With secret and passphrase set, requests carry L2 HMAC headers.
// With only an API key, a Bearer token is sent instead.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
	Address    string // signer address for POLY_ADDRESS
}

// HasL2 reports whether full HMAC credentials are configured
func (c Credentials) HasL2() bool {
	return c.APIKey != "" && c.Secret != "" && c.Passphrase != ""
}

// Empty reports whether no credentials are configured at all
func (c Credentials) Empty() bool {
	return c.APIKey == ""
}

// apply sets auth headers on req. timestamp is unix seconds.
func (c Credentials) apply(req *http.Request, timestamp int64, method, path string, body []byte) error {
	if !c.HasL2() {
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}
		return nil
	}

	ts := strconv.FormatInt(timestamp, 10)
	signature, err := l2Signature(c.Secret, ts, method, path, body)
	if err != nil {
		return err
	}

	// Polymarket uses underscores, not hyphens
	req.Header.Set("POLY_API_KEY", c.APIKey)
	req.Header.Set("POLY_SIGNATURE", signature)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_PASSPHRASE", c.Passphrase)
	if c.Address != "" {
		req.Header.Set("POLY_ADDRESS", common.HexToAddress(c.Address).Hex())
	}
	return nil
}

// l2Signature signs timestamp + method + path + body with the url-safe
// base64 decoded secret, matching py-clob-client's hmac.py
func l2Signature(secret, timestamp, method, path string, body []byte) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}

	message := timestamp + method + path
	if len(body) > 0 {
		message += string(body)
	}

	h := hmac.New(sha256.New, key)
	h.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(h.Sum(nil)), nil
}

func decodeSecret(secret string) ([]byte, error) {
	if key, err := base64.URLEncoding.DecodeString(secret); err == nil {
		return key, nil
	}
	padded := secret
	if len(padded)%4 != 0 {
		padded += strings.Repeat("=", 4-len(padded)%4)
	}
	if key, err := base64.URLEncoding.DecodeString(padded); err == nil {
		return key, nil
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("polymarket: decode api secret: %w", err)
	}
	return key, nil
}
