package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// SignatureParam is the query field carrying the HMAC.
const SignatureParam = "signature"

// Signer computes HMAC-SHA512 signatures over canonical query strings.
type Signer struct {
	secret []byte
}

// NewSigner builds a signer for the shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// CanonicalQuery sorts keys ASCII-ascending, percent-encodes keys and values with spaces
// as %20 and joins the pairs with &. Every field except the signature is included, empty
// values as "key=".
func CanonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == SignatureParam {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(encode(k))
		b.WriteByte('=')
		b.WriteString(encode(params[k]))
	}
	return b.String()
}

func encode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Sign returns the lowercase hex HMAC of the canonical query.
func (s *Signer) Sign(params map[string]string) string {
	return s.sign(CanonicalQuery(params))
}

func (s *Signer) sign(query string) string {
	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over every field except signature itself.
func (s *Signer) Verify(params map[string]string) bool {
	given := strings.ToLower(strings.TrimSpace(params[SignatureParam]))
	if given == "" {
		return false
	}
	expected := s.Sign(params)
	return hmac.Equal([]byte(expected), []byte(given))
}

// SignedQuery returns the canonical query with &signature=<hex> appended.
func (s *Signer) SignedQuery(params map[string]string) string {
	query := CanonicalQuery(params)
	return query + "&" + SignatureParam + "=" + s.sign(query)
}
