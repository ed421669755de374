package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargeslot/backend/services/booking-service/internal/models"
)

func TestCanonicalQuerySortsAndEncodes(t *testing.T) {
	query := CanonicalQuery(map[string]string{
		"txn_ref":    "abc",
		"amount":     "150000",
		"order_info": "Pay for slot #4",
		"signature":  "ignored",
		"empty":      "",
	})

	assert.Equal(t, "amount=150000&empty=&order_info=Pay%20for%20slot%20%234&txn_ref=abc", query)
}

func TestVerifyCoversEmptyFields(t *testing.T) {
	signer := NewSigner("secret")
	params := map[string]string{"txn_ref": "abc", "amount": "100", "bank_code": ""}
	params[SignatureParam] = signer.Sign(params)
	assert.True(t, signer.Verify(params))

	dropped := copyParams(params)
	delete(dropped, "bank_code")
	assert.False(t, signer.Verify(dropped), "removing an empty field changes the signed query")

	filled := copyParams(params)
	filled["bank_code"] = "NCB"
	assert.False(t, signer.Verify(filled))

	added := copyParams(params)
	added["note"] = ""
	assert.False(t, signer.Verify(added))
}

func TestSignMatchesHMACSHA512(t *testing.T) {
	signer := NewSigner("secret")
	params := map[string]string{"b": "2", "a": "1"}

	mac := hmac.New(sha512.New, []byte("secret"))
	mac.Write([]byte("a=1&b=2"))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, signer.Sign(params))
	assert.Equal(t, "a=1&b=2&signature="+want, signer.SignedQuery(params))
}

func TestVerify(t *testing.T) {
	signer := NewSigner("secret")
	params := map[string]string{"txn_ref": "abc", "amount": "100", "response_code": "00"}
	params[SignatureParam] = signer.Sign(params)

	assert.True(t, signer.Verify(params))

	upper := copyParams(params)
	upper[SignatureParam] = strings.ToUpper(upper[SignatureParam])
	assert.True(t, signer.Verify(upper))

	tampered := copyParams(params)
	tampered["amount"] = "1000"
	assert.False(t, signer.Verify(tampered))

	missing := copyParams(params)
	delete(missing, SignatureParam)
	assert.False(t, signer.Verify(missing))

	assert.False(t, NewSigner("other").Verify(params))
}

func TestPaymentURLRoundTrip(t *testing.T) {
	client, err := NewClient(Config{
		PayURL:    "https://pay.example.com/paymentv2/vpcpay.html",
		Merchant:  "CHARGESLOT",
		Secret:    "secret",
	})
	require.NoError(t, err)

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	payment := &models.Payment{
		TxnRef:    "ref123",
		Amount:    1500,
		Type:      models.PaymentWalletTopup,
		CreatedAt: created,
	}

	raw, err := client.PaymentURL(payment, "10.0.0.1")
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "pay.example.com", parsed.Host)
	assert.True(t, strings.HasSuffix(parsed.RawQuery, "&signature="+parsed.Query().Get(SignatureParam)))

	params := map[string]string{}
	for k, v := range parsed.Query() {
		params[k] = v[0]
	}
	assert.Equal(t, "150000", params["amount"])
	assert.Equal(t, "ref123", params["txn_ref"])
	assert.Equal(t, "20260301100000", params["create_date"])
	assert.Equal(t, "20260301101500", params["expire_date"])
	assert.Contains(t, parsed.RawQuery, "return_url=&", "an unset return url is still signed")
	assert.True(t, client.Verify(params))
}

func TestNewClientRequiresSecret(t *testing.T) {
	_, err := NewClient(Config{PayURL: "https://pay.example.com"})
	assert.Error(t, err)
	_, err = NewClient(Config{Secret: "s"})
	assert.Error(t, err)
}

func copyParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
