package gateway

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chargeslot/backend/services/booking-service/internal/models"
)

const (
	dateLayout   = "20060102150405"
	minorUnits   = 100
	defaultTTL   = 15 * time.Minute
	orderTypeFmt = "chargeslot_%s"
)

// Config describes the merchant account at the redirect gateway.
type Config struct {
	PayURL    string
	Merchant  string
	Secret    string
	ReturnURL string
	Version   string
	Currency  string
	Locale    string
	TTL       time.Duration
}

// Client builds signed redirect URLs and verifies callbacks.
type Client struct {
	cfg    Config
	signer *Signer
	now    func() time.Time
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.PayURL) == "" {
		return nil, errors.New("gateway: pay url required")
	}
	if cfg.Secret == "" {
		return nil, errors.New("gateway: secret required")
	}
	if cfg.Version == "" {
		cfg.Version = "2.1.0"
	}
	if cfg.Currency == "" {
		cfg.Currency = "VND"
	}
	if cfg.Locale == "" {
		cfg.Locale = "vn"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return &Client{cfg: cfg, signer: NewSigner(cfg.Secret), now: time.Now}, nil
}

// Params returns the unsigned redirect parameters for a payment.
func (c *Client) Params(p *models.Payment, clientIP string) map[string]string {
	created := p.CreatedAt
	if created.IsZero() {
		created = c.now()
	}
	expires := created.Add(c.cfg.TTL)
	if p.ExpiresAt != nil {
		expires = *p.ExpiresAt
	}
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}

	orderInfo := p.Description
	if orderInfo == "" {
		orderInfo = fmt.Sprintf("Payment %s", p.TxnRef)
	}

	return map[string]string{
		"amount":      strconv.FormatInt(p.Amount*minorUnits, 10),
		"command":     "pay",
		"create_date": created.UTC().Format(dateLayout),
		"currency":    c.cfg.Currency,
		"expire_date": expires.UTC().Format(dateLayout),
		"ip_addr":     clientIP,
		"locale":      c.cfg.Locale,
		"merchant":    c.cfg.Merchant,
		"order_info":  orderInfo,
		"order_type":  fmt.Sprintf(orderTypeFmt, strings.ToLower(string(p.Type))),
		"return_url":  c.cfg.ReturnURL,
		"txn_ref":     p.TxnRef,
		"version":     c.cfg.Version,
	}
}

// PaymentURL returns the gateway redirect URL with the signature appended last.
func (c *Client) PaymentURL(p *models.Payment, clientIP string) (string, error) {
	if p.TxnRef == "" {
		return "", errors.New("gateway: payment has no txn ref")
	}
	sep := "?"
	if strings.Contains(c.cfg.PayURL, "?") {
		sep = "&"
	}
	return c.cfg.PayURL + sep + c.signer.SignedQuery(c.Params(p, clientIP)), nil
}

// Verify checks a callback's signature.
func (c *Client) Verify(params map[string]string) bool {
	return c.signer.Verify(params)
}

// Signer returns the signer shared with Verify.
func (c *Client) Signer() *Signer {
	return c.signer
}
