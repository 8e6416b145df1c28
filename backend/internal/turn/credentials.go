// Package turn vends coturn-compatible TURN REST credentials
// (use-auth-secret mode).
//
//	username   = <unix_expiry>:<user>
//	credential = base64(hmac_sha1(secret, username))
package turn

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTTL  = 24 * time.Hour
	DefaultUser = "talkr-user"
)

type Credentials struct {
	Username   string
	Credential string
	Expiry     time.Time
}

type Config struct {
	Secret string
	TTL    time.Duration
	User   string
	Now    func() time.Time
}

type Generator struct {
	secret []byte
	ttl    time.Duration
	user   string
	now    func() time.Time
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Secret == "" {
		return nil, errors.New("turn: shared secret is required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < time.Second {
		return nil, errors.New("turn: ttl must be at least one second")
	}
	if cfg.User == "" {
		cfg.User = DefaultUser
	}
	if strings.Contains(cfg.User, ":") {
		return nil, errors.New("turn: user must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Generator{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		user:   cfg.User,
		now:    cfg.Now,
	}, nil
}

// Generate returns credentials that expire TTL from now.
func (g *Generator) Generate() Credentials {
	expiry := g.now().UTC().Add(g.ttl).Truncate(time.Second)
	username := strconv.FormatInt(expiry.Unix(), 10) + ":" + g.user
	return Credentials{
		Username:   username,
		Credential: Sign(g.secret, username),
		Expiry:     expiry,
	}
}

func Sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
