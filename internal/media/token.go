package media

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"

	"github.com/G-Research/mediahammer/internal/common/util"
)

const (
	registerTokenType = "register"
	joinTokenType     = "join"
)

// ChannelClaim grants access to one channel.
type ChannelClaim struct {
	Id string `json:"id"`
}

// Claims is the body of a register or join token.
type Claims struct {
	jwt.RegisteredClaims
	Type          string         `json:"type"`
	ApplicationId string         `json:"applicationId"`
	UserId        string         `json:"userId"`
	DeviceId      string         `json:"deviceId"`
	ClientId      string         `json:"clientId"`
	Region        string         `json:"region,omitempty"`
	Channels      []ChannelClaim `json:"channels,omitempty"`
}

// TokenGenerator signs client tokens with the application's shared secret.
type TokenGenerator struct {
	SharedSecret string
	Lifetime     time.Duration
	Clock        util.Clock
}

func NewTokenGenerator(sharedSecret string) *TokenGenerator {
	return &TokenGenerator{
		SharedSecret: sharedSecret,
		Lifetime:     time.Hour,
		Clock:        &util.DefaultClock{},
	}
}

// RegisterToken authorises client to register without joining any channel.
func (g *TokenGenerator) RegisterToken(client Client) (string, error) {
	return g.sign(g.claims(client, registerTokenType))
}

// JoinToken authorises client to join channelId.
func (g *TokenGenerator) JoinToken(client Client, channelId string) (string, error) {
	claims := g.claims(client, joinTokenType)
	claims.Channels = []ChannelClaim{{Id: channelId}}
	return g.sign(claims)
}

func (g *TokenGenerator) claims(client Client, tokenType string) *Claims {
	config := client.Config()
	now := g.Clock.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.Lifetime)),
		},
		Type:          tokenType,
		ApplicationId: config.ApplicationId,
		UserId:        config.UserId,
		DeviceId:      config.DeviceId,
		ClientId:      client.Id(),
		Region:        config.Region,
	}
}

func (g *TokenGenerator) sign(claims *Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(g.SharedSecret))
	if err != nil {
		return "", errors.Wrap(err, "error signing token")
	}
	return signed, nil
}

// ParseToken verifies token against sharedSecret and returns its claims.
func ParseToken(token string, sharedSecret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(sharedSecret), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "invalid token")
	}
	return claims, nil
}

// IsJoinTokenFor reports whether the claims grant access to channelId.
func (c *Claims) IsJoinTokenFor(channelId string) bool {
	if c.Type != joinTokenType {
		return false
	}
	for _, channel := range c.Channels {
		if channel.Id == channelId {
			return true
		}
	}
	return false
}

// IsRegisterToken reports whether the claims are a register token.
func (c *Claims) IsRegisterToken() bool {
	return c.Type == registerTokenType
}
