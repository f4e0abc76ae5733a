package app

import "github.com/randevubu/randevubu-server/internal/auth"

// TokenConfig converts AuthConfig into token issuer parameters.
func (c AuthConfig) TokenConfig() auth.TokenConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}
	return auth.TokenConfig{
		Secret: c.JWT.Secret,
		Issuer: c.JWT.Issuer,
		TTL:    ttl,
	}
}

