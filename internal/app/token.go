package app

import (
	"time"

	"GasMonitorAPI/internal/auth"
)

// Token mints a viewer token with the configured secret and issuer.
func (a *App) Token(subject, role string, ttl time.Duration) (string, error) {
	sec := a.Config.Security
	mgr, err := auth.NewManager(sec.JWTSecret, sec.JWTIssuer, time.Duration(sec.JWTExpirationHours)*time.Hour)
	if err != nil {
		return "", err
	}
	return mgr.Mint(subject, role, ttl)
}
