package apple

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// flexBool accepts both JSON booleans and the "true"/"false" strings Apple
// sometimes sends.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = flexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*b = flexBool(strings.EqualFold(s, "true"))
	return nil
}

type idClaims struct {
	Email          string   `json:"email"`
	EmailVerified  flexBool `json:"email_verified"`
	IsPrivateEmail flexBool `json:"is_private_email"`
	jwt.RegisteredClaims
}

func (p *Provider) verifyIDToken(ctx context.Context, raw string) (*idClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(p.cfg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	tok, err := parser.ParseWithClaims(raw, &idClaims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("id_token missing kid")
		}
		return p.keys.lookup(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}
	claims, ok := tok.Claims.(*idClaims)
	if !ok || !tok.Valid || claims.Subject == "" {
		return nil, errors.New("verify id_token: invalid claims")
	}
	return claims, nil
}

// UserPayload is the JSON Apple posts in the "user" form field on the first
// web authorization only.
type UserPayload struct {
	Name struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"name"`
	Email string `json:"email"`
}

// ParseUserPayload decodes the form_post "user" field.
func ParseUserPayload(raw string) (*UserPayload, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty user payload")
	}
	var u UserPayload
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("decode user payload: %w", err)
	}
	return &u, nil
}
