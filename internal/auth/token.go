package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

const (
	RoleUser   = "user"
	RoleVendor = "vendor"
	RoleAdmin  = "admin"
)

// Identity is the authenticated caller extracted from a JWT.
type Identity struct {
	UserID   string
	Role     string
	VendorID string
}

func (id *Identity) IsAdmin() bool {
	return id != nil && id.Role == RoleAdmin
}

// Verifier validates bearer tokens issued by the marketplace's auth service.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

// Verify parses an HMAC-signed token and returns the caller identity.
func (v *Verifier) Verify(tokenStr string) (*Identity, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("JWT secret not configured")
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	id := &Identity{Role: RoleUser}
	if sub, ok := claims["sub"].(string); ok {
		id.UserID = sub
	}
	if role, ok := claims["role"].(string); ok && role != "" {
		id.Role = role
	}
	if vendorID, ok := claims["vendor_id"].(string); ok {
		id.VendorID = vendorID
	}
	if id.UserID == "" {
		return nil, fmt.Errorf("token missing subject")
	}
	return id, nil
}
