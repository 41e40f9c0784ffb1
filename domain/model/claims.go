package model

import "github.com/golang-jwt/jwt"

// OrganizationClaims is the JWT body issued by the account service
type OrganizationClaims struct {
	jwt.StandardClaims
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email,omitempty"`
}
