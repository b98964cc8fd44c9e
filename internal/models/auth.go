package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Actor identifies who performs a write. A TEACHER actor's UserID is the teacher ID.
type Actor struct {
	UserID string
	Name   string
	Role   UserRole
}

// ActorFromClaims maps verified claims to an actor.
func ActorFromClaims(claims *JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	name := claims.FullName
	if name == "" {
		name = claims.Email
	}
	if name == "" {
		name = claims.UserID
	}
	return Actor{UserID: claims.UserID, Name: name, Role: claims.Role}
}

// Label returns the display name used in audit trails.
func (a Actor) Label() string {
	if a.Name != "" {
		return a.Name
	}
	if a.UserID != "" {
		return a.UserID
	}
	return "system"
}
