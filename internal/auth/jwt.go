package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"tasknest.io/tasknest/internal/config"
)

// TokenClaims is the identity carried by a bearer token. Email and name are
// included so a user row can be created lazily on first authenticated
// request.
type TokenClaims struct {
	UserID string
	Email  string
	Name   string
}

func GenerateJWT(userID, email, name string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"name":    name,
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(7 * 24 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

func ValidateJWT(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return nil, fmt.Errorf("token has no user_id claim")
	}

	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)

	return &TokenClaims{UserID: userID, Email: email, Name: name}, nil
}
