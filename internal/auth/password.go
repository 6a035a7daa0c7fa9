package auth

import (
	"encoding/base64"
	"fmt"

	"github.com/example/order-pipeline/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const passwordCost = 12

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), passwordCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// EncodeSecret and DecodeSecret define how venue keys sit at rest.
func EncodeSecret(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func DecodeSecret(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}
	return string(b), nil
}

// UserCredentials decodes the venue keys stored on u.
func UserCredentials(u models.User) (models.Credentials, error) {
	key, err := DecodeSecret(u.APIKey)
	if err != nil {
		return models.Credentials{}, err
	}
	secret, err := DecodeSecret(u.SecretKey)
	if err != nil {
		return models.Credentials{}, err
	}
	return models.Credentials{APIKey: key, SecretKey: secret}, nil
}
