// Package auth 控制口令校验与控制令牌签发
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// RoleControl 允许发送播放控制命令的令牌角色
const RoleControl = "control"

var (
	ErrAuthDisabled = errors.New("token auth disabled")
	ErrInvalidToken = errors.New("invalid token")
)

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a password with a bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Claims 控制令牌内容
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager 签发和校验 HS256 控制令牌。secret 为空时不启用鉴权
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager 创建令牌管理器
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled 是否启用令牌校验
func (m *TokenManager) Enabled() bool {
	return m != nil && len(m.secret) > 0
}

// Issue 为 subject 签发控制令牌
func (m *TokenManager) Issue(subject string) (string, time.Time, error) {
	if !m.Enabled() {
		return "", time.Time{}, ErrAuthDisabled
	}
	now := m.now()
	expires := now.Add(m.ttl)
	claims := Claims{
		Role: RoleControl,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify 校验令牌签名、有效期和角色
func (m *TokenManager) Verify(token string) (*Claims, error) {
	if !m.Enabled() {
		return nil, ErrAuthDisabled
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Role != RoleControl {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
