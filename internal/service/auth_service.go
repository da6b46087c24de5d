package service

import (
	"errors"
	"time"

	"archive-depot-go/pkg/log"
	"archive-depot-go/pkg/token"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidSecret 表示共享密钥校验失败。
var ErrInvalidSecret = errors.New("invalid shared secret")

// AuthService 用单一共享密钥换取访问令牌。
type AuthService interface {
	Login(secret string) (string, time.Time, error)
}

type authService struct {
	secretHash []byte
	jwtManager *token.JWTManager
}

// NewAuthService 创建一个新的 AuthService 实例。secretHash 是共享密钥的 bcrypt 哈希。
func NewAuthService(secretHash string, jwtManager *token.JWTManager) AuthService {
	return &authService{secretHash: []byte(secretHash), jwtManager: jwtManager}
}

// Login 校验共享密钥，成功后签发令牌。
func (s *authService) Login(secret string) (string, time.Time, error) {
	if secret == "" || len(s.secretHash) == 0 {
		return "", time.Time{}, ErrInvalidSecret
	}
	if err := bcrypt.CompareHashAndPassword(s.secretHash, []byte(secret)); err != nil {
		log.Warnf("[Login] 共享密钥校验失败")
		return "", time.Time{}, ErrInvalidSecret
	}
	return s.jwtManager.GenerateToken()
}
