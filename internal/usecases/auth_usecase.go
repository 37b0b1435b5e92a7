package usecases

import (
	"context"
	"fmt"
	"time"

	"chatdesk/internal/entities"
	"chatdesk/internal/interfaces"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

// Claims is what an ops API token carries. TenantID is empty for admins.
type Claims struct {
	OperatorID string
	Role       string
	TenantID   string
}

type AuthUsecase struct {
	operators interfaces.OperatorStore
	jwtSecret []byte
	now       func() time.Time
}

func NewAuthUsecase(operators interfaces.OperatorStore, secret string) *AuthUsecase {
	return &AuthUsecase{
		operators: operators,
		jwtSecret: []byte(secret),
		now:       time.Now,
	}
}

// CreateOperator registers an agent scoped to tenantID, or an admin when
// role is entities.RoleAdmin.
func (uc *AuthUsecase) CreateOperator(ctx context.Context, username, password, role, tenantID string) (*entities.Operator, error) {
	existing, err := uc.operators.GetOperatorByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("username %q: %w", username, entities.ErrConflict)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	op := &entities.Operator{
		Username:     username,
		PasswordHash: string(hashed),
		Role:         role,
		TenantID:     tenantID,
	}
	if role == entities.RoleAdmin {
		op.TenantID = ""
	}
	if err := uc.operators.CreateOperator(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

func (uc *AuthUsecase) Login(ctx context.Context, username, password string) (string, error) {
	op, err := uc.operators.GetOperatorByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if op == nil {
		return "", entities.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return "", entities.ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":   op.ID,
		"role":      op.Role,
		"tenant_id": op.TenantID,
		"exp":       uc.now().Add(tokenTTL).Unix(),
	})
	signed, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token issued by Login.
func (uc *AuthUsecase) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return uc.jwtSecret, nil
	}, jwt.WithTimeFunc(uc.now))
	if err != nil || !token.Valid {
		return nil, entities.ErrInvalidCredentials
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, entities.ErrInvalidCredentials
	}
	claims := &Claims{}
	claims.OperatorID, _ = mc["user_id"].(string)
	claims.Role, _ = mc["role"].(string)
	claims.TenantID, _ = mc["tenant_id"].(string)
	if claims.OperatorID == "" || claims.Role == "" {
		return nil, entities.ErrInvalidCredentials
	}
	return claims, nil
}

// EnsureAdmin creates the platform admin if it does not exist (called on startup).
func (uc *AuthUsecase) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	op, err := uc.operators.GetOperatorByUsername(ctx, username)
	if err != nil {
		return err
	}
	if op != nil {
		return nil
	}
	_, err = uc.CreateOperator(ctx, username, password, entities.RoleAdmin, "")
	return err
}
