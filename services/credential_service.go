package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"ticket-core/config"
	"ticket-core/internal/status"
	"ticket-core/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// credentialPayloadVersion tags the structured QR format so future payload
// changes can coexist with deployed scanner apps.
const credentialPayloadVersion = 2

// CredentialClaims is the signed content of a QR payload. The signature
// covers every field; altering any of them invalidates the credential.
type CredentialClaims struct {
	Version      int    `json:"ver"`
	OrderID      string `json:"order_id"`
	EventID      string `json:"event_id"`
	TierID       string `json:"tier_id"`
	TicketUnitID string `json:"unit_id"`
	OwnerID      string `json:"owner_id"`
	jwt.RegisteredClaims
}

// CredentialService mints signed entry credentials once an order confirms,
// and re-signs payloads when ownership legitimately moves.
type CredentialService struct {
	Redis  *redis.Client
	secret []byte
	legacy bool
}

func NewCredentialService(redisClient *redis.Client, cfg *config.Config) *CredentialService {
	return &CredentialService{
		Redis:  redisClient,
		secret: []byte(cfg.CredentialSecret),
		legacy: cfg.AcceptLegacyQR,
	}
}

func credentialKey(id string) string {
	return fmt.Sprintf("credential:%s", id)
}

func orderCredentialsKey(orderID string) string {
	return fmt.Sprintf("credentials:order:%s", orderID)
}

func unitGuardKey(unitID string) string {
	return fmt.Sprintf("credential:unit:%s", unitID)
}

// IssueForOrder mints one credential per ticket unit of a confirmed order.
// Unit ids are derived deterministically from the order lines, and a SetNX
// guard per unit makes re-issuance on a retried webhook a no-op.
func (s *CredentialService) IssueForOrder(ctx context.Context, order *models.Order) ([]models.Credential, error) {
	var issued []models.Credential

	for _, line := range order.Lines {
		for seq := int64(1); seq <= line.Quantity; seq++ {
			unitID := fmt.Sprintf("%s/%s/%d", order.ID, line.TierID, seq)

			fresh, err := s.Redis.SetNX(ctx, unitGuardKey(unitID), order.ID, 0).Result()
			if err != nil {
				return issued, fmt.Errorf("unit guard: %w", err)
			}
			if !fresh {
				continue
			}

			credential, err := s.Mint(ctx, models.Credential{
				ID:           uuid.NewString(),
				OrderID:      order.ID,
				EventID:      order.EventID,
				TierID:       line.TierID,
				TicketUnitID: unitID,
				OwnerID:      order.CustomerID,
				Status:       models.CredentialIssued,
				IssuedAt:     time.Now(),
			})
			if err != nil {
				return issued, err
			}

			issued = append(issued, credential)
		}
	}

	return issued, nil
}

// Mint stores a credential record, indexes it under its order, and attaches
// the signed payload. Callers own id and unit-guard bookkeeping.
func (s *CredentialService) Mint(ctx context.Context, credential models.Credential) (models.Credential, error) {
	consumedAt := ""
	if credential.ConsumedAt != nil {
		consumedAt = fmt.Sprintf("%d", credential.ConsumedAt.Unix())
	}

	if err := s.Redis.HSet(ctx, credentialKey(credential.ID), map[string]any{
		"id":          credential.ID,
		"order_id":    credential.OrderID,
		"event_id":    credential.EventID,
		"tier_id":     credential.TierID,
		"unit_id":     credential.TicketUnitID,
		"owner_id":    credential.OwnerID,
		"status":      credential.Status,
		"consumed_at": consumedAt,
		"consumed_by": credential.ConsumedBy,
		"issued_at":   credential.IssuedAt.Unix(),
	}).Err(); err != nil {
		return credential, fmt.Errorf("store credential: %w", err)
	}

	s.Redis.SAdd(ctx, orderCredentialsKey(credential.OrderID), credential.ID)

	payload, err := s.Sign(&credential)
	if err != nil {
		return credential, err
	}
	credential.Payload = payload

	return credential, nil
}

// casCredentialStatusScript moves a credential between lifecycle states only
// when it currently sits in one of the two expected states (ARGV[2] may be
// empty). Returns 'ok', 'missing', or the blocking status.
const casCredentialStatusScript = `
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
  return 'missing'
end
if current ~= ARGV[1] and current ~= ARGV[2] then
  return current
end
redis.call('HSET', KEYS[1], 'status', ARGV[3])
return 'ok'`

// TransitionStatus CASes a credential's status. Returns the blocking status
// when the transition loses.
func (s *CredentialService) TransitionStatus(ctx context.Context, credentialID, from1, from2, to string) (string, error) {
	res, err := s.Redis.Eval(ctx, casCredentialStatusScript, []string{credentialKey(credentialID)}, from1, from2, to).Text()
	if err != nil {
		return "", fmt.Errorf("credential transition: %w", err)
	}
	if res == "missing" {
		return "", status.ErrCredentialNotFound
	}
	return res, nil
}

// Sign produces the QR payload string for a credential.
func (s *CredentialService) Sign(credential *models.Credential) (string, error) {
	claims := CredentialClaims{
		Version:      credentialPayloadVersion,
		OrderID:      credential.OrderID,
		EventID:      credential.EventID,
		TierID:       credential.TierID,
		TicketUnitID: credential.TicketUnitID,
		OwnerID:      credential.OwnerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       credential.ID,
			IssuedAt: jwt.NewNumericDate(credential.IssuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

// Verify parses a QR payload and returns its claims. The legacy
// "ticketId:signature" form, when enabled, is mapped onto minimal claims; the
// scanner then loads the rest from the credential record.
func (s *CredentialService) Verify(payload string) (*CredentialClaims, error) {
	if payload == "" {
		return nil, status.ErrInvalidPayload
	}

	if s.legacy && !strings.HasPrefix(payload, "eyJ") && strings.Count(payload, ":") == 1 {
		return s.verifyLegacy(payload)
	}

	var claims CredentialClaims
	token, err := jwt.ParseWithClaims(payload, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, status.ErrSignatureInvalid
	}

	return &claims, nil
}

// verifyLegacy handles the colon-delimited compatibility shim: the signature
// is HMAC-SHA256 over the credential id with the issuing secret.
func (s *CredentialService) verifyLegacy(payload string) (*CredentialClaims, error) {
	parts := strings.SplitN(payload, ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return nil, status.ErrInvalidPayload
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(parts[0]))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return nil, status.ErrSignatureInvalid
	}

	return &CredentialClaims{
		Version: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ID: parts[0],
		},
	}, nil
}

// SignLegacy emits the colon-delimited form. Kept for scanner-app fixtures
// that still exercise the shim.
func (s *CredentialService) SignLegacy(credentialID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(credentialID))
	return credentialID + ":" + hex.EncodeToString(mac.Sum(nil))
}

// Get loads a credential record.
func (s *CredentialService) Get(ctx context.Context, credentialID string) (*models.Credential, error) {
	data, err := s.Redis.HGetAll(ctx, credentialKey(credentialID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, status.ErrCredentialNotFound
	}
	return credentialFromHash(data), nil
}

// ListByOrder returns the credential ids minted for an order.
func (s *CredentialService) ListByOrder(ctx context.Context, orderID string) ([]string, error) {
	return s.Redis.SMembers(ctx, orderCredentialsKey(orderID)).Result()
}

func credentialFromHash(data map[string]string) *models.Credential {
	credential := &models.Credential{
		ID:           data["id"],
		OrderID:      data["order_id"],
		EventID:      data["event_id"],
		TierID:       data["tier_id"],
		TicketUnitID: data["unit_id"],
		OwnerID:      data["owner_id"],
		Status:       data["status"],
		ConsumedBy:   data["consumed_by"],
	}

	if issued, err := parseUnix(data["issued_at"]); err == nil {
		credential.IssuedAt = issued
	}
	if data["consumed_at"] != "" {
		if consumed, err := parseUnix(data["consumed_at"]); err == nil {
			credential.ConsumedAt = &consumed
		}
	}

	return credential
}
