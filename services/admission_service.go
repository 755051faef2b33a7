package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ticket-core/config"
	"ticket-core/internal/status"
	"ticket-core/models"
	"ticket-core/utils"

	"github.com/redis/go-redis/v9"
)

// consumeTokenScript validates and burns an admission token in one step so a
// replayed token fails on its second use. ARGV[1] = expected user id.
// Returns 1 on success, -1 when the token is absent or stale, -2 on user
// mismatch.
const consumeTokenScript = `
local owner = redis.call('GET', KEYS[1])
if not owner then
  return -1
end
if owner ~= ARGV[1] then
  return -2
end
redis.call('DEL', KEYS[1])
return 1`

// AdmissionService gates entry into the reservation flow during declared
// demand surges. Mode transitions are explicit operator actions; tokens are
// granted to waiting users in bounded batches.
type AdmissionService struct {
	Redis  *redis.Client
	config *config.Config
	notify *NotifyService
}

func NewAdmissionService(redisClient *redis.Client, cfg *config.Config, notify *NotifyService) *AdmissionService {
	return &AdmissionService{
		Redis:  redisClient,
		config: cfg,
		notify: notify,
	}
}

func surgeModeKey(eventID string) string {
	return fmt.Sprintf("surge:%s", eventID)
}

func waitingKey(eventID string) string {
	return fmt.Sprintf("admit:waiting:%s", eventID)
}

func tokenKey(eventID, token string) string {
	return fmt.Sprintf("admit:token:%s:%s", eventID, token)
}

// Mode returns the current admission mode for an event, defaulting to normal.
func (s *AdmissionService) Mode(ctx context.Context, eventID string) (string, error) {
	mode, err := s.Redis.Get(ctx, surgeModeKey(eventID)).Result()
	if err == redis.Nil {
		return models.ModeNormal, nil
	} else if err != nil {
		return "", err
	}
	return mode, nil
}

// SetMode switches an event between normal and surge. Operator action only.
func (s *AdmissionService) SetMode(ctx context.Context, eventID, mode string) error {
	if mode != models.ModeNormal && mode != models.ModeSurge {
		return fmt.Errorf("admission: unknown mode %q", mode)
	}
	return s.Redis.Set(ctx, surgeModeKey(eventID), mode, 0).Err()
}

// Enqueue puts a user on the waiting list for a surge-gated event.
func (s *AdmissionService) Enqueue(ctx context.Context, eventID, userID string) (int64, error) {
	length, err := s.Redis.LPush(ctx, waitingKey(eventID), userID).Result()
	if err != nil {
		return 0, err
	}
	return length, nil
}

// QueueLength reports the number of waiting users for an event.
func (s *AdmissionService) QueueLength(ctx context.Context, eventID string) (int64, error) {
	return s.Redis.LLen(ctx, waitingKey(eventID)).Result()
}

// IssueBatch admits up to limit waiting users (hard-capped by config), minting
// one single-use token per user and pushing it to them over the notifier. The
// bounded batch is what keeps a surge from turning into a thundering herd on
// reserve.
func (s *AdmissionService) IssueBatch(ctx context.Context, eventID string, limit int) ([]models.AdmissionToken, error) {
	if limit <= 0 || limit > s.config.MaxAdmitBatch {
		limit = s.config.MaxAdmitBatch
	}

	var issued []models.AdmissionToken
	for i := 0; i < limit; i++ {
		userID, err := s.Redis.RPop(ctx, waitingKey(eventID)).Result()
		if err == redis.Nil {
			break
		} else if err != nil {
			return issued, err
		}

		code, err := utils.GenerateCode(16)
		if err != nil {
			return issued, err
		}

		if err := s.Redis.Set(ctx, tokenKey(eventID, code), userID, s.config.AdmissionTokenTTL).Err(); err != nil {
			return issued, err
		}

		token := models.AdmissionToken{
			Token:    code,
			EventID:  eventID,
			UserID:   userID,
			IssuedAt: time.Now(),
		}
		issued = append(issued, token)

		s.notify.AdmissionGranted(userID, eventID, code)
	}

	if len(issued) > 0 {
		slog.Info("admission batch issued", "event_id", eventID, "count", len(issued))
	}

	return issued, nil
}

// ConsumeToken burns a token at the reservation entry point. Exactly one call
// per token succeeds; stale tokens age out via TTL before they get here.
func (s *AdmissionService) ConsumeToken(ctx context.Context, eventID, userID, token string) error {
	if token == "" {
		return status.ErrAdmissionTokenRequired
	}

	res, err := s.Redis.Eval(ctx, consumeTokenScript, []string{tokenKey(eventID, token)}, userID).Int64()
	if err != nil {
		return fmt.Errorf("consume admission token: %w", err)
	}

	switch res {
	case 1:
		return nil
	case -2:
		return status.ErrAdmissionTokenInvalid
	default:
		return status.ErrAdmissionTokenInvalid
	}
}

// Status reports a user's waiting position (1-based, 0 when absent).
func (s *AdmissionService) Status(ctx context.Context, eventID, userID string) (*models.QueueStatus, error) {
	mode, err := s.Mode(ctx, eventID)
	if err != nil {
		return nil, err
	}

	entries, err := s.Redis.LRange(ctx, waitingKey(eventID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	position := int64(0)
	for i, entry := range entries {
		if entry == userID {
			// RPop serves the tail first, so the tail is position 1.
			position = int64(len(entries) - i)
			break
		}
	}

	return &models.QueueStatus{
		EventID:  eventID,
		Mode:     mode,
		Position: position,
		Waiting:  int64(len(entries)),
	}, nil
}
