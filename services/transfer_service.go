package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"ticket-core/config"
	"ticket-core/internal/status"
	"ticket-core/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const transfersExpiryKey = "transfers:expiry"

func bundleKey(id string) string {
	return fmt.Sprintf("bundle:%s", id)
}

func bundleSlotKey(bundleID string, index int) string {
	return fmt.Sprintf("bundle:%s:slot:%d", bundleID, index)
}

func transferKey(id string) string {
	return fmt.Sprintf("transfer:%s", id)
}

// claimSlotScript takes an open, unexpired slot for a claimant. Two racing
// claimants get exactly one 'ok'.
//
// ARGV[1] = now (unix), ARGV[2] = claimant, ARGV[3] = minted credential id.
// Returns 'ok', 'missing', 'expired', or the blocking status.
const claimSlotScript = `
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
  return 'missing'
end
if current ~= 'open' then
  return current
end
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if expires and expires < tonumber(ARGV[1]) then
  return 'expired'
end
redis.call('HSET', KEYS[1], 'status', 'claimed', 'claimed_by', ARGV[2], 'credential_id', ARGV[3], 'claimed_at', ARGV[1])
return 'ok'`

// acceptTransferScript settles a pending transfer, refusing one past its
// deadline. ARGV[1] = now. Returns 'ok', 'missing', 'expired', or the
// blocking status.
const acceptTransferScript = `
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
  return 'missing'
end
if current ~= 'pending' then
  return current
end
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if expires and expires < tonumber(ARGV[1]) then
  return 'expired'
end
redis.call('HSET', KEYS[1], 'status', 'accepted')
return 'ok'`

// casTransferStatusScript is the plain CAS used by cancel and the expiry
// sweep. ARGV[1] -> ARGV[2]. Returns 'ok', 'missing', or the blocking status.
const casTransferStatusScript = `
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
  return 'missing'
end
if current ~= ARGV[1] then
  return current
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
return 'ok'`

// rebindOwnerScript moves a frozen credential to its new owner in one step so
// a scan can never observe the new owner with the old frozen status or vice
// versa. ARGV[1] = new owner. Returns 'ok', 'missing', or the blocking status.
const rebindOwnerScript = `
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
  return 'missing'
end
if current ~= 'frozen' then
  return current
end
redis.call('HSET', KEYS[1], 'status', 'issued', 'owner_id', ARGV[1])
return 'ok'`

// TransferService handles the two ways a ticket changes hands before the
// event: share bundles (one order split into claimable slots) and direct
// transfer requests (one credential offered to one person).
type TransferService struct {
	Redis       *redis.Client
	credentials *CredentialService
	notify      *NotifyService
	config      *config.Config
}

func NewTransferService(redisClient *redis.Client, credentials *CredentialService, notify *NotifyService, cfg *config.Config) *TransferService {
	return &TransferService{
		Redis:       redisClient,
		credentials: credentials,
		notify:      notify,
		config:      cfg,
	}
}

// CreateBundle escrows the given credentials and opens one claimable slot per
// credential. Escrow is all-or-nothing: if any credential is not in issued
// state the already-escrowed ones are released again.
func (s *TransferService) CreateBundle(ctx context.Context, ownerID, orderID string, credentialIDs []string) (*models.ShareBundle, error) {
	if len(credentialIDs) == 0 {
		return nil, status.ErrInvalidPayload
	}

	var escrowed []string
	rollback := func() {
		for _, id := range escrowed {
			if _, err := s.credentials.TransitionStatus(ctx, id, models.CredentialEscrowed, "", models.CredentialIssued); err != nil {
				slog.Error("escrow rollback failed", "credential_id", id, "error", err)
			}
		}
	}

	for _, id := range credentialIDs {
		credential, err := s.credentials.Get(ctx, id)
		if err != nil {
			rollback()
			return nil, err
		}
		if credential.OwnerID != ownerID {
			rollback()
			return nil, status.ErrNotOwner
		}
		if credential.OrderID != orderID {
			rollback()
			return nil, status.ErrInvalidItem
		}

		res, err := s.credentials.TransitionStatus(ctx, id, models.CredentialIssued, "", models.CredentialEscrowed)
		if err != nil {
			rollback()
			return nil, err
		}
		if res != "ok" {
			rollback()
			if res == models.CredentialConsumed {
				return nil, status.ErrCredentialConsumed
			}
			return nil, status.ErrCredentialNotIssued
		}
		escrowed = append(escrowed, id)
	}

	now := time.Now()
	expiresAt := now.Add(s.config.ShareSlotTTL)
	bundle := &models.ShareBundle{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		OwnerID:   ownerID,
		CreatedAt: now,
	}

	if err := s.Redis.HSet(ctx, bundleKey(bundle.ID), map[string]any{
		"id":         bundle.ID,
		"order_id":   orderID,
		"owner_id":   ownerID,
		"slots":      len(credentialIDs),
		"created_at": now.Unix(),
	}).Err(); err != nil {
		rollback()
		return nil, fmt.Errorf("store bundle: %w", err)
	}

	for i, credentialID := range credentialIDs {
		slot := models.ShareSlot{
			Index:              i,
			SourceCredentialID: credentialID,
			Status:             models.SlotOpen,
			ExpiresAt:          expiresAt,
		}
		if err := s.Redis.HSet(ctx, bundleSlotKey(bundle.ID, i), map[string]any{
			"index":                i,
			"source_credential_id": credentialID,
			"status":               models.SlotOpen,
			"claimed_by":           "",
			"credential_id":        "",
			"claimed_at":           "",
			"expires_at":           expiresAt.Unix(),
		}).Err(); err != nil {
			return nil, fmt.Errorf("store slot: %w", err)
		}
		bundle.Slots = append(bundle.Slots, slot)
	}

	slog.Info("share bundle created", "bundle_id", bundle.ID, "order_id", orderID, "slots", len(bundle.Slots))
	return bundle, nil
}

// GetBundle loads a bundle and its slots.
func (s *TransferService) GetBundle(ctx context.Context, bundleID string) (*models.ShareBundle, error) {
	data, err := s.Redis.HGetAll(ctx, bundleKey(bundleID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, status.ErrBundleNotFound
	}

	created, _ := strconv.ParseInt(data["created_at"], 10, 64)
	count, _ := strconv.Atoi(data["slots"])

	bundle := &models.ShareBundle{
		ID:        data["id"],
		OrderID:   data["order_id"],
		OwnerID:   data["owner_id"],
		CreatedAt: time.Unix(created, 0),
	}

	for i := 0; i < count; i++ {
		slot, err := s.getSlot(ctx, bundleID, i)
		if err != nil {
			return nil, err
		}
		bundle.Slots = append(bundle.Slots, *slot)
	}

	return bundle, nil
}

func (s *TransferService) getSlot(ctx context.Context, bundleID string, index int) (*models.ShareSlot, error) {
	data, err := s.Redis.HGetAll(ctx, bundleSlotKey(bundleID, index)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, status.ErrBundleNotFound
	}

	expires, _ := strconv.ParseInt(data["expires_at"], 10, 64)
	slot := &models.ShareSlot{
		Index:              index,
		SourceCredentialID: data["source_credential_id"],
		Status:             data["status"],
		ClaimedBy:          data["claimed_by"],
		CredentialID:       data["credential_id"],
		ExpiresAt:          time.Unix(expires, 0),
	}
	if raw := data["claimed_at"]; raw != "" {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			at := time.Unix(ts, 0)
			slot.ClaimedAt = &at
		}
	}

	// Expiry is enforced by the claim script; readers still see a lapsed
	// open slot as expired instead of claimable.
	if slot.Status == models.SlotOpen && !time.Now().Before(slot.ExpiresAt) {
		slot.Status = models.SlotExpired
	}

	return slot, nil
}

// ClaimSlot takes an open slot for the claimant and mints them a fresh
// credential on the same ticket unit. The escrowed source credential is
// superseded and can never be scanned again.
func (s *TransferService) ClaimSlot(ctx context.Context, bundleID string, index int, claimantID string) (*models.Credential, error) {
	newID := uuid.NewString()
	res, err := s.Redis.Eval(ctx, claimSlotScript,
		[]string{bundleSlotKey(bundleID, index)},
		time.Now().Unix(), claimantID, newID).Text()
	if err != nil {
		return nil, fmt.Errorf("claim slot: %w", err)
	}

	switch res {
	case "ok":
	case "missing":
		return nil, status.ErrBundleNotFound
	case "expired":
		return nil, status.ErrSlotExpired
	default:
		return nil, status.ErrSlotNotOpen
	}

	slot, err := s.getSlot(ctx, bundleID, index)
	if err != nil {
		return nil, err
	}
	source, err := s.credentials.Get(ctx, slot.SourceCredentialID)
	if err != nil {
		return nil, err
	}

	if _, err := s.credentials.TransitionStatus(ctx, source.ID, models.CredentialEscrowed, "", models.CredentialSuperseded); err != nil {
		slog.Error("supersede source failed", "credential_id", source.ID, "error", err)
	}

	minted, err := s.credentials.Mint(ctx, models.Credential{
		ID:           newID,
		OrderID:      source.OrderID,
		EventID:      source.EventID,
		TierID:       source.TierID,
		TicketUnitID: source.TicketUnitID,
		OwnerID:      claimantID,
		Status:       models.CredentialIssued,
		IssuedAt:     time.Now(),
	})
	if err != nil {
		return nil, err
	}

	bundle, err := s.GetBundle(ctx, bundleID)
	if err == nil {
		s.notify.SlotClaimed(bundle.OwnerID, bundleID, index)
	}

	return &minted, nil
}

// ReclaimSlot lets the bundle owner take a slot back. A claimed slot reopens
// and the claimant's credential is revoked, unless they already entered with
// it. An open or expired slot just gets a fresh deadline.
func (s *TransferService) ReclaimSlot(ctx context.Context, bundleID string, index int, ownerID string) (*models.ShareSlot, error) {
	bundle, err := s.GetBundle(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	if bundle.OwnerID != ownerID {
		return nil, status.ErrNotOwner
	}

	slot, err := s.getSlot(ctx, bundleID, index)
	if err != nil {
		return nil, err
	}

	if slot.Status == models.SlotClaimed {
		res, err := s.credentials.TransitionStatus(ctx, slot.CredentialID, models.CredentialIssued, "", models.CredentialRevoked)
		if err != nil {
			return nil, err
		}
		if res == models.CredentialConsumed {
			return nil, status.ErrSlotConsumed
		}
		if res != "ok" {
			return nil, status.ErrCredentialNotIssued
		}
	}

	expiresAt := time.Now().Add(s.config.ShareSlotTTL)
	if err := s.Redis.HSet(ctx, bundleSlotKey(bundleID, index), map[string]any{
		"status":        models.SlotOpen,
		"claimed_by":    "",
		"credential_id": "",
		"claimed_at":    "",
		"expires_at":    expiresAt.Unix(),
	}).Err(); err != nil {
		return nil, fmt.Errorf("reopen slot: %w", err)
	}

	slot.Status = models.SlotOpen
	slot.ClaimedBy = ""
	slot.CredentialID = ""
	slot.ClaimedAt = nil
	slot.ExpiresAt = expiresAt
	return slot, nil
}

// CreateTransfer freezes a credential and offers it to someone. The frozen
// copy stays with the sender but is refused at the door until the request
// settles.
func (s *TransferService) CreateTransfer(ctx context.Context, credentialID, fromUserID, to string) (*models.TransferRequest, error) {
	credential, err := s.credentials.Get(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if credential.OwnerID != fromUserID {
		return nil, status.ErrNotOwner
	}

	res, err := s.credentials.TransitionStatus(ctx, credentialID, models.CredentialIssued, "", models.CredentialFrozen)
	if err != nil {
		return nil, err
	}
	if res != "ok" {
		if res == models.CredentialConsumed {
			return nil, status.ErrCredentialConsumed
		}
		return nil, status.ErrCredentialNotIssued
	}

	now := time.Now()
	transfer := &models.TransferRequest{
		ID:           uuid.NewString(),
		CredentialID: credentialID,
		FromUserID:   fromUserID,
		To:           to,
		Status:       models.TransferPending,
		ExpiresAt:    now.Add(s.config.TransferTTL),
		CreatedAt:    now,
	}

	if err := s.Redis.HSet(ctx, transferKey(transfer.ID), map[string]any{
		"id":            transfer.ID,
		"credential_id": credentialID,
		"from_user_id":  fromUserID,
		"to":            to,
		"status":        transfer.Status,
		"expires_at":    transfer.ExpiresAt.Unix(),
		"created_at":    now.Unix(),
	}).Err(); err != nil {
		// Leave the credential usable rather than frozen behind a lost record.
		if _, unfreezeErr := s.credentials.TransitionStatus(ctx, credentialID, models.CredentialFrozen, "", models.CredentialIssued); unfreezeErr != nil {
			slog.Error("unfreeze after store failure", "credential_id", credentialID, "error", unfreezeErr)
		}
		return nil, fmt.Errorf("store transfer: %w", err)
	}

	s.Redis.ZAdd(ctx, transfersExpiryKey, redis.Z{
		Score:  float64(transfer.ExpiresAt.Unix()),
		Member: transfer.ID,
	})

	s.notify.TransferOffered(to, transfer.ID)
	return transfer, nil
}

// GetTransfer loads a transfer request.
func (s *TransferService) GetTransfer(ctx context.Context, transferID string) (*models.TransferRequest, error) {
	data, err := s.Redis.HGetAll(ctx, transferKey(transferID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, status.ErrTransferNotFound
	}

	expires, _ := strconv.ParseInt(data["expires_at"], 10, 64)
	created, _ := strconv.ParseInt(data["created_at"], 10, 64)

	return &models.TransferRequest{
		ID:           data["id"],
		CredentialID: data["credential_id"],
		FromUserID:   data["from_user_id"],
		To:           data["to"],
		Status:       data["status"],
		ExpiresAt:    time.Unix(expires, 0),
		CreatedAt:    time.Unix(created, 0),
	}, nil
}

// AcceptTransfer settles a pending transfer for the recipient: ownership of
// the credential rebinds to them and a payload signed for the new owner comes
// back. The sender's old payload fails signature-vs-record checks from here on.
func (s *TransferService) AcceptTransfer(ctx context.Context, transferID, userID string) (*models.Credential, error) {
	transfer, err := s.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.To != userID {
		return nil, status.ErrNotOwner
	}

	res, err := s.Redis.Eval(ctx, acceptTransferScript,
		[]string{transferKey(transferID)}, time.Now().Unix()).Text()
	if err != nil {
		return nil, fmt.Errorf("accept transfer: %w", err)
	}
	switch res {
	case "ok":
	case "expired":
		s.expireTransfer(ctx, transfer)
		return nil, status.ErrTransferNotPending
	case "missing":
		return nil, status.ErrTransferNotFound
	default:
		return nil, status.ErrTransferNotPending
	}

	rebind, err := s.Redis.Eval(ctx, rebindOwnerScript,
		[]string{credentialKey(transfer.CredentialID)}, userID).Text()
	if err != nil {
		return nil, fmt.Errorf("rebind owner: %w", err)
	}
	if rebind != "ok" {
		slog.Error("rebind lost", "transfer_id", transferID, "credential_id", transfer.CredentialID, "status", rebind)
		return nil, status.ErrCredentialNotIssued
	}

	s.Redis.ZRem(ctx, transfersExpiryKey, transferID)

	credential, err := s.credentials.Get(ctx, transfer.CredentialID)
	if err != nil {
		return nil, err
	}
	payload, err := s.credentials.Sign(credential)
	if err != nil {
		return nil, err
	}
	credential.Payload = payload

	slog.Info("transfer accepted", "transfer_id", transferID, "credential_id", credential.ID)
	return credential, nil
}

// CancelTransfer withdraws a pending request and thaws the credential.
func (s *TransferService) CancelTransfer(ctx context.Context, transferID, fromUserID string) error {
	transfer, err := s.GetTransfer(ctx, transferID)
	if err != nil {
		return err
	}
	if transfer.FromUserID != fromUserID {
		return status.ErrNotOwner
	}

	res, err := s.Redis.Eval(ctx, casTransferStatusScript,
		[]string{transferKey(transferID)},
		models.TransferPending, models.TransferCancelled).Text()
	if err != nil {
		return fmt.Errorf("cancel transfer: %w", err)
	}
	if res != "ok" {
		return status.ErrTransferNotPending
	}

	if _, err := s.credentials.TransitionStatus(ctx, transfer.CredentialID, models.CredentialFrozen, "", models.CredentialIssued); err != nil {
		return err
	}
	s.Redis.ZRem(ctx, transfersExpiryKey, transferID)
	return nil
}

func (s *TransferService) expireTransfer(ctx context.Context, transfer *models.TransferRequest) {
	res, err := s.Redis.Eval(ctx, casTransferStatusScript,
		[]string{transferKey(transfer.ID)},
		models.TransferPending, models.TransferExpired).Text()
	if err != nil || res != "ok" {
		// Someone else settled it first; nothing to undo.
		s.Redis.ZRem(ctx, transfersExpiryKey, transfer.ID)
		return
	}

	if _, err := s.credentials.TransitionStatus(ctx, transfer.CredentialID, models.CredentialFrozen, "", models.CredentialIssued); err != nil {
		slog.Error("unfreeze on expiry failed", "credential_id", transfer.CredentialID, "error", err)
	}
	s.Redis.ZRem(ctx, transfersExpiryKey, transfer.ID)
	slog.Info("transfer expired", "transfer_id", transfer.ID)
}

// SweepExpiredTransfers periodically expires overdue pending transfers so
// frozen credentials thaw without user action. Runs until ctx is cancelled.
func (s *TransferService) SweepExpiredTransfers(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweepTransfersOnce(ctx); err != nil {
				slog.Error("transfer sweep failed", "error", err)
			}
		}
	}
}

func (s *TransferService) sweepTransfersOnce(ctx context.Context) error {
	now := time.Now().Unix()
	ids, err := s.Redis.ZRangeByScore(ctx, transfersExpiryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		transfer, err := s.GetTransfer(ctx, id)
		if err == status.ErrTransferNotFound {
			s.Redis.ZRem(ctx, transfersExpiryKey, id)
			continue
		} else if err != nil {
			return err
		}
		s.expireTransfer(ctx, transfer)
	}
	return nil
}
