package services

import (
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go"
)

// NotifyService is a fire-and-forget dispatcher for user-facing messages.
// Publish failures are logged and dropped; nothing here may roll back an
// order confirmation. A nil *NotifyService silently discards everything,
// which keeps tests and single-binary setups free of PubNub credentials.
type NotifyService struct {
	pubnub *pubnub.PubNub
}

func NewNotifyService(pn *pubnub.PubNub) *NotifyService {
	return &NotifyService{pubnub: pn}
}

func (s *NotifyService) publish(channel string, message map[string]any) {
	if s == nil || s.pubnub == nil {
		return
	}

	go func() {
		_, _, err := s.pubnub.Publish().
			Channel(channel).
			Message(message).
			Execute()
		if err != nil {
			slog.Error("notify publish failed", "channel", channel, "error", err)
		}
	}()
}

// TicketsIssued tells a buyer their credentials are ready.
func (s *NotifyService) TicketsIssued(userID, orderID string, count int) {
	s.publish(fmt.Sprintf("user-%s", userID), map[string]any{
		"type":     "tickets_issued",
		"order_id": orderID,
		"count":    count,
	})
}

// AdmissionGranted delivers a surge admission token to a waiting user.
func (s *NotifyService) AdmissionGranted(userID, eventID, token string) {
	s.publish(fmt.Sprintf("user-%s", userID), map[string]any{
		"type":     "admission_granted",
		"event_id": eventID,
		"token":    token,
	})
}

// TransferOffered tells a recipient a credential is waiting for them.
func (s *NotifyService) TransferOffered(to, transferID string) {
	s.publish(fmt.Sprintf("user-%s", to), map[string]any{
		"type":        "transfer_offered",
		"transfer_id": transferID,
	})
}

// SlotClaimed tells a bundle owner one of their shared slots was taken.
func (s *NotifyService) SlotClaimed(ownerID, bundleID string, slot int) {
	s.publish(fmt.Sprintf("user-%s", ownerID), map[string]any{
		"type":      "slot_claimed",
		"bundle_id": bundleID,
		"slot":      slot,
	})
}
