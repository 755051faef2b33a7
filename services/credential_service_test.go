package services

import (
	"context"
	"testing"
	"time"

	"ticket-core/internal/status"
	"ticket-core/models"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCredentialServiceForTest() *CredentialService {
	return &CredentialService{secret: []byte("test-signing-secret"), legacy: true}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	svc := newCredentialServiceForTest()

	credential := &models.Credential{
		ID:           "cred-1",
		OrderID:      "ord-1",
		EventID:      "ev-1",
		TierID:       "vip",
		TicketUnitID: "ord-1/vip/1",
		OwnerID:      "cust-1",
		IssuedAt:     time.Unix(1756100000, 0),
	}

	payload, err := svc.Sign(credential)
	require.NoError(t, err)

	claims, err := svc.Verify(payload)
	require.NoError(t, err)
	assert.Equal(t, credentialPayloadVersion, claims.Version)
	assert.Equal(t, "cred-1", claims.ID)
	assert.Equal(t, "ord-1", claims.OrderID)
	assert.Equal(t, "ev-1", claims.EventID)
	assert.Equal(t, "cust-1", claims.OwnerID)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	svc := newCredentialServiceForTest()

	payload, err := svc.Sign(&models.Credential{ID: "cred-1", EventID: "ev-1", IssuedAt: time.Now()})
	require.NoError(t, err)

	tampered := payload + "A"

	_, err = svc.Verify(tampered)
	assert.ErrorIs(t, err, status.ErrSignatureInvalid)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer := newCredentialServiceForTest()
	verifier := &CredentialService{secret: []byte("different-secret"), legacy: true}

	payload, err := signer.Sign(&models.Credential{ID: "cred-1", IssuedAt: time.Now()})
	require.NoError(t, err)

	_, err = verifier.Verify(payload)
	assert.ErrorIs(t, err, status.ErrSignatureInvalid)
}

func TestVerifyRejectsEmptyPayload(t *testing.T) {
	svc := newCredentialServiceForTest()

	_, err := svc.Verify("")
	assert.ErrorIs(t, err, status.ErrInvalidPayload)
}

func TestVerifyLegacyPayload(t *testing.T) {
	svc := newCredentialServiceForTest()

	payload := svc.SignLegacy("cred-legacy-1")

	claims, err := svc.Verify(payload)
	require.NoError(t, err)
	assert.Equal(t, "cred-legacy-1", claims.ID)
	assert.Empty(t, claims.OwnerID)
}

func TestVerifyLegacyRejectedWhenDisabled(t *testing.T) {
	signer := newCredentialServiceForTest()
	strict := &CredentialService{secret: signer.secret, legacy: false}

	payload := signer.SignLegacy("cred-legacy-1")

	_, err := strict.Verify(payload)
	assert.ErrorIs(t, err, status.ErrSignatureInvalid)
}

func TestVerifyLegacyBadSignature(t *testing.T) {
	svc := newCredentialServiceForTest()

	_, err := svc.Verify("cred-legacy-1:deadbeef")
	assert.ErrorIs(t, err, status.ErrSignatureInvalid)
}

func TestTransitionStatusLosesToBlockingState(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := &CredentialService{Redis: db, secret: []byte("test-signing-secret")}

	mock.ExpectEval(casCredentialStatusScript, []string{"credential:cred-1"},
		models.CredentialIssued, "", models.CredentialFrozen).SetVal(models.CredentialConsumed)

	blocking, err := svc.TransitionStatus(context.Background(), "cred-1", models.CredentialIssued, "", models.CredentialFrozen)

	require.NoError(t, err)
	assert.Equal(t, models.CredentialConsumed, blocking)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusMissingCredential(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := &CredentialService{Redis: db, secret: []byte("test-signing-secret")}

	mock.ExpectEval(casCredentialStatusScript, []string{"credential:cred-x"},
		models.CredentialIssued, "", models.CredentialFrozen).SetVal("missing")

	_, err := svc.TransitionStatus(context.Background(), "cred-x", models.CredentialIssued, "", models.CredentialFrozen)

	assert.ErrorIs(t, err, status.ErrCredentialNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
