package ws

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidhall-marketplace-service/internal/domain/shared"
)

func TestParseClientMessage(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, MessageTypePing, msg.Type)

	_, err = ParseClientMessage([]byte(`{"data":{}}`))
	require.ErrorIs(t, err, shared.ErrMessageTypeRequired)

	_, err = ParseClientMessage([]byte(`not json`))
	require.Error(t, err)
}

func TestValidateSubscribeRequiresAuctionID(t *testing.T) {
	msg := &ClientMessage{Type: MessageTypeSubscribe}
	require.ErrorIs(t, msg.Validate(), shared.ErrAuctionIDRequired)

	id := uuid.New()
	msg.AuctionID = &id
	require.NoError(t, msg.Validate())
}

func TestValidatePlaceBid(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name string
		data map[string]interface{}
		want error
	}{
		{"missing amount", map[string]interface{}{}, shared.ErrInvalidAmount},
		{"zero amount", map[string]interface{}{"amount": float64(0)}, shared.ErrInvalidAmount},
		{"negative amount", map[string]interface{}{"amount": float64(-10)}, shared.ErrInvalidAmount},
		{"valid amount", map[string]interface{}{"amount": float64(150)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &ClientMessage{Type: MessageTypePlaceBid, AuctionID: &id, Data: tt.data}
			if tt.want == nil {
				assert.NoError(t, msg.Validate())
			} else {
				assert.ErrorIs(t, msg.Validate(), tt.want)
			}
		})
	}
}

func TestValidateWalletMessages(t *testing.T) {
	deposit := &ClientMessage{Type: MessageTypeDeposit, Data: map[string]interface{}{"amount": float64(100)}}
	require.NoError(t, deposit.Validate())

	withdraw := &ClientMessage{Type: MessageTypeWithdraw, Data: map[string]interface{}{}}
	require.ErrorIs(t, withdraw.Validate(), shared.ErrInvalidAmount)

	getWallet := &ClientMessage{Type: MessageTypeGetWallet}
	require.NoError(t, getWallet.Validate())
}

func TestValidateUnknownType(t *testing.T) {
	msg := &ClientMessage{Type: "bogus"}
	require.ErrorIs(t, msg.Validate(), shared.ErrUnknownMessageType)
}
