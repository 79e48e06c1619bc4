package hub_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricewatch/crypto-notify/cmd/gateway/internal/hub"
	"github.com/pricewatch/crypto-notify/cmd/gateway/internal/testutils"
	"github.com/pricewatch/crypto-notify/pkg/models"
)

func event(userID int64, significant bool) models.ChangeEvent {
	return models.ChangeEvent{
		UserID:           userID,
		Symbol:           "BTC",
		OldPrice:         40000,
		NewPrice:         50000,
		PercentageChange: 25,
		Timestamp:        time.Now(),
		IsSignificant:    significant,
	}
}

func TestGroupName(t *testing.T) {
	assert.Equal(t, "user-7", hub.GroupName(7))
}

func TestHub_DeliversToOwnerGroupOnly(t *testing.T) {
	h := hub.NewHub(zap.NewNop())
	owner := testutils.NewMockClient("c1")
	other := testutils.NewMockClient("c2")
	h.Register(owner, 7, true)
	h.Register(other, 8, true)

	h.Dispatch(event(7, false))

	assert.Equal(t, []string{hub.EventPriceUpdate}, owner.Events())
	assert.Empty(t, other.Events())
}

func TestHub_SignificantChangeReachesEveryone(t *testing.T) {
	h := hub.NewHub(zap.NewNop())
	owner := testutils.NewMockClient("c1")
	other := testutils.NewMockClient("c2")
	anon := testutils.NewMockClient("c3")
	h.Register(owner, 7, true)
	h.Register(other, 8, true)
	h.Register(anon, 0, false)

	h.Dispatch(event(7, true))

	// Owner gets the targeted update plus the broadcast
	assert.ElementsMatch(t, []string{hub.EventPriceUpdate, hub.EventSignificantChange}, owner.Events())
	assert.Equal(t, []string{hub.EventSignificantChange}, other.Events())
	assert.Equal(t, []string{hub.EventSignificantChange}, anon.Events())
}

func TestHub_AnonymousNeverGetsTargetedUpdates(t *testing.T) {
	h := hub.NewHub(zap.NewNop())
	anon := testutils.NewMockClient("c1")
	h.Register(anon, 0, false)

	h.Dispatch(event(7, false))

	assert.Empty(t, anon.Events())
}

func TestHub_DispatchToEmptyGroupIsNotAnError(t *testing.T) {
	h := hub.NewHub(zap.NewNop())

	// No connections at all; must simply be a no-op
	h.Dispatch(event(7, true))
}

func TestHub_UnregisterCleansGroup(t *testing.T) {
	h := hub.NewHub(zap.NewNop())
	owner := testutils.NewMockClient("c1")
	h.Register(owner, 7, true)

	h.Unregister(owner)
	h.Dispatch(event(7, true))

	assert.Empty(t, owner.Events())
	assert.True(t, owner.Closed)
	assert.Equal(t, 0, h.ClientCount())
}

func TestHub_UnregisterUnknownClientIsSafe(t *testing.T) {
	h := hub.NewHub(zap.NewNop())
	stranger := testutils.NewMockClient("cx")

	h.Unregister(stranger)

	assert.False(t, stranger.Closed)
}

func TestHub_TwoConnectionsSameSubjectBothReceive(t *testing.T) {
	h := hub.NewHub(zap.NewNop())
	laptop := testutils.NewMockClient("c1")
	phone := testutils.NewMockClient("c2")
	h.Register(laptop, 7, true)
	h.Register(phone, 7, true)

	h.Dispatch(event(7, false))

	assert.Equal(t, []string{hub.EventPriceUpdate}, laptop.Events())
	assert.Equal(t, []string{hub.EventPriceUpdate}, phone.Events())
}

func TestHub_PayloadCarriesTheEvent(t *testing.T) {
	h := hub.NewHub(zap.NewNop())
	owner := testutils.NewMockClient("c1")
	h.Register(owner, 7, true)

	ev := event(7, false)
	h.Dispatch(ev)

	require.Len(t, owner.Envelopes, 1)
	assert.Equal(t, ev, owner.Envelopes[0].Data)
}
