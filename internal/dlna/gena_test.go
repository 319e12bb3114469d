package dlna

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionTable_SubscribeThenHasActiveSubscription(t *testing.T) {
	table := newSubscriptionTable(nil)
	sub, err := table.subscribe("dev1", "AVTransport", "10.0.0.5", "<http://10.0.0.5:1234/notify>", "Second-1800")
	require.NoError(t, err)
	assert.NotEmpty(t, sub.SID)
	assert.True(t, table.hasActiveSubscription("dev1", "AVTransport", "10.0.0.5"))
	assert.False(t, table.hasActiveSubscription("dev1", "AVTransport", "10.0.0.6"))
}

func TestSubscriptionTable_SubscribeWithoutCallbackFails(t *testing.T) {
	table := newSubscriptionTable(nil)
	_, err := table.subscribe("dev1", "AVTransport", "10.0.0.5", "", "Second-1800")
	assert.ErrorIs(t, err, errInvalidArgs)
}

func TestSubscriptionTable_ResubscribeReplacesPriorEntry(t *testing.T) {
	table := newSubscriptionTable(nil)
	first, err := table.subscribe("dev1", "AVTransport", "10.0.0.5", "<http://a/notify>", "Second-1800")
	require.NoError(t, err)
	second, err := table.subscribe("dev1", "AVTransport", "10.0.0.5", "<http://a/notify>", "Second-1800")
	require.NoError(t, err)

	assert.NotEqual(t, first.SID, second.SID)
	subs := table.forDevice("dev1", "AVTransport")
	require.Len(t, subs, 1)
	assert.Equal(t, second.SID, subs[0].SID)
}

func TestSubscriptionTable_RenewUnknownSIDFails(t *testing.T) {
	table := newSubscriptionTable(nil)
	_, err := table.renew("uuid:does-not-exist", "Second-1800")
	assert.ErrorIs(t, err, errInvalidArgs)
}

func TestSubscriptionTable_UnsubscribeRemovesEntry(t *testing.T) {
	table := newSubscriptionTable(nil)
	sub, err := table.subscribe("dev1", "AVTransport", "10.0.0.5", "<http://a/notify>", "Second-1800")
	require.NoError(t, err)

	require.NoError(t, table.unsubscribe(sub.SID))
	assert.False(t, table.hasActiveSubscription("dev1", "AVTransport", "10.0.0.5"))
	assert.ErrorIs(t, table.unsubscribe(sub.SID), errInvalidArgs)
}

func TestLastChangeBody_ContainsExpectedFields(t *testing.T) {
	body := lastChangeBody("PLAYING", "Pause,Stop,Seek", "http://x/track.flac", "http://x/track.flac")
	assert.Contains(t, body, `<TransportState val="PLAYING"/>`)
	assert.Contains(t, body, `<TransportStatus val="OK"/>`)
	assert.Contains(t, body, `<CurrentTransportActions val="Pause,Stop,Seek"/>`)
}

func TestNotifyPropertySet_WrapsLastChangeInPropertySet(t *testing.T) {
	body, err := notifyPropertySet(lastChangeBody("STOPPED", "Play", "", ""))
	require.NoError(t, err)
	assert.Contains(t, string(body), "LastChange")
	assert.Contains(t, string(body), "STOPPED")
}
