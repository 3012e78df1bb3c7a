package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	n := Notification{}.WithDefaults()
	require.Equal(t, "Missed Call", n.Title)
	require.Equal(t, "There was a call", n.Body)
	require.Equal(t, 2*time.Second, n.Delay)

	n = Notification{Title: "Custom", Delay: time.Millisecond}.WithDefaults()
	require.Equal(t, "Custom", n.Title)
	require.Equal(t, time.Millisecond, n.Delay)
}

func TestScheduleDeliversAfterDelay(t *testing.T) {
	delivered := make(chan Notification, 1)
	n := NewLoggingNotifier(func(note Notification) { delivered <- note })
	defer n.Close()

	require.NoError(t, n.Schedule(context.Background(), Notification{CallID: "A", Delay: 10 * time.Millisecond}))

	select {
	case note := <-delivered:
		require.Equal(t, "A", note.CallID)
		require.Equal(t, DefaultTitle, note.Title)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestCloseCancelsPending(t *testing.T) {
	delivered := make(chan Notification, 1)
	n := NewLoggingNotifier(func(note Notification) { delivered <- note })

	require.NoError(t, n.Schedule(context.Background(), Notification{Delay: 50 * time.Millisecond}))
	require.NoError(t, n.Close())

	select {
	case <-delivered:
		t.Fatal("cancelled notification was delivered")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAuthorizationSettings(t *testing.T) {
	n := NewLoggingNotifier(nil)
	ctx := context.Background()

	settings, err := n.Settings(ctx)
	require.NoError(t, err)
	require.Equal(t, "notDetermined", settings["authorizationStatus"])

	granted, err := n.RequestAuthorization(ctx, []string{"alert", "sound"})
	require.NoError(t, err)
	require.True(t, granted)

	settings, err = n.Settings(ctx)
	require.NoError(t, err)
	require.Equal(t, "authorized", settings["authorizationStatus"])
	require.Equal(t, "enabled", settings["soundSetting"])
	require.Equal(t, "disabled", settings["badgeSetting"])
}
