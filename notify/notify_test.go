package notify_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/jrsteele09/go-blog-session/notify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := notify.LogNotifier{Logger: zerolog.New(&buf)}

	n.Notify(context.Background(), notify.Notification{Level: notify.LevelError, Message: "Session expired"})

	require.Contains(t, buf.String(), `"message":"Session expired"`)
	require.Contains(t, buf.String(), `"level":"error"`)
}

func TestLogNavigator(t *testing.T) {
	n := notify.NewLogNavigator()
	require.Empty(t, n.Last())
	n.Navigate(context.Background(), "/login")
	require.Equal(t, "/login", n.Last())
}

func TestRecorderAndFuncs(t *testing.T) {
	ctx := context.Background()
	r := &notify.Recorder{}

	var viaFunc []string
	var nav notify.Navigator = notify.NavigatorFunc(func(ctx context.Context, path string) {
		viaFunc = append(viaFunc, path)
		r.Navigate(ctx, path)
	})
	var notifier notify.Notifier = notify.NotifierFunc(r.Notify)

	nav.Navigate(ctx, "/login")
	notifier.Notify(ctx, notify.Notification{Level: notify.LevelInfo, Message: "hi"})

	require.Equal(t, []string{"/login"}, viaFunc)
	require.Equal(t, []string{"/login"}, r.Paths())
	require.Equal(t, []notify.Notification{{Level: notify.LevelInfo, Message: "hi"}}, r.Notifications())
}
