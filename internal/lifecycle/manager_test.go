package lifecycle

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeComponent records start/stop invocations into a shared event log.
type fakeComponent struct {
	name     string
	events   *[]string
	startErr error
}

func (f *fakeComponent) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	*f.events = append(*f.events, "start:"+f.name)
	return nil
}

func (f *fakeComponent) Stop(ctx context.Context) error {
	*f.events = append(*f.events, "stop:"+f.name)
	return nil
}

func (f *fakeComponent) Name() string { return f.name }

func TestStartStopOrder(t *testing.T) {
	var events []string
	store := &fakeComponent{name: "store", events: &events}
	relay := &fakeComponent{name: "relay", events: &events}
	bot := &fakeComponent{name: "bot", events: &events}

	m := NewManager()
	require.NoError(t, m.Register(store))
	require.NoError(t, m.Register(relay, store))
	require.NoError(t, m.Register(bot, relay))

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, []string{"start:store", "start:relay", "start:bot"}, events)
	assert.True(t, m.IsRunning(bot))

	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, []string{
		"start:store", "start:relay", "start:bot",
		"stop:bot", "stop:relay", "stop:store",
	}, events)
	assert.False(t, m.IsRunning(store))
}

func TestStartFailureRollsBack(t *testing.T) {
	var events []string
	store := &fakeComponent{name: "store", events: &events}
	bot := &fakeComponent{name: "bot", events: &events, startErr: fmt.Errorf("gateway unreachable")}

	m := NewManager()
	require.NoError(t, m.Register(store))
	require.NoError(t, m.Register(bot, store))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot")
	// Store was started, then rolled back.
	assert.Equal(t, []string{"start:store", "stop:store"}, events)
	assert.False(t, m.IsRunning(store))
}

func TestRegisterValidation(t *testing.T) {
	var events []string
	a := &fakeComponent{name: "a", events: &events}
	b := &fakeComponent{name: "b", events: &events}
	unregistered := &fakeComponent{name: "ghost", events: &events}

	m := NewManager()
	require.NoError(t, m.Register(a))

	assert.Error(t, m.Register(nil), "nil component")
	assert.Error(t, m.Register(a), "duplicate registration")
	assert.Error(t, m.Register(b, unregistered), "unknown dependency")
	assert.Error(t, m.Register(&fakeComponent{name: "", events: &events}), "empty name")
}
