package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/attribot/attribot/internal/config"
	"github.com/attribot/attribot/internal/relay"
	"github.com/attribot/attribot/internal/store"
	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession records interaction responses without a gateway connection.
type fakeSession struct {
	responses []*discordgo.InteractionResponse
	followups []*discordgo.WebhookParams
}

func (f *fakeSession) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeSession) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.followups = append(f.followups, data)
	return &discordgo.Message{}, nil
}

func (f *fakeSession) deferred() bool {
	return len(f.responses) > 0 &&
		f.responses[0].Type == discordgo.InteractionResponseDeferredChannelMessageWithSource
}

func testRoute() *config.Route {
	return &config.Route{
		Name:        "attribute-speakers",
		Description: "Send speaker attribution back to a waiting n8n workflow.",
		WebhookPath: "webhook-waiting",
		Ephemeral:   true,
	}
}

// newTestHandler wires a Handler against an httptest n8n stand-in.
func newTestHandler(t *testing.T, n8nHandler http.HandlerFunc, route *config.Route, deliveries *store.Store) *Handler {
	t.Helper()
	server := httptest.NewServer(n8nHandler)
	t.Cleanup(server.Close)

	metrics := relay.NewMetrics(prometheus.NewRegistry())
	client := relay.NewClient(server.URL, 0, metrics)
	dedupe, err := relay.NewDedupe(0, metrics)
	require.NoError(t, err)

	return NewHandler(client, dedupe, deliveries, func(name string) *config.Route {
		if route != nil && name == route.Name {
			return route
		}
		return nil
	})
}

func newInteraction(id, command string, member *discordgo.Member, opts map[string]string) *discordgo.InteractionCreate {
	var options []*discordgo.ApplicationCommandInteractionDataOption
	for name, value := range opts {
		options = append(options, &discordgo.ApplicationCommandInteractionDataOption{
			Type:  discordgo.ApplicationCommandOptionString,
			Name:  name,
			Value: value,
		})
	}
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:   id,
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    command,
				Options: options,
			},
			Member: member,
		},
	}
}

func defaultOpts() map[string]string {
	return map[string]string{
		optExecutionID:     "exec_123",
		optMetadata:        "speaker_00:Alice, speaker_01:Bob ",
		optTranscriptionID: "trans_abc",
	}
}

func defaultMember() *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{Username: "TestUser", ID: "12345"}}
}

func TestHandleSuccess(t *testing.T) {
	var gotPath string
	h := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}, testRoute(), nil)

	session := &fakeSession{}
	h.Handle(session, newInteraction("int-1", "attribute-speakers", defaultMember(), defaultOpts()))

	assert.Equal(t, "/webhook-waiting/exec_123", gotPath)
	require.True(t, session.deferred(), "interaction must be deferred before the relay call")
	require.Len(t, session.followups, 1)
	assert.Equal(t, "✅ Successfully sent metadata for execution `exec_123` to the workflow!", session.followups[0].Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, session.followups[0].Flags)
}

func TestHandleInvalidMetadata(t *testing.T) {
	relayCalled := false
	h := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		relayCalled = true
	}, testRoute(), nil)

	opts := defaultOpts()
	opts[optMetadata] = "speaker_00:Alice, speaker_01Bob" // missing colon

	session := &fakeSession{}
	h.Handle(session, newInteraction("int-2", "attribute-speakers", defaultMember(), opts))

	assert.False(t, relayCalled, "invalid metadata must not reach n8n")
	require.Len(t, session.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, session.responses[0].Type)
	assert.Equal(t, msgInvalidMetadata, session.responses[0].Data.Content)
	assert.Empty(t, session.followups)
}

func TestHandleNotWaiting(t *testing.T) {
	h := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, testRoute(), nil)

	session := &fakeSession{}
	h.Handle(session, newInteraction("int-3", "attribute-speakers", defaultMember(), defaultOpts()))

	require.Len(t, session.followups, 1)
	content := session.followups[0].Content
	assert.Contains(t, content, "❌ Failed to send metadata to the workflow for execution `exec_123`.")
	assert.Contains(t, content, "Received status 404 from n8n")
	assert.Contains(t, content, "no longer waiting")
}

func TestHandleServerError(t *testing.T) {
	h := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, testRoute(), nil)

	session := &fakeSession{}
	h.Handle(session, newInteraction("int-4", "attribute-speakers", defaultMember(), defaultOpts()))

	require.Len(t, session.followups, 1)
	assert.Contains(t, session.followups[0].Content, "Received status 500 from n8n")
	assert.NotContains(t, session.followups[0].Content, "no longer waiting")
}

func TestHandleUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused

	metrics := relay.NewMetrics(prometheus.NewRegistry())
	client := relay.NewClient(server.URL, 0, metrics)
	dedupe, err := relay.NewDedupe(0, metrics)
	require.NoError(t, err)
	route := testRoute()
	h := NewHandler(client, dedupe, nil, func(string) *config.Route { return route })

	session := &fakeSession{}
	h.Handle(session, newInteraction("int-5", "attribute-speakers", defaultMember(), defaultOpts()))

	require.Len(t, session.followups, 1)
	assert.Contains(t, session.followups[0].Content, "Could not connect to the n8n instance")
}

func TestHandleDuplicateInteraction(t *testing.T) {
	relayCalls := 0
	h := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		relayCalls++
		w.WriteHeader(http.StatusOK)
	}, testRoute(), nil)

	session := &fakeSession{}
	ic := newInteraction("int-6", "attribute-speakers", defaultMember(), defaultOpts())
	h.Handle(session, ic)
	h.Handle(session, ic) // redelivery of the same interaction

	assert.Equal(t, 1, relayCalls, "the same interaction must not relay twice")
	// First: defer + followup. Second: immediate duplicate notice.
	require.Len(t, session.responses, 2)
	assert.Equal(t, msgDuplicate, session.responses[1].Data.Content)
}

func TestHandleFailureAllowsRetry(t *testing.T) {
	status := http.StatusBadGateway
	h := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}, testRoute(), nil)

	session := &fakeSession{}
	h.Handle(session, newInteraction("int-7", "attribute-speakers", defaultMember(), defaultOpts()))
	require.Len(t, session.followups, 1)
	assert.Contains(t, session.followups[0].Content, "Received status 502")

	// The workflow was never resumed, so a retry must go through.
	status = http.StatusOK
	h.Handle(session, newInteraction("int-7", "attribute-speakers", defaultMember(), defaultOpts()))
	require.Len(t, session.followups, 2)
	assert.Contains(t, session.followups[1].Content, "✅")
}

func TestHandleRoleRestriction(t *testing.T) {
	route := testRoute()
	route.AllowedRoleIDs = []string{"role-ops"}

	relayCalled := false
	h := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		relayCalled = true
		w.WriteHeader(http.StatusOK)
	}, route, nil)

	// Member without the role is rejected.
	session := &fakeSession{}
	h.Handle(session, newInteraction("int-8", "attribute-speakers", defaultMember(), defaultOpts()))
	assert.False(t, relayCalled)
	require.Len(t, session.responses, 1)
	assert.Equal(t, msgNotAllowed, session.responses[0].Data.Content)

	// Member holding the role passes.
	member := defaultMember()
	member.Roles = []string{"role-other", "role-ops"}
	session = &fakeSession{}
	h.Handle(session, newInteraction("int-9", "attribute-speakers", member, defaultOpts()))
	assert.True(t, relayCalled)
	require.Len(t, session.followups, 1)
	assert.Contains(t, session.followups[0].Content, "✅")
}

func TestHandleUnknownCommandIgnored(t *testing.T) {
	h := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("relay must not be called")
	}, nil, nil)

	session := &fakeSession{}
	h.Handle(session, newInteraction("int-10", "mystery-command", defaultMember(), defaultOpts()))

	assert.Empty(t, session.responses)
	assert.Empty(t, session.followups)
}

func TestHandleRecordsDelivery(t *testing.T) {
	deliveries := store.New(filepath.Join(t.TempDir(), "deliveries.db"))
	require.NoError(t, deliveries.Start(context.Background()))
	t.Cleanup(func() { _ = deliveries.Stop(context.Background()) })

	h := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, testRoute(), deliveries)

	session := &fakeSession{}
	h.Handle(session, newInteraction("int-11", "attribute-speakers", defaultMember(), defaultOpts()))

	recorded, err := deliveries.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, "exec_123", recorded[0].ExecutionID)
	assert.Equal(t, "trans_abc", recorded[0].TranscriptionID)
	assert.Equal(t, relay.OutcomeSuccess, recorded[0].Outcome)
	assert.Equal(t, "TestUser", recorded[0].DiscordUser)
	assert.Equal(t, map[string]string{"speaker_00": "Alice", "speaker_01": "Bob"}, recorded[0].Speakers)
}

func TestBuildCommands(t *testing.T) {
	routes := config.DefaultRoutesFile()
	commands := buildCommands(routes)

	require.Len(t, commands, 1)
	assert.Equal(t, "attribute-speakers", commands[0].Name)
	require.Len(t, commands[0].Options, 3)
	for _, opt := range commands[0].Options {
		assert.True(t, opt.Required)
		assert.Equal(t, discordgo.ApplicationCommandOptionString, opt.Type)
	}
}
