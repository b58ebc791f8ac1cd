package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attribot/attribot/internal/config"
	"github.com/attribot/attribot/internal/logging"
	"github.com/attribot/attribot/internal/relay"
	"github.com/attribot/attribot/internal/speakers"
	"github.com/attribot/attribot/internal/store"
	"github.com/bwmarrin/discordgo"
)

// InteractionSession is the slice of *discordgo.Session the handler needs.
// Tests provide a fake; production passes the live session.
type InteractionSession interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Operator-facing reply fragments. The exact wording is part of the
// operator contract; runbooks quote these messages.
const (
	msgInvalidMetadata = "❌ Invalid metadata format. Please use format 'speaker_00:name,speaker_01:name'"
	msgDuplicate       = "⚠️ This request was already processed."
	msgNotAllowed      = "❌ You don't have a role that is allowed to run this command."
	hintNotWaiting     = "\n_(This often means the execution ID is incorrect or the workflow is no longer waiting.)_"
	hintUnreachable    = "\n_(Could not connect to the n8n instance.)_"
)

// Handler processes slash command interactions: parse, dedupe, relay, reply.
type Handler struct {
	client     *relay.Client
	dedupe     *relay.Dedupe
	deliveries *store.Store // nil disables auditing
	findRoute  func(name string) *config.Route
	logger     *logging.Logger
}

// NewHandler creates an interaction handler.
func NewHandler(client *relay.Client, dedupe *relay.Dedupe, deliveries *store.Store, findRoute func(string) *config.Route) *Handler {
	return &Handler{
		client:     client,
		dedupe:     dedupe,
		deliveries: deliveries,
		findRoute:  findRoute,
		logger:     logging.GetLogger("bot.handler"),
	}
}

// Handle dispatches one interaction. Non-command interactions and unknown
// commands are ignored; everything else gets a reply.
func (h *Handler) Handle(s InteractionSession, ic *discordgo.InteractionCreate) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := ic.ApplicationCommandData()
	route := h.findRoute(data.Name)
	if route == nil {
		h.logger.Warn("No route for command %q, ignoring", data.Name)
		return
	}

	user := interactionUser(ic)
	h.logger.Info("Received /%s from %s", data.Name, user)

	if !h.roleAllowed(route, ic) {
		h.respondMessage(s, ic, msgNotAllowed, route.Ephemeral)
		return
	}

	opts := optionMap(data.Options)
	executionID := opts[optExecutionID]
	metadata := opts[optMetadata]
	transcriptionID := opts[optTranscriptionID]

	speakerMap, err := speakers.ParseMap(metadata)
	if err != nil {
		h.logger.Warn("Rejected metadata from %s: %v", user, err)
		h.respondMessage(s, ic, msgInvalidMetadata, route.Ephemeral)
		return
	}

	// Gateway redelivery must not resume the same workflow twice.
	if !h.dedupe.Claim(ic.ID) {
		h.logger.Warn("Duplicate interaction %s for execution %s, dropping", ic.ID, executionID)
		h.respondMessage(s, ic, msgDuplicate, route.Ephemeral)
		return
	}

	// Ack within Discord's 3-second window before doing network work.
	if err := h.deferResponse(s, ic, route.Ephemeral); err != nil {
		h.logger.Error("Failed to defer interaction %s: %v", ic.ID, err)
		h.dedupe.Release(ic.ID)
		return
	}

	result, relayErr := h.client.Resume(context.Background(), route.WebhookPath, executionID, relay.Payload{
		Metadata:        speakerMap,
		TranscriptionID: transcriptionID,
	})
	if relayErr != nil {
		// The workflow was not resumed; let the operator retry.
		h.dedupe.Release(ic.ID)
	}

	h.audit(route.Name, executionID, transcriptionID, user, speakerMap, result, relayErr)
	h.followup(s, ic, executionID, route.Ephemeral, result, relayErr)
}

// roleAllowed checks the route's role restriction against the invoking
// member. DMs carry no member and are rejected for restricted routes.
func (h *Handler) roleAllowed(route *config.Route, ic *discordgo.InteractionCreate) bool {
	if len(route.AllowedRoleIDs) == 0 {
		return true
	}
	if ic.Member == nil {
		return false
	}
	for _, have := range ic.Member.Roles {
		for _, want := range route.AllowedRoleIDs {
			if have == want {
				return true
			}
		}
	}
	return false
}

// followup sends the operator the outcome of the relay attempt.
func (h *Handler) followup(s InteractionSession, ic *discordgo.InteractionCreate, executionID string, ephemeral bool, result *relay.Result, relayErr error) {
	var content string
	switch {
	case relayErr == nil:
		content = fmt.Sprintf("✅ Successfully sent metadata for execution `%s` to the workflow!", executionID)
	case errors.Is(relayErr, relay.ErrWorkflowNotWaiting):
		content = failureMessage(executionID) +
			fmt.Sprintf("\n_Details: Received status %d from n8n._", result.StatusCode) +
			hintNotWaiting
	default:
		var statusErr *relay.StatusError
		if errors.As(relayErr, &statusErr) {
			content = failureMessage(executionID) +
				fmt.Sprintf("\n_Details: Received status %d from n8n._", statusErr.StatusCode)
		} else {
			content = failureMessage(executionID) + hintUnreachable
		}
	}

	params := &discordgo.WebhookParams{Content: content}
	if ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	if _, err := s.FollowupMessageCreate(ic.Interaction, true, params); err != nil {
		h.logger.Error("Failed to send followup for interaction %s: %v", ic.ID, err)
	}
}

func failureMessage(executionID string) string {
	return fmt.Sprintf("❌ Failed to send metadata to the workflow for execution `%s`.", executionID)
}

// audit records the attempt in the delivery store, if one is configured.
// Store failures are logged and never surface to the operator.
func (h *Handler) audit(command, executionID, transcriptionID, user string, speakerMap map[string]string, result *relay.Result, relayErr error) {
	if h.deliveries == nil {
		return
	}

	delivery := store.Delivery{
		ID:              result.DeliveryID,
		Command:         command,
		ExecutionID:     executionID,
		TranscriptionID: transcriptionID,
		Speakers:        speakerMap,
		Outcome:         outcomeFor(relayErr),
		HTTPStatus:      result.StatusCode,
		DiscordUser:     user,
	}
	if relayErr != nil {
		delivery.Error = relayErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.deliveries.Record(ctx, delivery); err != nil {
		h.logger.Error("Failed to record delivery %s: %v", delivery.ID, err)
	}
}

// outcomeFor maps a relay error to an audit/metrics outcome label.
func outcomeFor(relayErr error) string {
	switch {
	case relayErr == nil:
		return relay.OutcomeSuccess
	case errors.Is(relayErr, relay.ErrWorkflowNotWaiting):
		return relay.OutcomeNotWaiting
	default:
		var statusErr *relay.StatusError
		if errors.As(relayErr, &statusErr) {
			return relay.OutcomeHTTPError
		}
		return relay.OutcomeUnreachable
	}
}

// respondMessage sends an immediate (non-deferred) reply.
func (h *Handler) respondMessage(s InteractionSession, ic *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		h.logger.Error("Failed to respond to interaction %s: %v", ic.ID, err)
	}
}

// deferResponse acknowledges the interaction so the relay call can exceed
// Discord's response deadline.
func (h *Handler) deferResponse(s InteractionSession, ic *discordgo.InteractionCreate, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
}

// optionMap flattens interaction options into name -> string value.
func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	m := make(map[string]string, len(options))
	for _, opt := range options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			m[opt.Name] = opt.StringValue()
		}
	}
	return m
}

// interactionUser names the invoking user for logs and the audit trail.
func interactionUser(ic *discordgo.InteractionCreate) string {
	if ic.Member != nil && ic.Member.User != nil {
		return ic.Member.User.Username
	}
	if ic.User != nil {
		return ic.User.Username
	}
	return "unknown"
}
