package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attribot/attribot/internal/config"
	"github.com/attribot/attribot/internal/relay"
	"github.com/attribot/attribot/internal/speakers"
	"github.com/spf13/cobra"
)

var (
	sendExecutionID     string
	sendMetadata        string
	sendTranscriptionID string
	sendBaseURL         string
	sendTimeout         time.Duration
)

// sendCmd resumes a waiting execution directly, without Discord. Useful for
// testing a workflow or recovering when the bot is down.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a speaker mapping to a waiting workflow execution",
	Long: `Send a speaker mapping straight to a waiting n8n workflow execution,
bypassing Discord. The metadata format matches the slash command:
"speaker_00:Alice,speaker_01:Bob".`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendExecutionID, "execution-id", "", "Waiting n8n execution ID (required)")
	sendCmd.Flags().StringVar(&sendMetadata, "metadata", "", "Speaker mapping, e.g. \"speaker_00:Alice,speaker_01:Bob\" (required)")
	sendCmd.Flags().StringVar(&sendTranscriptionID, "transcription-id", "", "Transcription the mapping belongs to (required)")
	sendCmd.Flags().StringVar(&sendBaseURL, "n8n-base-url", "", "n8n base URL (defaults to N8N_WEBHOOK_BASE_URL)")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", config.DefaultRequestTimeout, "Timeout for the resume call")
	_ = sendCmd.MarkFlagRequired("execution-id")
	_ = sendCmd.MarkFlagRequired("metadata")
	_ = sendCmd.MarkFlagRequired("transcription-id")
}

func runSend(cmd *cobra.Command, args []string) error {
	if err := setupLog(logLevelFlags); err != nil {
		return err
	}

	baseURL := sendBaseURL
	if baseURL == "" {
		cfg, err := config.Load("")
		if err != nil {
			return err
		}
		baseURL = cfg.N8NBaseURL
	}
	if baseURL == "" {
		return fmt.Errorf("n8n base URL not set (use --n8n-base-url or %s)", config.EnvN8NBaseURL)
	}

	mapping, err := speakers.ParseMap(sendMetadata)
	if err != nil {
		return fmt.Errorf("invalid metadata: %w (%s)", err, speakers.FormatHint)
	}

	client := relay.NewClient(baseURL, sendTimeout, nil)

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	result, err := client.Resume(ctx, relay.DefaultWebhookPath, sendExecutionID, relay.Payload{
		Metadata:        mapping,
		TranscriptionID: sendTranscriptionID,
	})
	if err != nil {
		if errors.Is(err, relay.ErrWorkflowNotWaiting) {
			return fmt.Errorf("workflow not waiting: the execution ID may be incorrect or the workflow is no longer waiting")
		}
		return err
	}

	fmt.Printf("Workflow resumed: execution=%s status=%d delivery=%s\n",
		sendExecutionID, result.StatusCode, result.DeliveryID)
	return nil
}
