package cli

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestTriggerRenderRejectsBadInput(t *testing.T) {
	cli := &DocgenOpsCLI{jobs: &JobsCLI{}}

	_, err := cli.TriggerRender(context.Background(), 0, "po-pdf", "ops:test")
	require.ErrorContains(t, err, "order id")

	_, err = cli.TriggerRender(context.Background(), 42, "invoice-pdf", "ops:test")
	require.ErrorContains(t, err, "unknown output kind")
}

func TestTriggerRenderRequiresClient(t *testing.T) {
	var cli *DocgenOpsCLI
	_, err := cli.TriggerRender(context.Background(), 42, "po-pdf", "")
	require.Error(t, err)
}

func TestJobsCLITriggerUnsupportedName(t *testing.T) {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	cli := &JobsCLI{client: client}
	_, err := cli.Trigger(context.Background(), "docgen:render")
	require.ErrorContains(t, err, "unsupported job")
}
