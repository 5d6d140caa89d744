package alerts

import (
	"context"
	"strings"

	"github.com/ovenly/backend/pkg/config"
	"github.com/ovenly/backend/pkg/logger"
	"github.com/ovenly/backend/pkg/pubsub"
)

// FromConfig builds the notifier a binary uses. Without a project and topic,
// or when Pub/Sub cannot be reached, alerts go to the log instead. The
// returned close func is always safe to call.
func FromConfig(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Notifier, func()) {
	noop := func() {}
	if logg == nil {
		logg = logger.Nop()
	}
	if strings.TrimSpace(gcp.ProjectID) == "" || strings.TrimSpace(cfg.AlertsTopic) == "" {
		return NewNotifier(NewLogSender(logg), logg, DefaultTimeout), noop
	}

	client, err := pubsub.NewClient(ctx, gcp, cfg, logg)
	if err != nil {
		logg.Error(ctx, "pubsub unavailable, alerts fall back to log", err)
		return NewNotifier(NewLogSender(logg), logg, DefaultTimeout), noop
	}
	sender, err := NewPubSubSender(client.AlertsPublisher())
	if err != nil {
		_ = client.Close()
		logg.Error(ctx, "alerts publisher unavailable, alerts fall back to log", err)
		return NewNotifier(NewLogSender(logg), logg, DefaultTimeout), noop
	}
	return NewNotifier(sender, logg, DefaultTimeout), func() {
		if err := client.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}
}
