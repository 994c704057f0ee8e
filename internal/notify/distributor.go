package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/internal/signals"
	"github.com/wonny/mtfscan/backend/pkg/config"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

// Distributor fans a new base signal out to every eligible subscriber
// as a short-lived alert. Sends are independent: one failing recipient
// never blocks the rest.
type Distributor struct {
	subscribers contracts.SubscriberRepository
	derived     contracts.SubscriberSignalRepository
	deriver     *signals.Deriver
	messenger   contracts.Messenger
	logger      *logger.Logger

	admins      config.TelegramConfig
	autoDelete  time.Duration
	maxPerQuery int

	now func() time.Time
}

// New creates a distributor.
func New(cfg *config.Config, log *logger.Logger, subscribers contracts.SubscriberRepository, derived contracts.SubscriberSignalRepository, deriver *signals.Deriver, messenger contracts.Messenger) *Distributor {
	return &Distributor{
		subscribers: subscribers,
		derived:     derived,
		deriver:     deriver,
		messenger:   messenger,
		logger:      log,
		admins:      cfg.Telegram,
		autoDelete:  cfg.Signals.AlertAutoDelete,
		maxPerQuery: cfg.Signals.MaxPerQuery,
		now:         time.Now,
	}
}

// Distribute derives and sends the signal to each eligible subscriber.
// Returns the number of alerts actually sent.
func (d *Distributor) Distribute(ctx context.Context, base *contracts.BaseSignal) (int, error) {
	subs, err := d.subscribers.List(ctx)
	if err != nil {
		return 0, err
	}

	now := d.now()
	sent := 0
	for _, sub := range subs {
		if !d.eligible(sub, base.Tier, now) {
			continue
		}

		derived, err := d.deriver.Derive(ctx, base, sub.ID)
		if err != nil {
			d.logger.WithError(err).WithField("subscriber_id", sub.ID).Error("Failed to derive signal")
			continue
		}

		ref, err := d.messenger.SendEphemeral(ctx, sub.ID, FormatAlert(derived))
		if err != nil {
			d.logger.WithError(err).WithField("subscriber_id", sub.ID).Error("Failed to send alert")
			continue
		}
		sent++

		d.scheduleDelete(ref)
	}

	d.logger.WithFields(map[string]interface{}{
		"signal_id": base.ID.String(),
		"tier":      string(base.Tier),
		"sent":      sent,
	}).Info("Signal distributed")

	return sent, nil
}

// Digest renders the subscriber's live signals as one combined
// message, the on-demand counterpart of the push alerts. The feed
// follows the same audience rules as distribution.
func (d *Distributor) Digest(ctx context.Context, subscriberID int64) (string, error) {
	sub, err := d.subscribers.Get(ctx, subscriberID)
	if err != nil {
		return "", err
	}

	now := d.now()
	if !sub.HasAccess(now) {
		return "", contracts.ErrNotFound
	}

	tier := d.effectiveTier(sub, now)
	if d.admins.IsAdmin(sub.ID) {
		tier = contracts.TierPremium
	}

	live, err := d.derived.ListLiveForSubscriber(ctx, subscriberID, tier, now, d.maxPerQuery)
	if err != nil {
		return "", fmt.Errorf("list live signals for %d: %w", subscriberID, err)
	}
	return FormatDigest(live), nil
}

// eligible applies the audience rules: the subscriber must currently
// have access, admins only receive premium signals, everyone else only
// their exact tier.
func (d *Distributor) eligible(sub *contracts.Subscriber, tier contracts.Tier, now time.Time) bool {
	if !sub.HasAccess(now) {
		return false
	}
	if d.admins.IsAdmin(sub.ID) {
		return tier == contracts.TierPremium
	}
	return d.effectiveTier(sub, now) == tier
}

func (d *Distributor) effectiveTier(sub *contracts.Subscriber, now time.Time) contracts.Tier {
	if sub.IsPlanActive(now) {
		return sub.Tier
	}
	// Trial subscribers see the free feed.
	return contracts.TierFree
}

// scheduleDelete removes the alert after the auto-delete window. Best
// effort: failures are logged at debug and otherwise ignored.
func (d *Distributor) scheduleDelete(ref contracts.MessageRef) {
	if d.autoDelete <= 0 {
		return
	}
	time.AfterFunc(d.autoDelete, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.messenger.Delete(ctx, ref); err != nil {
			d.logger.WithError(err).Debug("Failed to delete alert message")
		}
	})
}
