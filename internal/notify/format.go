package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/mtfscan/backend/internal/contracts"
)

var tierBanners = map[contracts.Tier]string{
	contracts.TierPremium: "PREMIUM SIGNAL",
	contracts.TierPlus:    "PLUS SIGNAL",
	contracts.TierFree:    "FREE SIGNAL",
}

var directionArrows = map[contracts.Direction]string{
	contracts.DirectionLong:  "▲ LONG",
	contracts.DirectionShort: "▼ SHORT",
}

// FormatAlert renders the ephemeral alert text for one derived signal.
func FormatAlert(s *contracts.SubscriberSignal) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🔔 %s\n\n", tierBanners[s.Tier])
	fmt.Fprintf(&b, "%s  %s\n", s.Symbol, directionArrows[s.Direction])
	fmt.Fprintf(&b, "Timeframes: %s\n\n", strings.Join(s.Timeframes, " / "))

	fmt.Fprintf(&b, "Entry: %s\n", formatPrice(s.EntryPrice))
	fmt.Fprintf(&b, "Zone:  %s – %s\n\n", formatPrice(s.EntryZone.Low), formatPrice(s.EntryZone.High))

	for _, profile := range contracts.Profiles {
		levels, ok := s.Profiles[profile]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s (%s)\n", profileTitle(profile), contracts.LeverageLabels[profile])
		fmt.Fprintf(&b, "  SL %s", formatPrice(levels.StopLoss))
		for i, tp := range levels.TakeProfits {
			fmt.Fprintf(&b, "  TP%d %s", i+1, formatPrice(tp))
		}
		b.WriteString("\n")
	}

	if minutes := int(time.Until(s.ValidUntil).Minutes()); minutes > 0 {
		fmt.Fprintf(&b, "\nActive for ~%d min\n", minutes)
	}
	fmt.Fprintf(&b, "ID %s", s.Fingerprint)

	return b.String()
}

// FormatDigest renders one combined message for a subscriber's live
// signals, used by the on-demand signal view.
func FormatDigest(signals []*contracts.SubscriberSignal) string {
	if len(signals) == 0 {
		return "No active signals right now. New setups are published as the scanner finds them."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Active signals (%d)\n", len(signals))
	for _, s := range signals {
		b.WriteString("\n")
		b.WriteString(FormatAlert(s))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func profileTitle(p contracts.RiskProfile) string {
	name := string(p)
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func formatPrice(v float64) string {
	s := fmt.Sprintf("%.4f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
