package bot

import (
	"errors"
	"fmt"
	"html"
	"time"

	"nexus-bot/internal/models"
	"nexus-bot/internal/nexus"
)

const (
	msgBanned       = "🚫 You are banned from using this bot."
	msgRestricted   = "🚫 This command is restricted to the bot operator."
	msgInternal     = "⚠️ Something went wrong on our side. Please try again later."
	msgSlowDown     = "⏳ Slow down! You are sending commands too quickly."
	msgQueued       = "🔎 You have been added to the queue. Processing..."
	msgProcessing   = "🔎 Processing your query across the cluster..."
	msgUploading    = "📝 Generating a secure paste for your results..."
	msgInvalidKey   = "❌ Invalid or already used key."
	msgUserNotFound = "❌ User not found in database."
	msgNoRecipients = "❌ No users to broadcast to."
	msgReward       = "🎉 Congratulations! 5 users joined via your link. You've earned 1 week of Premium!"

	usageSearch    = "Usage: <code>/search &lt;query&gt;</code>"
	usageRedeem    = "Usage: <code>/redeem &lt;key&gt;</code>"
	usageGenkey    = "Usage: <code>/genkey &lt;days&gt;</code>"
	usageBan       = "Usage: <code>/ban &lt;user_id&gt;</code>"
	usageUnban     = "Usage: <code>/unban &lt;user_id&gt;</code>"
	usageBroadcast = "Usage: <code>/broadcast &lt;message&gt;</code>"

	helpUser = "🤖 <b>Nexus Search Bot - Help Menu</b>\n\n" +
		"<b>👤 User Commands:</b>\n" +
		"🔹 <code>/start</code> - Start the bot and get your referral link\n" +
		"🔹 <code>/search &lt;query&gt;</code> - Search the Nexus database (Free: 10 lines/file, Premium: 50 lines/file)\n" +
		"🔹 <code>/account</code> - View your tier, referral stats, and exact premium expiration time\n" +
		"🔹 <code>/redeem &lt;key&gt;</code> - Redeem a premium access key\n" +
		"🔹 <code>/stats</code> - View global bot statistics\n" +
		"\n" +
		"🎁 <b>Premium &amp; Referrals:</b>\n" +
		"Every 5 users that join via your referral link automatically grant you 1 Week of Premium!\n" +
		"Free users get 1 search per day. Premium users get 5 searches per day."

	helpAdmin = "\n\n<b>👑 Admin Commands:</b>\n" +
		"🔸 <code>/genkey &lt;days&gt;</code> - Generate a new premium key valid for X days\n" +
		"🔸 <code>/ban &lt;user_id&gt;</code> - Ban a user from using the bot\n" +
		"🔸 <code>/unban &lt;user_id&gt;</code> - Unban a previously banned user\n" +
		"🔸 <code>/broadcast &lt;message&gt;</code> - Send a message to all users safely"
)

func referralLink(bot string, userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", bot, userID)
}

func welcomeText(link string) string {
	return "Welcome to Nexus Search Bot!\n\n" +
		"🔍 Use <code>/search &lt;query&gt;</code> to find data.\n" +
		"🎁 Share your referral link to earn premium: <code>" + html.EscapeString(link) + "</code>\n" +
		"(5 Referrals = 1 Week Premium)"
}

func limitText(limit int) string {
	return fmt.Sprintf("⚠️ You have reached your daily limit of %d search(es). Please wait 24 hours or upgrade to premium.", limit)
}

func redeemedText(days int, expiry time.Time) string {
	return fmt.Sprintf("✅ Successfully redeemed! You now have Premium access for %d days.\n"+
		"Premium is active until <code>%s</code>.", days, expiry.UTC().Format("2006-01-02 15:04 UTC"))
}

// remaining formats d as "Xd Yh Zm", or "Expired" once it has run out.
func remaining(d time.Duration) string {
	if d <= 0 {
		return "Expired"
	}
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}

func tierLabel(tier models.Tier) string {
	if tier == models.TierPremium {
		return "💎 Premium"
	}
	return "🆓 Free"
}

func statsText(s *models.StatsSummary) string {
	return fmt.Sprintf("📊 <b>Bot Statistics</b>\n\n"+
		"👥 <b>Total Users:</b> %d\n"+
		"🆓 <b>Free Users:</b> %d\n"+
		"💎 <b>Premium Users:</b> %d\n\n"+
		"🔍 <b>Total Searches:</b> %d\n"+
		"📝 <b>Results Fetched:</b> %d",
		s.TotalUsers, s.FreeUsers, s.PremiumUsers, s.TotalSearches, s.TotalResults)
}

// readinessText names the offending node when the failure identifies one.
func readinessText(err error) string {
	reason := "Cluster is currently unreachable."
	var (
		notReady    *nexus.NotReadyError
		status      *nexus.HTTPStatusError
		unreachable *nexus.UnreachableError
	)
	if errors.As(err, &notReady) || errors.As(err, &status) || errors.As(err, &unreachable) {
		reason = err.Error()
	}
	return "⏳ Backend is not ready. " + html.EscapeString(reason) + " Please try again in a minute."
}
