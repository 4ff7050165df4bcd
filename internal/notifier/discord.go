package notifier

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/gdg-garage/event-checkin/internal/models"
)

// Notifier tells organizers about enrollments that need their attention:
// waitlist admissions, promotions and reverts.
type Notifier interface {
	NotifyEnrollment(event models.Event, participant models.Participant, enrollment models.Enrollment) error
}

// MessageSender is the slice of *discordgo.Session the notifier uses.
type MessageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordNotifier struct {
	session   MessageSender
	channelID string
}

func NewDiscordNotifier(session MessageSender, channelID string) *DiscordNotifier {
	return &DiscordNotifier{
		session:   session,
		channelID: channelID,
	}
}

func (n *DiscordNotifier) NotifyEnrollment(event models.Event, participant models.Participant, enrollment models.Enrollment) error {
	if n.session == nil {
		return fmt.Errorf("discord session is nil")
	}
	if n.channelID == "" {
		return fmt.Errorf("discord channel ID is empty")
	}

	message := FormatEnrollment(event, participant, enrollment)
	if _, err := n.session.ChannelMessageSend(n.channelID, message); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}

	return nil
}

func FormatEnrollment(event models.Event, participant models.Participant, enrollment models.Enrollment) string {
	var status string
	switch enrollment.State {
	case models.StatePresent:
		status = "checked in ✅"
	case models.StateWaitlisted:
		status = "on the waitlist ⏳"
	default:
		status = "enrolled"
	}

	capacity := "unlimited"
	if event.HasCapacityLimit() {
		capacity = fmt.Sprintf("%d", event.Capacity)
	}

	return fmt.Sprintf("📋 **Check-in Update**\n**Event:** %s (capacity: %s)\n**Participant:** %s (%s)\n**Status:** %s",
		event.Name,
		capacity,
		participant.Name,
		participant.RegistrationNumber,
		status,
	)
}
