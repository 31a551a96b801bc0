package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Topics the notifier subscribes to.
const (
	TopicMeetingBooked    = "meeting.booked.v1"
	TopicMeetingCancelled = "meeting.cancelled.v1"
)

type meetingBookedEvent struct {
	MeetingID    string `json:"meeting_id"`
	EventName    string `json:"event_name"`
	HostName     string `json:"host_name"`
	HostEmail    string `json:"host_email"`
	InviteeName  string `json:"invitee_name"`
	InviteeEmail string `json:"invitee_email"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	MeetingLink  string `json:"meeting_link,omitempty"`
	CancelToken  string `json:"cancel_token,omitempty"`
}

type meetingCancelledEvent struct {
	MeetingID    string `json:"meeting_id"`
	EventName    string `json:"event_name"`
	HostEmail    string `json:"host_email"`
	InviteeName  string `json:"invitee_name"`
	InviteeEmail string `json:"invitee_email"`
	StartTime    string `json:"start_time"`
	Reason       string `json:"reason,omitempty"`
	CancelledBy  string `json:"cancelled_by"`
}

// Notifier turns meeting events into confirmation and cancellation emails
// for both parties. Send failures are logged; the event is not retried
// (the consumer already recorded it in the inbox).
type Notifier struct {
	sender    Sender
	logger    *slog.Logger
	publicURL string
}

func NewNotifier(sender Sender, logger *slog.Logger, publicURL string) *Notifier {
	return &Notifier{sender: sender, logger: logger, publicURL: publicURL}
}

func (n *Notifier) Handle(ctx context.Context, msg kafka.Message) error {
	switch msg.Topic {
	case TopicMeetingBooked:
		return n.handleBooked(msg.Value)
	case TopicMeetingCancelled:
		return n.handleCancelled(msg.Value)
	default:
		n.logger.Warn("unexpected topic", "topic", msg.Topic)
		return nil
	}
}

func (n *Notifier) handleBooked(payload []byte) error {
	var evt meetingBookedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		n.logger.Error("invalid meeting.booked payload", "err", err)
		return nil
	}

	when := formatWhen(evt.StartTime, evt.EndTime)
	link := ""
	if evt.MeetingLink != "" {
		link = "\nJoin: " + evt.MeetingLink
	}

	inviteeBody := fmt.Sprintf(
		"Hi %s,\n\nYour meeting %q with %s is confirmed.\nWhen: %s%s\n\nNeed to cancel? %s/cancel?meeting_id=%s&token=%s\n",
		evt.InviteeName, evt.EventName, evt.HostName, when, link, n.publicURL, evt.MeetingID, evt.CancelToken,
	)
	n.send(evt.InviteeEmail, "Confirmed: "+evt.EventName, inviteeBody)

	hostBody := fmt.Sprintf(
		"New booking for %q.\nInvitee: %s <%s>\nWhen: %s%s\n",
		evt.EventName, evt.InviteeName, evt.InviteeEmail, when, link,
	)
	n.send(evt.HostEmail, "New booking: "+evt.EventName, hostBody)
	return nil
}

func (n *Notifier) handleCancelled(payload []byte) error {
	var evt meetingCancelledEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		n.logger.Error("invalid meeting.cancelled payload", "err", err)
		return nil
	}

	reason := ""
	if evt.Reason != "" {
		reason = "\nReason: " + evt.Reason
	}
	body := fmt.Sprintf(
		"The meeting %q scheduled for %s was cancelled by the %s.%s\n",
		evt.EventName, formatWhen(evt.StartTime, ""), evt.CancelledBy, reason,
	)
	n.send(evt.InviteeEmail, "Cancelled: "+evt.EventName, body)
	n.send(evt.HostEmail, "Cancelled: "+evt.EventName, body)
	return nil
}

func (n *Notifier) send(to, subject, body string) {
	if to == "" {
		return
	}
	if err := n.sender.Send(to, subject, body); err != nil {
		n.logger.Error("email send failed", "to", to, "err", err)
	}
}

func formatWhen(start, end string) string {
	st, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return start
	}
	if end == "" {
		return st.Format("Mon, 02 Jan 2006 15:04 MST")
	}
	et, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return st.Format("Mon, 02 Jan 2006 15:04 MST")
	}
	return fmt.Sprintf("%s - %s", st.Format("Mon, 02 Jan 2006 15:04"), et.Format("15:04 MST"))
}
