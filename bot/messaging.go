package bot

import (
	"fmt"

	"mentorhub/entity"
)

// NotifyText forwards a log record to every admin. Satisfies
// logger.Notifier so error-level records reach Telegram.
func (t *TgBot) NotifyText(msg string) {
	t.notifyAdmins(Sanitize(msg))
}

// NotifyEvent formats a domain event and pushes it to every admin.
// Satisfies core.Notifier.
func (t *TgBot) NotifyEvent(event entity.DomainEvent) {
	var text string
	switch event.Kind {
	case entity.EventUserRegistered:
		if event.User == nil {
			return
		}
		text = fmt.Sprintf("New registration: *%s* \\(%s\\)",
			Sanitize(event.User.Name), Sanitize(string(event.User.Role)))
		// a fresh registration may have minted a new admin
		defer t.Refresh()
	case entity.EventTopicCompleted:
		if event.User == nil {
			return
		}
		text = fmt.Sprintf("Topic completed: *%s* finished _%s_",
			Sanitize(event.User.Name), Sanitize(event.Topic))
	case entity.EventMessageSent:
		if event.Message == nil {
			return
		}
		text = fmt.Sprintf("Message from *%s*:\n%s",
			Sanitize(event.Message.UserName), Sanitize(event.Message.Content))
	default:
		return
	}
	t.notifyAdmins(text)
}
