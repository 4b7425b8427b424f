package delivery

import (
	"fmt"
	"strings"

	"smartplan/internal/event"
)

// Content is the rendered material for one fired event: what the
// notification surface shows and what the email says.
type Content struct {
	Title        string
	Body         string
	EmailSubject string
	EmailBody    string
}

// Render builds the channel content for an event. Confirmation events get
// the full HTML summary email; reminder and deadline events reuse the
// notification text as the email.
func Render(ev event.Event) Content {
	if ev.Kind == event.KindConfirmation {
		return Content{
			Title:        "Task Confirmation",
			Body:         "A new task has been added: " + ev.Payload.Description,
			EmailSubject: "A new task has been added to your Smartplan",
			EmailBody:    confirmationHTML(ev.Payload),
		}
	}

	title := "Task Reminder"
	if ev.Kind == event.KindDeadline {
		title = "Task Deadline"
	}
	body := "Your task is due: " + ev.Payload.Description
	return Content{
		Title:        title,
		Body:         body,
		EmailSubject: title,
		EmailBody:    body,
	}
}

func confirmationHTML(p event.Payload) string {
	var b strings.Builder
	b.WriteString("<html>\n<body>\n")
	b.WriteString("<p>A new task has been added to your Smartplan:</p>\n")
	fmt.Fprintf(&b, "<p><b>Task:</b><br>%s</p>\n", p.Description)
	fmt.Fprintf(&b, "<p><b>Deadline:</b><br>%s</p>\n", p.DeadlineText)
	fmt.Fprintf(&b, "<p><b>Reminders:</b><br>%s</p>\n", strings.Join(p.Reminders, "<br>"))
	b.WriteString("<p>Thank you for using Smartplan!</p>\n")
	b.WriteString("</body>\n</html>")
	return b.String()
}
