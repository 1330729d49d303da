package templates

import (
	"fmt"
	"strings"
	"time"
)

// DisputeMessage turns a notification template and its payload into a short
// title and body shared by every channel
func DisputeMessage(template string, p map[string]string) (title, body string) {
	name := p["title"]
	switch template {
	case "dispute_filed":
		return "New dispute filed", fmt.Sprintf("A %s dispute \"%s\" was filed in your chama.", humanize(p["disputeType"]), name)
	case "discussion_started":
		return "Dispute open for discussion", fmt.Sprintf("\"%s\" is open for discussion until %s.", name, when(p["deadline"]))
	case "voting_started":
		return "Voting has started", fmt.Sprintf("Cast your vote on \"%s\" before %s. %s votes are needed.", name, when(p["deadline"]), p["requiredVotes"])
	case "dispute_resolved":
		body := fmt.Sprintf("\"%s\" was resolved as %s.", name, p["resolutionType"])
		if p["for"] != "" {
			body += fmt.Sprintf(" Final vote: %s for, %s against, %s abstain.", p["for"], p["against"], p["abstain"])
		}
		return "Dispute resolved", body
	case "dispute_escalated":
		return "Dispute escalated", fmt.Sprintf("\"%s\" was escalated for platform review. Reason: %s.", name, humanize(p["reason"]))
	case "dispute_reviewed":
		return "Platform decision", fmt.Sprintf("The platform reviewed \"%s\" and decided: %s. %s", name, p["decision"], p["platformActionDetails"])
	case "status_overridden":
		return "Dispute status changed", fmt.Sprintf("An admin moved \"%s\" from %s to %s. %s", name, p["previousStatus"], p["status"], p["reason"])
	case "discussion_reminder":
		return "Discussion closing soon", fmt.Sprintf("Discussion on \"%s\" closes %s. Add your comments before then.", name, when(p["deadline"]))
	case "voting_reminder":
		return "Your vote is needed", fmt.Sprintf("Voting on \"%s\" closes %s and you have not voted yet.", name, when(p["deadline"]))
	case "discussion_overdue":
		return "Discussion deadline passed", fmt.Sprintf("The discussion deadline for \"%s\" passed on %s. Start voting or resolve the dispute.", name, when(p["deadline"]))
	}
	return "Dispute update", fmt.Sprintf("\"%s\" was updated.", name)
}

// RenderDisputeEmail returns the subject, HTML and plain text of a dispute
// notification email. baseURL links the call to action to the dispute page.
func RenderDisputeEmail(template string, payload map[string]string, baseURL string) (subject, htmlContent, plainText string) {
	title, body := DisputeMessage(template, payload)
	subject = title
	if name := payload["title"]; name != "" {
		subject = title + ": " + name
	}

	link := ""
	if baseURL != "" && payload["disputeId"] != "" {
		link = strings.TrimRight(baseURL, "/") + "/disputes/" + payload["disputeId"]
	}
	plainText = body
	if link != "" {
		plainText += "\n\nView the dispute: " + link
	}
	return subject, RenderGenericEmail(title, body, "View dispute", link), plainText
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

func when(rfc3339 string) string {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return "soon"
	}
	return t.UTC().Format("Mon 2 Jan 15:04 MST")
}
