package mail

import (
	"fmt"
	"strings"
)

// Invitation describes an out-of-band invite sent to a participant who has
// no account yet, so there is no user row to attach an in-app notification to.
type Invitation struct {
	ToEmail     string
	FromName    string
	Title       string
	Description string
	PromiseID   string
	Role        string // "promisee" or "mentor"
}

// BuildInvitationMessage renders an Invitation into a plain-text email.
func BuildInvitationMessage(inv Invitation) Message {
	role := inv.Role
	if role == "" {
		role = "promisee"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s made a promise and wants you involved as their %s:\n\n", inv.FromName, role)
	fmt.Fprintf(&b, "  %s\n", inv.Title)
	if strings.TrimSpace(inv.Description) != "" {
		fmt.Fprintf(&b, "\n%s\n", inv.Description)
	}
	b.WriteString("\nSign up with this email address to follow their progress.\n")
	if inv.PromiseID != "" {
		fmt.Fprintf(&b, "\nPromise reference: %s\n", inv.PromiseID)
	}

	return Message{
		To:      []string{inv.ToEmail},
		Subject: fmt.Sprintf("%s invited you to a promise on Pledger", inv.FromName),
		Body:    b.String(),
	}
}
