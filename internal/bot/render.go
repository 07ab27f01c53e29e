package bot

import (
	"fmt"
	"strings"

	"github.com/luqta/shopbot/internal/models"
)

// escapeHTML escapes text for Telegram's HTML parse mode. Telegram only
// requires the three characters below; html.EscapeString would also
// rewrite quotes, which garbles assistant replies.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")

	return s
}

func displayName(u *User) string {
	if u == nil {
		return ""
	}

	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)

	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	case u.Username != "":
		return "@" + u.Username
	default:
		return ""
	}
}

// renderProductShort formats one catalog entry for a chat message.
func renderProductShort(p models.Product) string {
	return fmt.Sprintf("<b>%s</b>\n\n<b>Price:</b> %.2f\n<b>Category:</b> %s",
		escapeHTML(p.Name), p.Price, escapeHTML(p.CategoryName))
}

// renderProductDetails formats the full product card.
func renderProductDetails(p models.Product) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "<b>%s</b>\n\n", escapeHTML(p.Name))
	fmt.Fprintf(&sb, "<b>Price:</b> %.2f\n", p.Price)
	fmt.Fprintf(&sb, "<b>Category:</b> %s\n", escapeHTML(p.CategoryName))
	fmt.Fprintf(&sb, "<b>Status:</b> %s\n", escapeHTML(p.ApprovalStatus))
	fmt.Fprintf(&sb, "<b>Owner:</b> %s\n", escapeHTML(p.UserUsername))
	fmt.Fprintf(&sb, "<b>Tags:</b> %s\n\n", escapeHTML(strings.Join(p.Tags, ", ")))
	fmt.Fprintf(&sb, "<b>Description:</b>\n%s\n\n", escapeHTML(p.ShortDescription))
	fmt.Fprintf(&sb, "<i>Created at: %s</i>\n", p.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&sb, "<i>Last updated: %s</i>", p.UpdatedAt.Format("2006-01-02 15:04"))

	return sb.String()
}

// renderUserList formats the staff user overview, one line per account.
func renderUserList(users []models.User) string {
	var sb strings.Builder

	sb.WriteString("<b>Users</b>\n")
	for _, u := range users {
		flags := ""
		if u.IsStaff {
			flags = " [staff]"
		}

		if !u.IsActive {
			flags += " [inactive]"
		}

		fmt.Fprintf(&sb, "\n<code>%d</code> %s%s", u.ID, escapeHTML(u.Username), flags)
	}

	return sb.String()
}
