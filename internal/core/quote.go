package core

import (
	"regexp"
	"sort"
	"strings"

	"github.com/edvin/timeoff/internal/model"
)

// quotePreambleRe matches reply headers such as
// "On Mon, Jan 1 John <j@x.com> wrote:".
var quotePreambleRe = regexp.MustCompile(`^On\s.+wrote:\s*$`)

// CleanQuotedContent strips the quoted history from an inbound reply. A
// quote starts at a "> " line or an "On ... wrote:" line and runs until the
// next blank line.
func CleanQuotedContent(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	var out []string
	quoted := false
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, ">") || quotePreambleRe.MatchString(trimmed):
			quoted = true
		case trimmed == "":
			quoted = false
			out = append(out, "")
		case !quoted:
			out = append(out, strings.TrimRight(line, " \t"))
		}
	}

	text := blankRunRe.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
	return strings.TrimSpace(text)
}

// BuildConversation interleaves inbound replies with the user's answers,
// newest first.
func BuildConversation(replies []model.Reply) []model.ConversationMessage {
	var msgs []model.ConversationMessage
	for _, r := range replies {
		from := r.FromEmail
		if r.FromName != nil && *r.FromName != "" {
			from = *r.FromName
		}
		msgs = append(msgs, model.ConversationMessage{
			ReplyID:   r.ID,
			Role:      model.RoleManager,
			From:      from,
			Content:   r.Content,
			Timestamp: r.ReceivedAt,
		})

		if r.UserReplySent && r.UserReplyContent != nil {
			at := r.ReceivedAt
			if r.UserReplySentAt != nil {
				at = *r.UserReplySentAt
			}
			msgs = append(msgs, model.ConversationMessage{
				ReplyID:   r.ID,
				Role:      model.RoleSender,
				Content:   *r.UserReplyContent,
				Timestamp: at,
			})
		}
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.After(msgs[j].Timestamp)
	})
	return msgs
}
