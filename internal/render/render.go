// Package render prints feed state and outcome notifications for the CLI.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/MarcoPoloResearchLab/yapp/internal/feed"
	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
)

const timeLayout = "2006-01-02 15:04"

// Printer writes human-readable feed output.
type Printer struct {
	out    io.Writer
	viewer string

	heading *color.Color
	muted   *color.Color
	success *color.Color
	info    *color.Color
	warning *color.Color
	failure *color.Color
}

// NewPrinter builds a Printer. viewer is the current identity, used to mark
// the viewer's own reaction. Colors are disabled when plain is set.
func NewPrinter(out io.Writer, viewer string, plain bool) *Printer {
	p := &Printer{
		out:     out,
		viewer:  strings.ToLower(strings.TrimSpace(viewer)),
		heading: color.New(color.FgCyan, color.Bold),
		muted:   color.New(color.FgHiBlack),
		success: color.New(color.FgGreen),
		info:    color.New(color.FgBlue),
		warning: color.New(color.FgYellow),
		failure: color.New(color.FgRed, color.Bold),
	}
	if plain {
		for _, c := range []*color.Color{p.heading, p.muted, p.success, p.info, p.warning, p.failure} {
			c.DisableColor()
		}
	}
	return p
}

// Feed prints every post in order.
func (p *Printer) Feed(posts []feed.Post) {
	if len(posts) == 0 {
		p.muted.Fprintln(p.out, "No posts yet.")
		return
	}
	for index, post := range posts {
		if index > 0 {
			fmt.Fprintln(p.out)
		}
		p.Post(post)
	}
}

// Post prints one post with its reactions and comments.
func (p *Printer) Post(post feed.Post) {
	p.heading.Fprintf(p.out, "%s", authorLabel(post.AuthorName, post.AuthorIdentity))
	p.muted.Fprintf(p.out, "  %s  [%s]\n", formatTime(post.CreatedAt), post.ID)
	fmt.Fprintf(p.out, "  %s\n", post.Content)

	line := fmt.Sprintf("  +%d / -%d", len(post.LikedBy), len(post.DislikedBy))
	if p.viewer != "" {
		switch post.ReactionOf(p.viewer) {
		case reaction.StateLiked:
			line += " (you liked)"
		case reaction.StateDisliked:
			line += " (you disliked)"
		}
	}
	p.muted.Fprintln(p.out, line)

	for _, comment := range post.Comments {
		p.Comment(comment)
	}
}

// Comment prints one comment line.
func (p *Printer) Comment(comment feed.Comment) {
	fmt.Fprintf(p.out, "    %s: %s", authorLabel(comment.AuthorName, comment.AuthorIdentity), comment.Content)
	switch {
	case comment.LocalOnly:
		p.warning.Fprint(p.out, " (not saved)")
	case comment.Pending:
		p.muted.Fprint(p.out, " (sending)")
	}
	fmt.Fprintln(p.out)
}

// Notification prints an outcome message.
func (p *Printer) Notification(notification feed.Notification) {
	c := p.info
	switch notification.Severity {
	case feed.SeveritySuccess:
		c = p.success
	case feed.SeverityWarning:
		c = p.warning
	case feed.SeverityError:
		c = p.failure
	}
	c.Fprint(p.out, notification.Title)
	if notification.Detail != "" {
		fmt.Fprintf(p.out, ": %s", notification.Detail)
	}
	fmt.Fprintln(p.out)
}

// Event prints a one-line summary of a live update.
func (p *Printer) Event(event feed.Event) {
	switch event.Type {
	case feed.EventPostCreated:
		if event.Post != nil {
			p.info.Fprintf(p.out, "new post from %s [%s]\n", authorLabel(event.Post.AuthorName, event.Post.AuthorIdentity), event.Post.ID)
		}
	case feed.EventPostUpdated:
		if event.Post != nil {
			p.info.Fprintf(p.out, "post updated [%s] +%d / -%d\n", event.Post.ID, len(event.Post.LikedBy), len(event.Post.DislikedBy))
		}
	case feed.EventPostDeleted:
		p.warning.Fprintf(p.out, "post deleted [%s]\n", event.PostID)
	case feed.EventCommentCreated:
		if event.Comment != nil {
			p.info.Fprintf(p.out, "new comment on [%s] from %s\n", event.Comment.PostID, authorLabel(event.Comment.AuthorName, event.Comment.AuthorIdentity))
		}
	}
}

func authorLabel(name, identity string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		if identity == "" {
			return "anonymous"
		}
		return identity
	}
	return name
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format(timeLayout)
}
