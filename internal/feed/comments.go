package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type commentSubmission struct {
	postID    string
	actor     Actor
	text      string
	pending   Comment
	confirmed Comment
}

// AddComment appends a pending comment immediately and confirms it with the
// backend. The draft for the post is cleared on submission and restored when
// the comment has to be withdrawn. When the backend has no comment endpoint
// the comment stays as a local-only annotation and ErrRemoteUnavailable is
// returned alongside it.
func (e *Engine) AddComment(ctx context.Context, postID, text string) (Comment, error) {
	postID = strings.TrimSpace(postID)
	content := strings.TrimSpace(text)
	if postID == "" || content == "" {
		e.observe(opAddComment, OutcomeRejectedLocally)
		return Comment{}, fmt.Errorf("%w: post id and comment text are required", ErrValidation)
	}
	actor := e.actor()

	submission := &commentSubmission{postID: postID, actor: actor, text: text}
	err := Optimistically(ctx, Optimistic[*commentSubmission]{
		Apply: func() (*commentSubmission, error) {
			pending := Comment{
				ID:             e.tempIDs(),
				PostID:         postID,
				Content:        content,
				AuthorIdentity: actor.Identity,
				AuthorName:     actor.DisplayName,
				CreatedAt:      e.clock().UTC(),
				Pending:        true,
			}
			if _, _, err := e.store.Mutate(postID, func(Post) (Command, error) {
				return AppendComment{PostID: postID, Comment: pending}, nil
			}); err != nil {
				return nil, err
			}
			e.drafts.Clear(postID)
			submission.pending = pending
			return submission, nil
		},
		Confirm: func(ctx context.Context, submission *commentSubmission) error {
			if !submission.actor.HasCredential() {
				return ErrAuthMissing
			}
			confirmed, err := e.backend.AddComment(ctx, submission.actor, submission.postID, content)
			if err != nil {
				return err
			}
			submission.confirmed = confirmed
			return nil
		},
		Revert: e.withdrawComment,
		Settle: e.settleComment,
	})
	switch {
	case err == nil:
		return submission.confirmed, nil
	case submission.pending.ID == "":
		e.observe(opAddComment, OutcomeRejectedLocally)
		return Comment{}, err
	case errors.Is(err, ErrRemoteUnavailable):
		local := submission.pending
		local.Pending = false
		local.LocalOnly = true
		return local, err
	default:
		return Comment{}, err
	}
}

func (e *Engine) withdrawComment(submission *commentSubmission, cause error) {
	if errors.Is(cause, ErrRemoteUnavailable) {
		e.store.Dispatch(MarkCommentLocal{PostID: submission.postID, CommentID: submission.pending.ID})
		e.logWarn(opAddComment, "comments_not_synced",
			zap.String("post_id", submission.postID),
			zap.Error(cause))
		e.observe(opAddComment, OutcomeDegraded)
		e.notify(Notification{
			Severity: SeverityWarning,
			Title:    "Comment saved locally",
			Detail:   "comments are not currently synced",
			PostID:   submission.postID,
		})
		return
	}
	e.store.Dispatch(RemoveComment{PostID: submission.postID, CommentID: submission.pending.ID})
	e.drafts.Set(submission.postID, submission.text)
	e.logError(opAddComment, "reverted", cause, zap.String("post_id", submission.postID))
	e.observe(opAddComment, OutcomeReverted)
	e.notify(Notification{
		Severity: SeverityError,
		Title:    "Failed to add comment",
		Detail:   cause.Error(),
		PostID:   submission.postID,
	})
}

func (e *Engine) settleComment(ctx context.Context, submission *commentSubmission) {
	confirmed := submission.confirmed
	if confirmed.ID == "" {
		confirmed.ID = submission.pending.ID
	}
	if confirmed.Content == "" {
		confirmed.Content = submission.pending.Content
	}
	if confirmed.AuthorIdentity == "" {
		confirmed.AuthorIdentity = submission.pending.AuthorIdentity
		confirmed.AuthorName = submission.pending.AuthorName
	}
	if confirmed.CreatedAt.IsZero() {
		confirmed.CreatedAt = submission.pending.CreatedAt
	}
	submission.confirmed = confirmed
	e.store.Dispatch(ConfirmComment{PostID: submission.postID, PendingID: submission.pending.ID, Comment: confirmed})
	e.observe(opAddComment, OutcomeConfirmed)
	e.notify(Notification{Severity: SeveritySuccess, Title: "Comment added", PostID: submission.postID})

	if e.refreshAfterComment {
		if err := e.Refresh(ctx); err != nil {
			e.logWarn(opAddComment, "refresh_after_comment_failed", zap.Error(err))
		}
	}
}
