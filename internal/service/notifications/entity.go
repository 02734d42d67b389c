package notifications

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/agora-server/internal/store"
)

// EntityKind tags what a notification points at.
type EntityKind string

// Entity kinds known to the platform.
const (
	EntityPublication EntityKind = "PUBLICATION"
	EntitySimpleEvent EntityKind = "SIMPLE_EVENT"
	EntityReferendum  EntityKind = "REFERENDUM"
	EntityMultiPoll   EntityKind = "MULTI_POLL"
	EntitySignal      EntityKind = "SIGNAL"
	EntityComment     EntityKind = "COMMENT"
	EntityUser        EntityKind = "USER"
)

// entityPaths holds one URL builder per kind. Comments have none of their
// own: their link is derived from the parent content.
var entityPaths = map[EntityKind]func(id int64) string{
	EntityPublication: prefixed("/publications/"),
	EntitySimpleEvent: prefixed("/events/"),
	EntityReferendum:  prefixed("/referendums/"),
	EntityMultiPoll:   prefixed("/polls/"),
	EntitySignal:      prefixed("/signals/"),
	EntityUser:        prefixed("/users/"),
}

func prefixed(prefix string) func(int64) string {
	return func(id int64) string {
		return prefix + strconv.FormatInt(id, 10)
	}
}

// ParseEntityKind validates a raw kind string.
func ParseEntityKind(s string) (EntityKind, bool) {
	k := EntityKind(s)
	if k == EntityComment {
		return k, true
	}
	_, ok := entityPaths[k]
	return k, ok
}

// Path returns the canonical path of an entity. Comments report false.
func (k EntityKind) Path(id int64) (string, bool) {
	build, ok := entityPaths[k]
	if !ok {
		return "", false
	}
	return build(id), true
}

// IsCommentable reports whether comments can hang off this kind.
func (k EntityKind) IsCommentable() bool {
	switch k {
	case EntityPublication, EntitySimpleEvent, EntityReferendum, EntityMultiPoll, EntitySignal:
		return true
	default:
		return false
	}
}

func commentFragment(commentID int64) string {
	return "#comment-" + strconv.FormatInt(commentID, 10)
}

// URLResolver maps entity references to action URLs.
type URLResolver struct {
	comments store.CommentStore
	log      *zerolog.Logger
}

// NewURLResolver creates a resolver that walks comments through comments.
func NewURLResolver(comments store.CommentStore, logger *zerolog.Logger) *URLResolver {
	return &URLResolver{comments: comments, log: logger}
}

// Resolve returns the action URL of (kind, id). A comment links into its
// parent content; an unresolvable parent degrades to the fragment alone.
func (r *URLResolver) Resolve(ctx context.Context, kind EntityKind, id int64) string {
	if kind != EntityComment {
		path, _ := kind.Path(id)
		return path
	}

	parentPath, err := r.CommentParentPath(ctx, id)
	if err != nil {
		r.log.Debug().Err(err).Int64("comment_id", id).Msg("comment parent not resolvable")
		return commentFragment(id)
	}
	return parentPath + commentFragment(id)
}

var errNotCommentable = errors.New("parent kind does not take comments")

// CommentParentPath returns the path of the content a comment belongs to.
func (r *URLResolver) CommentParentPath(ctx context.Context, commentID int64) (string, error) {
	parent, err := r.comments.GetCommentParent(ctx, commentID)
	if err != nil {
		return "", err
	}
	kind := EntityKind(parent.ParentType)
	if !kind.IsCommentable() {
		return "", fmt.Errorf("%s: %w", parent.ParentType, errNotCommentable)
	}
	path, _ := kind.Path(parent.ParentID)
	return path, nil
}
