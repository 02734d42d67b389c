package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/vovakirdan/agora-server/internal/store"
)

var kindNouns = map[EntityKind]string{
	EntityPublication: "publication",
	EntitySimpleEvent: "event",
	EntityReferendum:  "referendum",
	EntityMultiPoll:   "poll",
	EntitySignal:      "signal",
	EntityComment:     "comment",
	EntityUser:        "profile",
}

func noun(kind EntityKind) string {
	if n, ok := kindNouns[kind]; ok {
		return n
	}
	return strings.ToLower(string(kind))
}

// event is the common shape of every factory call.
type event struct {
	recipient int64
	actor     *int64
	typ       string
	kind      EntityKind
	entityID  int64
	priority  string
	text      func(actorName string) string
}

// notify drops self-notifications and fills in actor name and entity
// reference before calling Create.
func (s *Service) notify(ctx context.Context, ev event) (*store.Notification, error) {
	if ev.actor != nil && *ev.actor == ev.recipient {
		return nil, nil
	}

	in := CreateInput{
		RecipientID: ev.recipient,
		Type:        ev.typ,
		Text:        ev.text(s.actorName(ctx, ev.actor)),
		ActorID:     ev.actor,
		Priority:    ev.priority,
	}
	if ev.kind != "" {
		kind := string(ev.kind)
		id := ev.entityID
		in.EntityType = &kind
		in.EntityID = &id
	}
	return s.Create(ctx, in)
}

func (s *Service) actorName(ctx context.Context, actorID *int64) string {
	if actorID == nil {
		return "Someone"
	}
	acc, err := s.store.GetAccountByID(ctx, *actorID)
	if err != nil {
		return "Someone"
	}
	return acc.Username
}

// NotifyComment tells an author that actor commented on their content.
func (s *Service) NotifyComment(ctx context.Context, recipient, actor int64, kind EntityKind, entityID int64) (*store.Notification, error) {
	return s.notify(ctx, event{
		recipient: recipient,
		actor:     &actor,
		typ:       TypeComment,
		kind:      kind,
		entityID:  entityID,
		text: func(name string) string {
			return fmt.Sprintf("%s commented on your %s", name, noun(kind))
		},
	})
}

// NotifyReply tells a commenter that actor replied to their comment.
func (s *Service) NotifyReply(ctx context.Context, recipient, actor, commentID int64) (*store.Notification, error) {
	return s.notify(ctx, event{
		recipient: recipient,
		actor:     &actor,
		typ:       TypeReply,
		kind:      EntityComment,
		entityID:  commentID,
		text: func(name string) string {
			return fmt.Sprintf("%s replied to your comment", name)
		},
	})
}

// NotifyLike tells an author that actor liked their content or comment.
func (s *Service) NotifyLike(ctx context.Context, recipient, actor int64, kind EntityKind, entityID int64) (*store.Notification, error) {
	return s.notify(ctx, event{
		recipient: recipient,
		actor:     &actor,
		typ:       TypeLike,
		kind:      kind,
		entityID:  entityID,
		priority:  PriorityLow,
		text: func(name string) string {
			return fmt.Sprintf("%s liked your %s", name, noun(kind))
		},
	})
}

// NotifyDislike tells an author that actor disliked their content or comment.
func (s *Service) NotifyDislike(ctx context.Context, recipient, actor int64, kind EntityKind, entityID int64) (*store.Notification, error) {
	return s.notify(ctx, event{
		recipient: recipient,
		actor:     &actor,
		typ:       TypeDislike,
		kind:      kind,
		entityID:  entityID,
		priority:  PriorityLow,
		text: func(name string) string {
			return fmt.Sprintf("%s disliked your %s", name, noun(kind))
		},
	})
}

// NotifyMention tells a user that actor mentioned them.
func (s *Service) NotifyMention(ctx context.Context, recipient, actor int64, kind EntityKind, entityID int64) (*store.Notification, error) {
	return s.notify(ctx, event{
		recipient: recipient,
		actor:     &actor,
		typ:       TypeMention,
		kind:      kind,
		entityID:  entityID,
		text: func(name string) string {
			return fmt.Sprintf("%s mentioned you in a %s", name, noun(kind))
		},
	})
}

// NotifyNewFollower tells a user that follower started following them.
func (s *Service) NotifyNewFollower(ctx context.Context, recipient, follower int64) (*store.Notification, error) {
	return s.notify(ctx, event{
		recipient: recipient,
		actor:     &follower,
		typ:       TypeNewFollower,
		kind:      EntityUser,
		entityID:  follower,
		text: func(name string) string {
			return fmt.Sprintf("%s started following you", name)
		},
	})
}

// NotifyUnfollow tells a user that follower stopped following them.
func (s *Service) NotifyUnfollow(ctx context.Context, recipient, follower int64) (*store.Notification, error) {
	return s.notify(ctx, event{
		recipient: recipient,
		actor:     &follower,
		typ:       TypeUnfollow,
		kind:      EntityUser,
		entityID:  follower,
		priority:  PriorityLow,
		text: func(name string) string {
			return fmt.Sprintf("%s unfollowed you", name)
		},
	})
}

// NotifyNewVote tells a vote's author that voter took part.
func (s *Service) NotifyNewVote(ctx context.Context, recipient, voter int64, kind EntityKind, entityID int64) (*store.Notification, error) {
	return s.notify(ctx, event{
		recipient: recipient,
		actor:     &voter,
		typ:       TypeNewVote,
		kind:      kind,
		entityID:  entityID,
		priority:  PriorityLow,
		text: func(name string) string {
			return fmt.Sprintf("%s voted in your %s", name, noun(kind))
		},
	})
}

// NotifyEventEnded tells a participant that a time-boxed item has closed.
func (s *Service) NotifyEventEnded(ctx context.Context, recipient int64, kind EntityKind, entityID int64, title string) (*store.Notification, error) {
	return s.notify(ctx, event{
		recipient: recipient,
		typ:       TypeEventEnded,
		kind:      kind,
		entityID:  entityID,
		text: func(string) string {
			return fmt.Sprintf("The %s %q has ended", noun(kind), title)
		},
	})
}

// NotifyPublicationApproved tells an author a moderator approved their publication.
func (s *Service) NotifyPublicationApproved(ctx context.Context, recipient, moderator, publicationID int64) (*store.Notification, error) {
	return s.notify(ctx, event{
		recipient: recipient,
		actor:     &moderator,
		typ:       TypePublicationApproved,
		kind:      EntityPublication,
		entityID:  publicationID,
		priority:  PriorityHigh,
		text: func(string) string {
			return "Your publication has been approved"
		},
	})
}

// NotifySignalReviewed tells a reporter their signal changed status.
func (s *Service) NotifySignalReviewed(ctx context.Context, recipient, moderator, signalID int64, status string) (*store.Notification, error) {
	return s.notify(ctx, event{
		recipient: recipient,
		actor:     &moderator,
		typ:       TypeSignalReviewed,
		kind:      EntitySignal,
		entityID:  signalID,
		priority:  PriorityHigh,
		text: func(string) string {
			return fmt.Sprintf("Your signal has been reviewed: %s", strings.ToLower(status))
		},
	})
}

// NotifyRoleChanged tells a user an administrator changed their role.
func (s *Service) NotifyRoleChanged(ctx context.Context, recipient, admin int64, role string) (*store.Notification, error) {
	return s.notify(ctx, event{
		recipient: recipient,
		actor:     &admin,
		typ:       TypeRoleChanged,
		kind:      EntityUser,
		entityID:  recipient,
		priority:  PriorityHigh,
		text: func(string) string {
			return fmt.Sprintf("Your role is now %s", strings.ToLower(role))
		},
	})
}
