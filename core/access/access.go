// Package access decides who may mutate the music library.
package access

import (
	"context"

	"musicbox/model"
)

// Actor is the caller of an operation. The zero value is anonymous.
type Actor struct {
	ID       int64
	Username string
}

// Anonymous is the actor for requests without a valid session.
var Anonymous = Actor{}

// Authenticated reports whether the actor is a logged in user.
func (a Actor) Authenticated() bool {
	return a.ID > 0
}

// CanUpload: any authenticated user may upload.
func CanUpload(actor Actor) bool {
	return actor.Authenticated()
}

// CanDelete: only the owner of a track may delete it.
func CanDelete(track *model.Track, actor Actor) bool {
	return track != nil && actor.Authenticated() && actor.ID == track.UserID
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// FromContext returns the actor stored in ctx, or Anonymous.
func FromContext(ctx context.Context) Actor {
	if actor, ok := ctx.Value(actorKey{}).(Actor); ok {
		return actor
	}
	return Anonymous
}
