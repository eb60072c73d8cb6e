package access

import (
	"context"
	"testing"

	"musicbox/model"
)

func TestCanUpload(t *testing.T) {
	if CanUpload(Anonymous) {
		t.Error("anonymous actor must not upload")
	}
	if !CanUpload(Actor{ID: 7, Username: "alice"}) {
		t.Error("authenticated actor should be able to upload")
	}
}

func TestCanDelete(t *testing.T) {
	track := &model.Track{ID: 1, UserID: 7}
	tests := []struct {
		name  string
		actor Actor
		track *model.Track
		want  bool
	}{
		{"owner", Actor{ID: 7}, track, true},
		{"other user", Actor{ID: 8}, track, false},
		{"anonymous", Anonymous, track, false},
		{"anonymous vs ownerless", Anonymous, &model.Track{UserID: 0}, false},
		{"nil track", Actor{ID: 7}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanDelete(tt.track, tt.actor); got != tt.want {
				t.Errorf("CanDelete = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	if got := FromContext(context.Background()); got != Anonymous {
		t.Errorf("expected anonymous from empty context, got %+v", got)
	}
	actor := Actor{ID: 3, Username: "bob"}
	if got := FromContext(WithActor(context.Background(), actor)); got != actor {
		t.Errorf("expected %+v, got %+v", actor, got)
	}
}
