package schema

import (
	"errors"
	"testing"
	"time"

	"conversation-transcriber/internal/models"
)

func TestValidator_Validate(t *testing.T) {
	turn := models.Turn{ID: "s1-turn-1", SessionID: "s1", Speaker: models.SpeakerMe, Text: "Hi.", OccurredAt: time.Now()}

	tests := []struct {
		name    string
		update  models.Update
		wantErr bool
	}{
		{"valid partial", models.NewPartialUpdate("s1", models.SpeakerThem, "Hel"), false},
		{"valid final", models.NewFinalUpdate(turn), false},
		{"missing session", models.NewPartialUpdate("", models.SpeakerMe, "x"), true},
		{"bad speaker", models.NewPartialUpdate("s1", "narrator", "x"), true},
		{"blank text", models.NewPartialUpdate("s1", models.SpeakerMe, "  "), true},
		{"final without turn id", func() models.Update {
			u := models.NewFinalUpdate(turn)
			u.TurnID = ""
			return u
		}(), true},
		{"final marked partial", func() models.Update {
			u := models.NewFinalUpdate(turn)
			u.IsPartial = true
			return u
		}(), true},
		{"partial not marked", func() models.Update {
			u := models.NewPartialUpdate("s1", models.SpeakerMe, "x")
			u.IsPartial = false
			return u
		}(), true},
		{"unknown type", models.Update{EventType: "other", SessionID: "s1", Speaker: models.SpeakerMe, Text: "x"}, true},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.update)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidUpdate) {
					t.Errorf("expected ErrInvalidUpdate, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
