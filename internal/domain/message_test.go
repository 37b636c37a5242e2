package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewMessageDefaultsType(t *testing.T) {
	m, err := NewMessage("m1", "c1", "u1", "", "hello", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Type != "TEXT" {
		t.Fatalf("expected TEXT default, got %q", m.Type)
	}
}

func TestNewMessageRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name                         string
		id, conv, sender, msgContent string
	}{
		{"missing id", "", "c1", "u1", "hi"},
		{"missing conversation", "m1", "", "u1", "hi"},
		{"missing sender", "m1", "c1", "", "hi"},
		{"missing content", "m1", "c1", "u1", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewMessage(tc.id, tc.conv, tc.sender, "TEXT", tc.msgContent, time.Now())
			if !errors.Is(err, ErrInvalidMessage) {
				t.Fatalf("expected ErrInvalidMessage, got %v", err)
			}
		})
	}
}

func TestNewMessageContentLimit(t *testing.T) {
	at := strings.Repeat("x", MaxMessageContent)
	if _, err := NewMessage("m1", "c1", "u1", "TEXT", at, time.Now()); err != nil {
		t.Fatalf("content at the limit should pass, got %v", err)
	}

	over := at + "x"
	if _, err := NewMessage("m1", "c1", "u1", "TEXT", over, time.Now()); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestNewMessageLimitCountsRunes(t *testing.T) {
	// Multi-byte characters count once each.
	content := strings.Repeat("é", MaxMessageContent)
	if _, err := NewMessage("m1", "c1", "u1", "TEXT", content, time.Now()); err != nil {
		t.Fatalf("rune-length content at the limit should pass, got %v", err)
	}
}

func TestNewReactionValidation(t *testing.T) {
	if _, err := NewReaction("m1", "c1", "u1", "👍", time.Now()); err != nil {
		t.Fatalf("valid reaction rejected: %v", err)
	}
	if _, err := NewReaction("", "c1", "u1", "👍", time.Now()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
