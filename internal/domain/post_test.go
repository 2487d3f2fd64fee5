package domain

import (
	"errors"
	"testing"

	"github.com/purlinworks/purlin/orm"
)

func TestNewPost(t *testing.T) {
	post, err := NewPost(7, "On Computable Numbers", "body text")

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if post.UserID != 7 {
		t.Errorf("Expected user id 7, got %d", post.UserID)
	}

	if post.Author != nil {
		t.Error("Expected a transient post with no loaded author")
	}

	// Test invalid inputs
	_, err = NewPost(0, "title", "body")
	if !errors.Is(err, ErrMissingAuthor) {
		t.Errorf("Expected error %v, got %v", ErrMissingAuthor, err)
	}

	_, err = NewPost(7, "", "body")
	if !errors.Is(err, ErrEmptyTitle) {
		t.Errorf("Expected error %v, got %v", ErrEmptyTitle, err)
	}
}

func TestValidatePostFields(t *testing.T) {
	tests := []struct {
		name    string
		fields  orm.Fields
		wantErr error
	}{
		{
			name:    "valid payload",
			fields:  orm.Fields{"user_id": int64(7), "title": "t", "body": "b"},
			wantErr: nil,
		},
		{
			name:    "partial update without title",
			fields:  orm.Fields{"body": "revised"},
			wantErr: nil,
		},
		{
			name:    "zero author",
			fields:  orm.Fields{"user_id": int64(0)},
			wantErr: ErrMissingAuthor,
		},
		{
			name:    "empty title",
			fields:  orm.Fields{"title": ""},
			wantErr: ErrEmptyTitle,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePostFields(tc.fields)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected error %v, got %v", tc.wantErr, err)
			}
		})
	}
}
