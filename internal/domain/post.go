package domain

import "github.com/purlinworks/purlin/orm"

// Post is a piece of content owned by a User. The Author relation stays
// nil unless it is eager-loaded through SelectRelated.
type Post struct {
	orm.Model
	UserID int64  `db:"user_id" json:"user_id"`
	Title  string `db:"title"   json:"title"`
	Body   string `db:"body"    json:"body"`
	Author *User  `rel:"one,fk:user_id" json:"author,omitempty"`
}

// NewPost creates a transient Post owned by userID.
// Returns an error if validation fails.
func NewPost(userID int64, title, body string) (*Post, error) {
	post := &Post{UserID: userID, Title: title, Body: body}
	if err := post.Validate(); err != nil {
		return nil, err
	}
	return post, nil
}

// Validate checks if the Post has valid data.
func (p *Post) Validate() error {
	if p.UserID == 0 {
		return ErrMissingAuthor
	}
	if p.Title == "" {
		return ErrEmptyTitle
	}
	return nil
}

// ValidatePostFields checks a field map bound for a post write.
func ValidatePostFields(fields orm.Fields) error {
	if v, ok := fields["user_id"]; ok {
		if id, _ := v.(int64); id == 0 {
			return ErrMissingAuthor
		}
	}
	if v, ok := fields["title"]; ok {
		if title, _ := v.(string); title == "" {
			return ErrEmptyTitle
		}
	}
	return nil
}
