// Package relationship models social labels between two users as a single
// record per unordered pair. Both directions live in one record so a
// reciprocal update is one write.
//
// mentor and mentee are duals: labelling someone a mentor makes you their
// mentee. Every other tag is self-reciprocal.
package relationship

import (
	"errors"
	"fmt"
	"time"

	"github.com/atmx/league-engine/internal/model"
)

var (
	ErrSelfRelationship = errors.New("relationship: cannot label yourself")
	ErrInvalidStatus    = errors.New("relationship: unknown status")
	ErrNotParticipant   = errors.New("relationship: user is not part of this pair")
)

// Dual returns the tag the other side receives when one side sets s.
func Dual(s model.RelationshipStatus) model.RelationshipStatus {
	switch s {
	case model.StatusMentor:
		return model.StatusMentee
	case model.StatusMentee:
		return model.StatusMentor
	default:
		return s
	}
}

// Pair orders two user ids so that the same pair always maps to one record.
func Pair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// New builds an empty record for the pair.
func New(a, b string) (*model.Relationship, error) {
	if a == b {
		return nil, ErrSelfRelationship
	}
	lo, hi := Pair(a, b)
	return &model.Relationship{UserA: lo, UserB: hi}, nil
}

// Set labels other from viewer's side and writes the dual label for the
// opposite direction on the same record.
func Set(r *model.Relationship, viewer string, status model.RelationshipStatus, now time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	switch viewer {
	case r.UserA:
		r.TagAB = status
		r.TagBA = Dual(status)
	case r.UserB:
		r.TagBA = status
		r.TagAB = Dual(status)
	default:
		return ErrNotParticipant
	}
	r.UpdatedAt = now
	return nil
}

// StatusFor returns how viewer labels the other side of r. ok is false when
// viewer is not in the pair or no label was set.
func StatusFor(r *model.Relationship, viewer string) (model.RelationshipStatus, bool) {
	var s model.RelationshipStatus
	switch viewer {
	case r.UserA:
		s = r.TagAB
	case r.UserB:
		s = r.TagBA
	default:
		return "", false
	}
	return s, s != ""
}

// Other returns the user on the opposite side of viewer.
func Other(r *model.Relationship, viewer string) string {
	if viewer == r.UserA {
		return r.UserB
	}
	return r.UserA
}

// ViewOf flattens the records involving viewer into other-user → tag.
func ViewOf(records []model.Relationship, viewer string) map[string]model.RelationshipStatus {
	view := make(map[string]model.RelationshipStatus)
	for i := range records {
		r := &records[i]
		if s, ok := StatusFor(r, viewer); ok {
			view[Other(r, viewer)] = s
		}
	}
	return view
}
