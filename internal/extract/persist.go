package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/scrypster/luminaries/internal/identity"
	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/pkg/types"
)

// Store is what persisting extracted facts needs.
type Store interface {
	UpsertOrganization(ctx context.Context, org *types.Organization) (*types.Organization, error)
	ListCareerEvents(ctx context.Context, personID string) ([]*types.CareerEvent, error)
	InsertCareerEvent(ctx context.Context, e *types.CareerEvent) error
	InsertCourse(ctx context.Context, c *types.Course) error
}

// legalSuffixes are dropped from organization names before comparison.
var legalSuffixes = []string{
	"inc", "incorporated", "llc", "ltd", "limited", "corp", "corporation", "co", "company",
	"gmbh", "ag", "sa", "plc", "股份有限公司", "有限公司", "公司",
}

// NormalizeOrganization folds an organization name for deduplication:
// case, width and diacritics are folded, punctuation is dropped and legal
// suffixes such as "Inc." are removed.
func NormalizeOrganization(name string) string {
	folded := identity.Fold(name)
	folded = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, folded)
	words := strings.Fields(folded)
	for len(words) > 1 && isLegalSuffix(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	out := strings.Join(words, " ")
	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(out, suffix) && len(out) > len(suffix) && !isASCII(suffix) {
			out = strings.TrimSpace(strings.TrimSuffix(out, suffix))
			break
		}
	}
	return out
}

func isLegalSuffix(w string) bool {
	for _, s := range legalSuffixes {
		if w == s {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// OrganizationKind guesses the kind of an organization from its name.
func OrganizationKind(name string) types.OrganizationKind {
	n := identity.Fold(name)
	for _, marker := range []string{"university", "college", "institute of technology", "école", "universität", "大学", "学院"} {
		if strings.Contains(n, marker) {
			return types.OrgUniversity
		}
	}
	words := strings.Fields(strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return ' '
		}
		return r
	}, n))
	if len(words) > 0 && isLegalSuffix(words[len(words)-1]) {
		return types.OrgCompany
	}
	for _, marker := range []string{"labs", "technologies", "公司", "科技"} {
		if strings.Contains(n, marker) {
			return types.OrgCompany
		}
	}
	return types.OrgOther
}

// PersistTimeline writes events for personID, skipping any that duplicate
// a stored event: same organization, one role containing the other, and a
// start that is missing on either side or falls in the same year.
// It returns how many events were inserted.
func PersistTimeline(ctx context.Context, store Store, personID string, events []types.CareerEvent) (int, error) {
	existing, err := store.ListCareerEvents(ctx, personID)
	if err != nil {
		return 0, fmt.Errorf("list career events: %w", err)
	}

	inserted := 0
	for i := range events {
		e := events[i]
		normalized := NormalizeOrganization(e.Organization)
		if normalized == "" || strings.TrimSpace(e.Role) == "" {
			continue
		}
		org, err := store.UpsertOrganization(ctx, &types.Organization{
			Name:           e.Organization,
			NormalizedName: normalized,
			Kind:           OrganizationKind(e.Organization),
		})
		if err != nil {
			return inserted, fmt.Errorf("upsert organization %q: %w", e.Organization, err)
		}

		e.PersonID = personID
		e.OrganizationID = org.ID
		e.Organization = org.Name
		if duplicateOf(existing, &e) {
			continue
		}
		if err := store.InsertCareerEvent(ctx, &e); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				continue
			}
			return inserted, fmt.Errorf("insert career event: %w", err)
		}
		existing = append(existing, &e)
		inserted++
	}
	return inserted, nil
}

func duplicateOf(existing []*types.CareerEvent, e *types.CareerEvent) bool {
	role := roleKey(e.Role)
	for _, x := range existing {
		if x.OrganizationID != e.OrganizationID {
			continue
		}
		other := roleKey(x.Role)
		if !strings.Contains(role, other) && !strings.Contains(other, role) {
			continue
		}
		if x.StartDate == nil || e.StartDate == nil || x.StartDate.Year() == e.StartDate.Year() {
			return true
		}
	}
	return false
}

func roleKey(role string) string {
	return identity.Fold(role)
}

// PersistCourses writes courses for personID. Titles already stored for
// the person are skipped. It returns how many courses were inserted.
func PersistCourses(ctx context.Context, store Store, personID string, courses []types.Course) (int, error) {
	inserted := 0
	for i := range courses {
		c := courses[i]
		if strings.TrimSpace(c.Title) == "" {
			continue
		}
		c.PersonID = personID
		if err := store.InsertCourse(ctx, &c); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				continue
			}
			return inserted, fmt.Errorf("insert course: %w", err)
		}
		inserted++
	}
	return inserted, nil
}
