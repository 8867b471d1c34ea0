// Package knowledge answers questions about fixed business facts with ordered
// keyword rules. It is consulted before the learned-answer store and never
// touches storage.
package knowledge

import (
	"fmt"
	"strings"
)

// BusinessInfo holds the static facts the matcher can answer from.
type BusinessInfo struct {
	Name     string   `yaml:"name" validate:"required"`
	Hours    string   `yaml:"hours" validate:"required"`
	Address  string   `yaml:"address" validate:"required"`
	Phone    string   `yaml:"phone" validate:"required"`
	Services []string `yaml:"services" validate:"required,min=1"`
}

// DefaultBusinessInfo is the salon the front desk answers for out of the box.
func DefaultBusinessInfo() BusinessInfo {
	return BusinessInfo{
		Name:     "Serenity Salon & Spa",
		Hours:    "Monday-Friday: 9 AM - 8 PM, Saturday: 10 AM - 6 PM, Sunday: Closed",
		Address:  "123 Main Street, Anytown, USA",
		Phone:    "(555) 123-4567",
		Services: []string{"Haircuts", "Hair Coloring", "Manicures", "Pedicures", "Facials", "Massages"},
	}
}

// Category names a rule of the matcher.
type Category string

const (
	CategoryHours    Category = "hours"
	CategoryLocation Category = "location"
	CategoryPhone    Category = "phone"
	CategoryServices Category = "services"
)

type rule struct {
	category Category
	keywords []string
	answer   func(BusinessInfo) string
}

// Order matters: the first rule with a matching keyword answers.
var rules = []rule{
	{
		category: CategoryHours,
		keywords: []string{"hour", "open"},
		answer:   func(b BusinessInfo) string { return fmt.Sprintf("Our hours are %s.", b.Hours) },
	},
	{
		category: CategoryLocation,
		keywords: []string{"address", "location", "where"},
		answer:   func(b BusinessInfo) string { return fmt.Sprintf("We're located at %s.", b.Address) },
	},
	{
		category: CategoryPhone,
		keywords: []string{"phone", "number", "call"},
		answer:   func(b BusinessInfo) string { return fmt.Sprintf("You can reach us at %s.", b.Phone) },
	},
	{
		category: CategoryServices,
		keywords: []string{"service", "offer"},
		answer: func(b BusinessInfo) string {
			return fmt.Sprintf("We offer: %s. Would you like to know more about any specific service?", strings.Join(b.Services, ", "))
		},
	},
}

// Matcher is a pure function of its BusinessInfo; it is safe for concurrent use.
type Matcher struct {
	info BusinessInfo
}

func NewMatcher(info BusinessInfo) *Matcher {
	return &Matcher{info: info}
}

// Match returns the formatted answer of the first category whose keywords
// appear in the lowercased question.
func (m *Matcher) Match(question string) (string, bool) {
	_, answer, ok := m.MatchCategory(question)
	return answer, ok
}

// MatchCategory is Match that also reports which category answered.
func (m *Matcher) MatchCategory(question string) (Category, string, bool) {
	lower := strings.ToLower(question)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.category, r.answer(m.info), true
			}
		}
	}
	return "", "", false
}
