package sync

import (
	"strings"

	"github.com/sequoiaprint/keka-integrations/pkg/keka"
)

// DefaultAliases maps local roster names to the spelling the remote
// system uses, for discrepancies too irregular for the variant table.
var DefaultAliases = map[string]string{
	"soumen ghoshal": "somen ghoshal",
}

// DefaultVariantClasses groups spellings of the same given name that
// the factory's paper rosters and the remote system disagree on.
var DefaultVariantClasses = [][]string{
	{"soumen", "somen"},
	{"subham", "shubham", "shubom"},
	{"prosenjit", "prasenjit", "proshonjit"},
}

// NameMatcher matches local roster names against remote employees
// using normalized comparison, an alias table and per-token spelling
// variant classes. Both tables are data, so new variants are added
// without code changes.
type NameMatcher struct {
	aliases map[string]string
	// variantClass maps each token to its equivalence-class id
	variantClass map[string]int
}

// NewNameMatcher builds a matcher from an alias table and variant
// classes. Pass DefaultAliases and DefaultVariantClasses for the
// standard tables.
func NewNameMatcher(aliases map[string]string, variantClasses [][]string) *NameMatcher {
	m := &NameMatcher{
		aliases:      make(map[string]string, len(aliases)),
		variantClass: make(map[string]int),
	}
	for from, to := range aliases {
		m.aliases[normalizeName(from)] = normalizeName(to)
	}
	for classID, class := range variantClasses {
		for _, token := range class {
			m.variantClass[normalizeName(token)] = classID
		}
	}
	return m
}

// normalizeName lowercases and collapses runs of whitespace.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Similar reports whether two names refer to the same person: equal
// after normalization, or equal token-by-token where differing tokens
// belong to the same variant class.
func (m *NameMatcher) Similar(a, b string) bool {
	na, nb := normalizeName(a), normalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}

	tokensA := strings.Fields(na)
	tokensB := strings.Fields(nb)
	if len(tokensA) != len(tokensB) {
		return false
	}
	for i := range tokensA {
		if tokensA[i] == tokensB[i] {
			continue
		}
		classA, okA := m.variantClass[tokensA[i]]
		classB, okB := m.variantClass[tokensB[i]]
		if !okA || !okB || classA != classB {
			return false
		}
	}
	return true
}

// candidateNames returns the name permutations a remote employee may
// appear under in the local roster.
func candidateNames(emp *keka.Employee) []string {
	names := make([]string, 0, 4)
	names = append(names, emp.FirstName+" "+emp.LastName)
	if emp.MiddleName != "" {
		names = append(names, emp.FirstName+" "+emp.MiddleName+" "+emp.LastName)
	}
	if emp.DisplayName != "" {
		names = append(names, emp.DisplayName)
	}
	names = append(names, emp.LastName+" "+emp.FirstName)
	return names
}

// FindMatch returns the remote employee matching the local roster
// name, or nil. Candidates whose identifier is in used or pending are
// skipped so an identifier is never offered twice.
func (m *NameMatcher) FindMatch(localName string, remote []keka.Employee, used, pending map[string]struct{}) *keka.Employee {
	target := normalizeName(localName)
	if alias, ok := m.aliases[target]; ok {
		target = alias
	}

	for i := range remote {
		emp := &remote[i]
		if _, taken := used[emp.ID]; taken {
			continue
		}
		if _, taken := pending[emp.ID]; taken {
			continue
		}

		for _, candidate := range candidateNames(emp) {
			if m.Similar(target, candidate) {
				return emp
			}
		}
	}
	return nil
}
