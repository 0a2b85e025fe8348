package sync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sequoiaprint/keka-integrations/pkg/keka"
)

func defaultMatcher() *NameMatcher {
	return NewNameMatcher(DefaultAliases, DefaultVariantClasses)
}

func TestNameMatcher_Similar(t *testing.T) {
	m := defaultMatcher()

	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"exact", "Somen Ghoshal", "somen ghoshal", true},
		{"whitespace", "  Somen   Ghoshal ", "Somen Ghoshal", true},
		{"variant first token", "Soumen Ghoshal", "Somen Ghoshal", true},
		{"variant subham", "Subham Roy", "Shubham Roy", true},
		{"variant shubom", "Shubom Roy", "Shubham Roy", true},
		{"variant prosenjit", "Prosenjit Das", "Prasenjit Das", true},
		{"different surname", "Somen Ghoshal", "Somen Das", false},
		{"different person", "Rakesh Das", "Somen Ghoshal", false},
		{"token count mismatch", "Somen Kumar Ghoshal", "Somen Ghoshal", false},
		{"unknown variant", "Rajesh Das", "Rajes Das", false},
		{"empty", "", "Somen Ghoshal", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, m.Similar(tt.a, tt.b))
		})
	}
}

func TestNameMatcher_FindMatch_Permutations(t *testing.T) {
	m := defaultMatcher()

	remote := []keka.Employee{
		{ID: "emp-1", FirstName: "Somen", LastName: "Ghoshal", DisplayName: "Somen Ghoshal"},
		{ID: "emp-2", FirstName: "Rakesh", MiddleName: "Kumar", LastName: "Das", DisplayName: "RK Das"},
		{ID: "emp-3", FirstName: "Amit", LastName: "Paul", DisplayName: "Amit Paul (Printing)"},
	}
	none := map[string]struct{}{}

	tests := []struct {
		local string
		want  string
	}{
		{"Somen Ghoshal", "emp-1"},          // first+last
		{"Rakesh Kumar Das", "emp-2"},       // first+middle+last
		{"RK Das", "emp-2"},                 // display name
		{"Ghoshal Somen", "emp-1"},          // reversed
		{"Soumen Ghoshal", "emp-1"},         // alias table
		{"Amit Paul (Printing)", "emp-3"},   // display name with suffix
		{"Nobody Here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.local, func(t *testing.T) {
			match := m.FindMatch(tt.local, remote, none, map[string]struct{}{})
			if tt.want == "" {
				require.Nil(t, match)
				return
			}
			require.NotNil(t, match)
			require.Equal(t, tt.want, match.ID)
		})
	}
}

func TestNameMatcher_FindMatch_SkipsTakenIdentifiers(t *testing.T) {
	m := defaultMatcher()

	remote := []keka.Employee{
		{ID: "emp-1", FirstName: "Somen", LastName: "Ghoshal"},
	}

	// Already held in the database
	match := m.FindMatch("Somen Ghoshal", remote,
		map[string]struct{}{"emp-1": {}}, map[string]struct{}{})
	require.Nil(t, match)

	// Already assigned earlier in this sync pass
	match = m.FindMatch("Somen Ghoshal", remote,
		map[string]struct{}{}, map[string]struct{}{"emp-1": {}})
	require.Nil(t, match)
}

func TestNameMatcher_CustomTables(t *testing.T) {
	m := NewNameMatcher(
		map[string]string{"bob smith": "robert smith"},
		[][]string{{"jon", "john"}},
	)

	remote := []keka.Employee{
		{ID: "emp-1", FirstName: "Robert", LastName: "Smith"},
		{ID: "emp-2", FirstName: "John", LastName: "Doe"},
	}
	none := map[string]struct{}{}

	match := m.FindMatch("Bob Smith", remote, none, map[string]struct{}{})
	require.NotNil(t, match)
	require.Equal(t, "emp-1", match.ID)

	match = m.FindMatch("Jon Doe", remote, none, map[string]struct{}{})
	require.NotNil(t, match)
	require.Equal(t, "emp-2", match.ID)

	// Default variants are not present in custom tables
	require.False(t, m.Similar("Soumen Ghoshal", "Somen Ghoshal"))
}
