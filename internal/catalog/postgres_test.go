package catalog

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// The products queries are assembled from productColumns, so a drift between
// the scan targets and the migration DDL only surfaces at runtime against a
// live database. Cross-check the two here instead.
func TestProductColumnsMatchMigration(t *testing.T) {
	ddl := productsDDL(t)

	for _, col := range strings.Split(productColumns, ",") {
		name := strings.TrimSpace(col)
		name = strings.TrimSuffix(name, "::text")
		require.Regexp(t, regexp.MustCompile(`(?m)^\s*`+name+`\s`), ddl,
			"column %s missing from products DDL", name)
	}

	// no_qty is scanned into a float64 multiplier; a non-numeric column type
	// would fail every product read.
	require.Regexp(t, regexp.MustCompile(`(?m)^\s*no_qty\s+DOUBLE PRECISION\b`), ddl)
}

func productsDDL(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "0001_init.up.sql"))
	require.NoError(t, err)
	_, rest, found := strings.Cut(string(raw), "CREATE TABLE products (")
	require.True(t, found)
	ddl, _, found := strings.Cut(rest, ");")
	require.True(t, found)
	return ddl
}
