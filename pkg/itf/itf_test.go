package itf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeDBName(t *testing.T) {
	require.Equal(t, "itf_testfoo_sub_case_1", sanitizeDBName("itf_TestFoo/sub case (1)"))
	require.Equal(t, "test_db", sanitizeDBName("///"))

	long := "itf_" + strings.Repeat("TestAssignmentRepository_", 5)
	got := sanitizeDBName(long)
	require.LessOrEqual(t, len(got), maxDBNameLength)
	require.NotEqual(t, got, sanitizeDBName(long+"x"))
}
