package testutil

import (
	"fmt"
	"strings"
)

// NewTestDSN generates a DSN for an in-memory SQLite database for testing purposes.
// Subtest separators are replaced so the name stays a valid URI path.
func NewTestDSN(testName string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(testName, "/", "_"))
}
