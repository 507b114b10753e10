package sqlserver

import (
	"errors"
	"strings"
)

// SQL Server error numbers the adapter reacts to.
const (
	errInvalidObjectName  = 208
	errCannotOpenDatabase = 4060
	errDuplicateKeyRow    = 2601
	errUniqueConstraint   = 2627
	errLoginFailed        = 18456
)

type sqlError interface {
	SQLErrorNumber() int32
	SQLErrorMessage() string
}

func errorNumber(err error) (int32, string, bool) {
	var e sqlError
	if !errors.As(err, &e) {
		return 0, "", false
	}
	return e.SQLErrorNumber(), e.SQLErrorMessage(), true
}

// IsMissingObject reports whether err says a table or view does not exist,
// which on a fresh database means migrations have not been applied.
func IsMissingObject(err error) bool {
	n, _, ok := errorNumber(err)
	return ok && n == errInvalidObjectName
}

// isMissingDatabase reports whether the login succeeded but the database
// named in the connection string does not exist.
func isMissingDatabase(err error) bool {
	n, _, ok := errorNumber(err)
	return ok && n == errCannotOpenDatabase
}

// uniqueViolation returns the violated index name for duplicate-key errors.
func uniqueViolation(err error) (string, bool) {
	n, msg, ok := errorNumber(err)
	if !ok || (n != errDuplicateKeyRow && n != errUniqueConstraint) {
		return "", false
	}
	for _, idx := range []string{indexUserName, indexEmail} {
		if strings.Contains(msg, idx) {
			return idx, true
		}
	}
	return "", true
}
