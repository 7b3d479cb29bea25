package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
)

// IsSQLSource reports whether location names a database instead of a file
func IsSQLSource(location string) bool {
	scheme, _, ok := strings.Cut(location, "://")
	if !ok {
		return false
	}
	switch strings.ToLower(scheme) {
	case constants.SchemePG, constants.SchemePGAlt, constants.SchemeMySQL, constants.SchemeSQLite:
		return true
	}
	return false
}

// LoadSQL runs query against the database named by location and returns the
// result set as a Dataset.
func LoadSQL(ctx context.Context, location, query string, logger *logrus.Logger) (*Dataset, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.WrapError(errors.ErrMissingQuery, errors.ErrorTypeInput, errors.CodeInvalidSource,
			"a query is required for database sources")
	}

	driver, dsn, err := driverDSN(location)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInput, errors.CodeConnectFailed,
			fmt.Sprintf("failed to open %s source", driver))
	}
	defer db.Close()
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	logger.WithFields(logrus.Fields{
		"driver": driver,
	}).Debug("Running source query")

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInput, errors.CodeQueryFailed, "source query failed")
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInput, errors.CodeQueryFailed, "failed to read result columns")
	}
	if len(names) == 0 {
		return nil, errors.WrapError(errors.ErrEmptyDataset, errors.ErrorTypeInput, errors.CodeEmptyInput,
			"query returned no columns")
	}

	var values [][]Value
	raw := make([]interface{}, len(names))
	ptrs := make([]interface{}, len(names))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeInput, errors.CodeQueryFailed, "failed to scan row")
		}
		row := make([]Value, len(names))
		for i, v := range raw {
			row[i] = scanValue(v)
		}
		values = append(values, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInput, errors.CodeQueryFailed, "row iteration failed")
	}

	return FromValues(names, values)
}

func scanValue(v interface{}) Value {
	switch x := v.(type) {
	case []byte:
		s := string(x)
		if f, ok := parseNumber(s); ok {
			return Number(f)
		}
		return String(s)
	case time.Time:
		return String(x.UTC().Format(time.RFC3339))
	default:
		return FromInterface(x)
	}
}

func driverDSN(location string) (string, string, error) {
	scheme, rest, _ := strings.Cut(location, "://")
	switch strings.ToLower(scheme) {
	case constants.SchemePG, constants.SchemePGAlt:
		return "postgres", location, nil
	case constants.SchemeMySQL:
		dsn, err := mysqlDSN(rest)
		return "mysql", dsn, err
	case constants.SchemeSQLite:
		uri, err := sqliteReadOnlyURI(rest)
		return "sqlite", uri, err
	default:
		return "", "", errors.WrapError(errors.ErrUnsupportedSource, errors.ErrorTypeInput, errors.CodeInvalidSource,
			fmt.Sprintf("unsupported source %q", location))
	}
}

// mysqlDSN accepts either a driver DSN (user:pass@tcp(host:3306)/db) or the
// URL form user:pass@host:3306/db.
func mysqlDSN(dsn string) (string, error) {
	if !strings.Contains(dsn, "(") {
		if at := strings.LastIndex(dsn, "@"); at >= 0 {
			host, path, _ := strings.Cut(dsn[at+1:], "/")
			dsn = dsn[:at+1] + "tcp(" + host + ")/" + path
		}
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeInput, errors.CodeInvalidURI, "parse mysql dsn")
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func sqliteReadOnlyURI(dsn string) (string, error) {
	if dsn == ":memory:" || dsn == "file::memory:" || strings.Contains(dsn, "mode=memory") {
		return "", errors.NewInputError(errors.CodeInvalidSource, "in-memory SQLite databases are not supported")
	}
	if !strings.HasPrefix(dsn, "file:") {
		return "file:" + dsn + "?mode=ro", nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeInput, errors.CodeInvalidURI, "parse sqlite uri")
	}
	q := u.Query()
	q.Set("mode", "ro")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
