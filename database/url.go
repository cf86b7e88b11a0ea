package database

import (
	"net/url"
	"strings"
)

// ConstructDatabaseURL points baseURL at databaseName. Any database already in
// the base URL is replaced, and sslmode=disable is added unless an sslmode is set.
// An empty databaseName returns baseURL unchanged.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		// Keyword/value DSNs are not URLs
		return strings.TrimSpace(baseURL) + " dbname=" + databaseName
	}

	u.Path = "/" + databaseName
	u.RawPath = ""

	query := u.Query()
	if query.Get("sslmode") == "" {
		query.Set("sslmode", "disable")
	}
	u.RawQuery = query.Encode()

	return u.String()
}
