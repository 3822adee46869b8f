package adauth

import (
	"errors"

	"github.com/go-ldap/ldap/v3"
)

// SearchRequest describes a single directory search. Requests are immutable
// once issued and are never retried automatically.
type SearchRequest struct {
	BaseDN     string
	Scope      Scope
	Filter     string
	Attributes []string
	SizeLimit  int
}

// directoryConn is the slice of *ldap.Conn behavior this package uses: bind,
// search, unbind. Tests substitute a scripted implementation.
type directoryConn interface {
	Bind(username, password string) error
	Search(*ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// search issues one search over the supplied connection and materializes the
// full result set, decoding binary objectSid/objectGUID attributes on every
// entry. A non-success status from a completed search surfaces as a
// *DirectoryError carrying the status code; a failure of the search call
// itself surfaces as a *TransportError.
func (a *Authenticator) search(conn directoryConn, req *SearchRequest) ([]*Entry, error) {
	ldapReq := ldap.NewSearchRequest(
		req.BaseDN,
		req.Scope.ldapScope(),
		ldap.NeverDerefAliases,
		req.SizeLimit,
		int(a.config.Timeout.Seconds()),
		false,
		req.Filter,
		req.Attributes,
		nil,
	)

	result, err := conn.Search(ldapReq)
	if err != nil {
		var ldapErr *ldap.Error
		if errors.As(err, &ldapErr) && isServerResultCode(ldapErr.ResultCode) {
			dirErr := &DirectoryError{Op: "search", ResultCode: ldapErr.ResultCode}
			if ldapErr.Err != nil {
				dirErr.Message = ldapErr.Err.Error()
			}
			a.log.Debug().
				Str("base", req.BaseDN).
				Str("filter", req.Filter).
				Uint16("result_code", ldapErr.ResultCode).
				Msg("search rejected by directory")
			return nil, dirErr
		}
		a.log.Debug().
			Str("base", req.BaseDN).
			Str("filter", req.Filter).
			Err(err).
			Msg("search transport failure")
		return nil, &TransportError{Op: "search", Err: err}
	}

	entries := make([]*Entry, 0, len(result.Entries))
	for _, src := range result.Entries {
		entries = append(entries, newEntry(src, a.config.IncludeRaw))
	}

	a.log.Debug().
		Str("base", req.BaseDN).
		Str("scope", req.Scope.String()).
		Str("filter", req.Filter).
		Int("entries", len(entries)).
		Msg("search completed")

	return entries, nil
}
