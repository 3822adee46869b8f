package adauth

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// groupResolution owns the working state of one top-level resolveGroups call:
// the ordered result sequence and the set of already-claimed group identities.
// Claiming and appending happen as a single step under the mutex so that
// concurrent sibling branches can never admit a duplicate. The state is
// scoped to one call and never shared across authenticate invocations.
type groupResolution struct {
	auth *Authenticator
	cfg  *GroupConfig
	conn directoryConn

	mu     sync.Mutex
	seen   map[string]struct{}
	groups []*Entry
}

// resolveGroups computes the full effective group closure for a resolved
// user: direct memberships via filter search, the implicit primary group via
// SID derivation, and transitive memberships of every discovered group.
// Cycles between nested groups are legal in real directories and are broken
// by the claimed-identity set; there is no depth limit.
//
// Any search failure at any depth aborts the whole resolution. Partial
// results are never returned.
func (a *Authenticator) resolveGroups(ctx context.Context, conn directoryConn, user *Entry) ([]*Entry, error) {
	if user == nil {
		return nil, &GroupResolutionError{Err: ErrEmptyUsername}
	}

	r := &groupResolution{
		auth: a,
		cfg:  a.config.Groups,
		conn: conn,
		seen: make(map[string]struct{}),
	}

	if err := r.resolve(ctx, user); err != nil {
		return nil, err
	}

	a.log.Debug().
		Str("user", user.DN).
		Int("groups", len(r.groups)).
		Msg("group resolution completed")

	return r.groups, nil
}

// resolve discovers the direct memberships of one entry and recurses into
// every group not seen before. Sibling branches within a level run
// concurrently; the result order is claim order, not completion order.
func (r *groupResolution) resolve(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return &GroupResolutionError{DN: entry.DN, Err: err}
	}

	direct, err := r.auth.search(r.conn, &SearchRequest{
		BaseDN:     r.cfg.BaseDN,
		Scope:      r.cfg.Scope,
		Filter:     r.membershipFilter(entry),
		Attributes: r.cfg.Attributes,
	})
	if err != nil {
		return &GroupResolutionError{DN: entry.DN, Err: err}
	}

	// Primary-group injection applies to the original user only; group
	// objects carry no primaryGroupID attribute, so primaryGroup is a no-op
	// for every recursive call.
	if primary, err := r.primaryGroup(entry); err != nil {
		return err
	} else if primary != nil {
		direct = append([]*Entry{primary}, direct...)
		entry.PrependMemberOf(primary.DN)
	}

	// Claim unseen groups in discovery order. Claim and append are one
	// atomic step; recursion into claimed branches fans out afterwards.
	var fresh []*Entry
	r.mu.Lock()
	for _, group := range direct {
		key := group.dedupKey()
		if _, resolved := r.seen[key]; resolved {
			continue
		}
		r.seen[key] = struct{}{}
		r.groups = append(r.groups, group)
		fresh = append(fresh, group)
	}
	r.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}

	// Fan-out is bounded by the number of groups a single search returned.
	eg, ctx := errgroup.WithContext(ctx)
	for _, group := range fresh {
		eg.Go(func() error {
			return r.resolve(ctx, group)
		})
	}
	return eg.Wait()
}

// membershipFilter builds the group-membership filter for an entry, either by
// invoking the configured filter function or by expanding the template with
// the entry's DN-property and username-property values.
func (r *groupResolution) membershipFilter(entry *Entry) string {
	if r.cfg.FilterFunc != nil {
		return r.cfg.FilterFunc(entry)
	}

	dnValue := entry.DN
	if r.cfg.DNProperty != "dn" && r.cfg.DNProperty != "" {
		dnValue = entry.GetAttributeValue(r.cfg.DNProperty)
	}

	return expandFilter(r.cfg.Filter, map[string]string{
		tokenDN:       EscapeFilter(dnValue),
		tokenUsername: EscapeFilter(entry.GetAttributeValue(r.cfg.UsernameProperty)),
	})
}

// primaryGroup resolves the entry's implicit primary group, if any. The
// primary group never appears in membership-filter results; its SID is
// derived from the entry's own SID and the primaryGroupID RID, then looked up
// directly. Entries without a primaryGroupID (every group, and users on
// non-AD servers) resolve to nil.
func (r *groupResolution) primaryGroup(entry *Entry) (*Entry, error) {
	rid, ok := entry.PrimaryGroupRID()
	if !ok {
		return nil, nil
	}

	sid, ok := primaryGroupSID(entry.ObjectSID, rid)
	if !ok {
		return nil, nil
	}

	matches, err := r.auth.search(r.conn, &SearchRequest{
		BaseDN:     r.cfg.PrimaryGroupBase,
		Scope:      r.cfg.PrimaryGroupScope,
		Filter:     "(objectSid=" + EscapeFilter(sid) + ")",
		Attributes: r.cfg.Attributes,
	})
	if err != nil {
		return nil, &GroupResolutionError{DN: entry.DN, Err: err}
	}
	if len(matches) == 0 {
		r.auth.log.Debug().
			Str("user", entry.DN).
			Str("primary_group_sid", sid).
			Msg("primary group not found")
		return nil, nil
	}

	return matches[0], nil
}
