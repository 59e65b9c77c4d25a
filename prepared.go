package pgline

import (
	"context"

	"github.com/pgline/pgline/pgtype"
)

// PreparedStatement is a server-side statement produced by Prepare.
// Its parameter and field descriptions are immutable; executions bind
// fresh parameter vectors against the same plan.
type PreparedStatement struct {
	client    *Client
	name      string
	paramOIDs []uint32
	fields    []pgtype.FieldDesc
	closed    bool
}

// Name returns the server-side statement name. Names derived from the
// SQL are at most 63 bytes; an explicit name given to Prepare is used
// as given.
func (ps *PreparedStatement) Name() string { return ps.name }

// ParamOIDs returns the parameter type OIDs reported by Describe.
func (ps *PreparedStatement) ParamOIDs() []uint32 { return ps.paramOIDs }

// Fields returns the result field descriptions, nil for statements
// that return no rows.
func (ps *PreparedStatement) Fields() []pgtype.FieldDesc { return ps.fields }

// Exec binds args and executes the statement, returning one result set.
// Parameters travel in text format.
func (ps *PreparedStatement) Exec(ctx context.Context, args ...any) (*Result, error) {
	c := ps.client
	c.mu.Lock()
	defer c.mu.Unlock()
	if ps.closed {
		return nil, configErrorf("statement %q is closed", ps.name)
	}
	if len(args) != len(ps.paramOIDs) {
		return nil, configErrorf("statement %q wants %d parameters, got %d",
			ps.name, len(ps.paramOIDs), len(args))
	}
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	if err := c.sendBindExecute(ps.name, args); err != nil {
		c.teardown()
		return nil, err
	}
	return c.readExecuteReplies(ps.fields)
}

// Close releases the server-side statement. The PreparedStatement is
// unusable afterwards.
func (ps *PreparedStatement) Close(ctx context.Context) error {
	c := ps.client
	c.mu.Lock()
	defer c.mu.Unlock()
	if ps.closed {
		return nil
	}
	ps.closed = true
	if c.sess == nil || !c.sess.isConnected() {
		// The server-side statement died with the session.
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &IoError{Op: "context", Err: err}
	}
	return c.sendCloseStatement(ps.name)
}
