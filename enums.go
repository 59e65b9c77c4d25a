package pgline

import (
	"context"
	"log/slog"
)

// enumQuery lists server-defined enum types. Enum OIDs are assigned at
// CREATE TYPE time, so they can only be learned from the catalog.
const enumQuery = "SELECT oid, typname FROM pg_type WHERE typtype = 'e' ORDER BY oid"

// LoadEnums queries pg_type for enum types and installs a decoder for
// each, so enum-valued fields decode to their label instead of an
// unknown-OID fallback. Returns the type names processed.
func (c *Client) LoadEnums(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	res, err := c.simpleQuery(enumQuery)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, row := range res.Rows() {
		oid, ok := row[0].(int64)
		if !ok {
			return nil, protocolErrorf("pg_type.oid decoded as %T", row[0])
		}
		name, ok := row[1].(string)
		if !ok {
			return nil, protocolErrorf("pg_type.typname decoded as %T", row[1])
		}
		c.conv.RegisterEnum(uint32(oid), name)
		names = append(names, name)
	}
	slog.Debug("loaded enum types", "count", len(names))
	return names, nil
}
