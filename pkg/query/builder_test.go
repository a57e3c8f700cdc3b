package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/profiledb/pkg/query"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name       string
		criteria   query.Criteria
		wantSQL    string
		wantParams map[string]any
	}{
		{
			name:       "no criteria selects everything",
			criteria:   query.Criteria{},
			wantSQL:    "SELECT * FROM details",
			wantParams: map[string]any{},
		},
		{
			name: "equality filter with limit",
			criteria: query.Criteria{
				Filters: []query.Filter{{Column: "status", Value: "active"}},
				Limit:   10,
			},
			wantSQL:    "SELECT * FROM details WHERE status = :status LIMIT 10",
			wantParams: map[string]any{"status": "active"},
		},
		{
			name:       "limit without filters has no where clause",
			criteria:   query.Criteria{Limit: 5},
			wantSQL:    "SELECT * FROM details LIMIT 5",
			wantParams: map[string]any{},
		},
		{
			name: "filters keep insertion order",
			criteria: query.Criteria{
				Filters: []query.Filter{
					{Column: "url", Value: "/a"},
					{Column: "type", Value: 2},
					{Column: "server_name", Value: "web-1"},
				},
			},
			wantSQL: "SELECT * FROM details WHERE url = :url AND type = :type " +
				"AND server_name = :server_name",
			wantParams: map[string]any{"url": "/a", "type": 2, "server_name": "web-1"},
		},
		{
			name: "empty value is a raw fragment",
			criteria: query.Criteria{
				Filters: []query.Filter{
					{Column: "timestamp > 1000"},
					{Column: "url", Value: "/a"},
					{Column: "wt > 0", Value: ""},
				},
			},
			wantSQL:    "SELECT * FROM details WHERE timestamp > 1000 AND url = :url AND wt > 0",
			wantParams: map[string]any{"url": "/a"},
		},
		{
			name: "raw where is ANDed after filters",
			criteria: query.Criteria{
				Filters: []query.Filter{{Column: "url", Value: "/a"}},
				Where:   "wt > 100",
			},
			wantSQL:    "SELECT * FROM details WHERE url = :url AND wt > 100",
			wantParams: map[string]any{"url": "/a"},
		},
		{
			name:       "raw where alone",
			criteria:   query.Criteria{Where: "cpu > 5"},
			wantSQL:    "SELECT * FROM details WHERE cpu > 5",
			wantParams: map[string]any{},
		},
		{
			name: "full clause set",
			criteria: query.Criteria{
				Select:  "url, COUNT(id) AS count",
				Filters: []query.Filter{{Column: "server_id", Value: "t1"}},
				Where:   "timestamp >= 0",
				GroupBy: "url",
				OrderBy: []string{"count"},
				Limit:   3,
			},
			wantSQL: "SELECT url, COUNT(id) AS count FROM details WHERE server_id = :server_id " +
				"AND timestamp >= 0 GROUP BY url ORDER BY count DESC LIMIT 3",
			wantParams: map[string]any{"server_id": "t1"},
		},
		{
			name: "order terms are all descending with offset",
			criteria: query.Criteria{
				Select:  "wt",
				Filters: []query.Filter{{Column: "url", Value: "/a"}},
				OrderBy: []string{"wt", "id"},
				Limit:   1,
				Offset:  4,
			},
			wantSQL:    "SELECT wt FROM details WHERE url = :url ORDER BY wt DESC, id DESC LIMIT 1 OFFSET 4",
			wantParams: map[string]any{"url": "/a"},
		},
		{
			name: "qualified column binds sanitized parameter",
			criteria: query.Criteria{
				Filters: []query.Filter{{Column: "d.url", Value: "/a"}},
			},
			wantSQL:    "SELECT * FROM details WHERE d.url = :d_url",
			wantParams: map[string]any{"d_url": "/a"},
		},
		{
			name:     "prefix filter binds value and character length",
			criteria: query.Criteria{}.Eq("type", 1).HasPrefix("url", "/a_b%"),
			wantSQL: "SELECT * FROM details WHERE type = :type " +
				"AND substr(url, 1, :url_prefix_len) = :url_prefix",
			wantParams: map[string]any{"type": 1, "url_prefix": "/a_b%", "url_prefix_len": 5},
		},
		{
			name:       "prefix length counts characters",
			criteria:   query.Criteria{}.HasPrefix("url", "/café"),
			wantSQL:    "SELECT * FROM details WHERE substr(url, 1, :url_prefix_len) = :url_prefix",
			wantParams: map[string]any{"url_prefix": "/café", "url_prefix_len": 5},
		},
		{
			name:       "empty prefix matches everything",
			criteria:   query.Criteria{}.HasPrefix("url", ""),
			wantSQL:    "SELECT * FROM details",
			wantParams: map[string]any{},
		},
		{
			name:       "prefix and equality on the same column",
			criteria:   query.Criteria{}.Eq("url", "/a/1").HasPrefix("url", "/a"),
			wantSQL:    "SELECT * FROM details WHERE url = :url AND substr(url, 1, :url_prefix_len) = :url_prefix",
			wantParams: map[string]any{"url": "/a/1", "url_prefix": "/a", "url_prefix_len": 2},
		},
		{
			name: "order term containing direction word is kept",
			criteria: query.Criteria{
				OrderBy: []string{"descendants"},
			},
			wantSQL:    "SELECT * FROM details ORDER BY descendants DESC",
			wantParams: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := query.Build("details", tt.criteria)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSQL, stmt.SQL)
			assert.Equal(t, tt.wantParams, stmt.Params)
		})
	}
}

func TestBuild_ValuesAreNeverInterpolated(t *testing.T) {
	stmt, err := query.Build("details", query.Criteria{
		Filters: []query.Filter{{Column: "url", Value: "'; DROP TABLE details; --"}},
	})
	require.NoError(t, err)

	assert.NotContains(t, stmt.SQL, "DROP")
	assert.Equal(t, "'; DROP TABLE details; --", stmt.Params["url"])
}

func TestBuild_InvalidCriteria(t *testing.T) {
	tests := []struct {
		name      string
		table     string
		criteria  query.Criteria
		errSubstr string
	}{
		{
			name:      "missing table",
			criteria:  query.Criteria{},
			errSubstr: "table is required",
		},
		{
			name:      "negative limit",
			table:     "details",
			criteria:  query.Criteria{Limit: -1},
			errSubstr: "negative limit",
		},
		{
			name:      "offset without limit",
			table:     "details",
			criteria:  query.Criteria{Offset: 2},
			errSubstr: "offset requires a limit",
		},
		{
			name:      "filter without column",
			table:     "details",
			criteria:  query.Criteria{Filters: []query.Filter{{Value: "x"}}},
			errSubstr: "has no column",
		},
		{
			name:  "bound filter with expression column",
			table: "details",
			criteria: query.Criteria{
				Filters: []query.Filter{{Column: "wt > 1", Value: 5}},
			},
			errSubstr: "cannot be bound",
		},
		{
			name:  "duplicate parameter",
			table: "details",
			criteria: query.Criteria{
				Filters: []query.Filter{
					{Column: "url", Value: "/a"},
					{Column: "url", Value: "/b"},
				},
			},
			errSubstr: "duplicate filter",
		},
		{
			name:  "empty order term",
			table: "details",
			criteria: query.Criteria{
				OrderBy: []string{"wt", " "},
			},
			errSubstr: "empty order by term",
		},
		{
			name:      "order term with explicit descending",
			table:     "details",
			criteria:  query.Criteria{OrderBy: []string{"wt DESC"}},
			errSubstr: "already has a direction",
		},
		{
			name:      "order term with explicit ascending",
			table:     "details",
			criteria:  query.Criteria{OrderBy: []string{"id", "timestamp asc"}},
			errSubstr: "already has a direction",
		},
		{
			name:      "prefix on expression",
			table:     "details",
			criteria:  query.Criteria{}.HasPrefix("lower(url)", "/a"),
			errSubstr: "cannot be bound",
		},
		{
			name:  "prefix with non-string value",
			table: "details",
			criteria: query.Criteria{
				Filters: []query.Filter{{Column: "url", Value: 7, Prefix: true}},
			},
			errSubstr: "needs a string",
		},
		{
			name:      "two prefixes on one column",
			table:     "details",
			criteria:  query.Criteria{}.HasPrefix("url", "/a").HasPrefix("url", "/b"),
			errSubstr: "duplicate filter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := query.Build(tt.table, tt.criteria)
			require.Error(t, err)
			assert.ErrorIs(t, err, query.ErrInvalidCriteria)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestCriteria_EqDoesNotAlias(t *testing.T) {
	base := query.Criteria{Filters: make([]query.Filter, 0, 4)}

	a := base.Eq("url", "/a")
	b := base.Eq("url", "/b")

	require.Len(t, a.Filters, 1)
	require.Len(t, b.Filters, 1)
	assert.Equal(t, "/a", a.Filters[0].Value)
	assert.Equal(t, "/b", b.Filters[0].Value)
	assert.Empty(t, base.Filters)
}
