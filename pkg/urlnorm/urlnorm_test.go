package urlnorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ethpandaops/profiledb/pkg/urlnorm"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "empty", raw: "", want: ""},
		{name: "root", raw: "/", want: "/"},
		{name: "static path", raw: "/about/team", want: "/about/team"},
		{name: "numeric segment", raw: "/user/42/edit", want: "/user/{id}/edit"},
		{
			name: "uuid segment",
			raw:  "/orders/3f2504e0-4f89-11d3-9a0c-0305e82c3301",
			want: "/orders/{hash}",
		},
		{name: "hex digest", raw: "/blob/9f86d081884c7d65", want: "/blob/{hash}"},
		{name: "short hex stays", raw: "/color/beef", want: "/color/beef"},
		{name: "query values dropped and sorted", raw: "/search?q=shoes&page=2", want: "/search?page&q"},
		{name: "duplicate params", raw: "/s?a=1&a=2", want: "/s?a"},
		{name: "profile toggle removed", raw: "/home?_profile=1", want: "/home"},
		{name: "fragment dropped", raw: "/docs#intro", want: "/docs"},
		{
			name: "absolute url",
			raw:  "HTTPS://Example.COM/post/2024/hello?utm_source=x",
			want: "https://example.com/post/{id}/hello?utm_source",
		},
		{
			name: "cli invocation unchanged",
			raw:  "bin/console cache:clear --env=prod",
			want: "bin/console cache:clear --env=prod",
		},
		{name: "whitespace trimmed", raw: "  /user/7  ", want: "/user/{id}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, urlnorm.Canonical(tt.raw))
		})
	}
}

func TestCanonical_GroupsEquivalentRequests(t *testing.T) {
	a := urlnorm.Canonical("/product/17?ref=home&color=red")
	b := urlnorm.Canonical("/product/9182?color=blue&ref=search")

	assert.Equal(t, a, b)
	assert.Equal(t, a, urlnorm.Canonical(a))
}
