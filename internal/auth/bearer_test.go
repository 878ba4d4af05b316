package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearerToken(t *testing.T) {
	tcases := []struct {
		name   string
		header string
		target string
		bearer string
		live   string
	}{
		{name: "header", header: "Bearer abc", target: "/", bearer: "abc", live: "abc"},
		{name: "scheme is case insensitive", header: "bearer   abc ", target: "/", bearer: "abc", live: "abc"},
		{name: "header wins over query", header: "Bearer abc", target: "/?token=xyz", bearer: "abc", live: "abc"},
		{name: "query fallback", target: "/?token=xyz", bearer: "", live: "xyz"},
		{name: "other scheme", header: "Basic abc", target: "/?token=xyz", bearer: "", live: "xyz"},
		{name: "nothing", target: "/", bearer: "", live: ""},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tc.target, nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}

			assert.Equal(t, tc.bearer, BearerToken(r))
			assert.Equal(t, tc.live, LiveCredential(r))
		})
	}
}
